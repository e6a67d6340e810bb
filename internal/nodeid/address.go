package nodeid

import "strconv"

// String serializes the Address into its canonical representation.
func (a Address) String() string {
	if !a.HasIndex() {
		return a.Job
	}
	return a.Job + "[" + strconv.Itoa(a.Index) + "]"
}

// Less orders addresses by job name, then by index.
func (a Address) Less(other Address) bool {
	if a.Job != other.Job {
		return a.Job < other.Job
	}
	return a.Index < other.Index
}
