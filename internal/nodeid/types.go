package nodeid

// NoIndex marks the single instance of a non-parametric job.
const NoIndex = -1

// Address identifies one job instance within a run.
type Address struct {
	Job   string
	Index int
}

// New creates an address for the single instance of a non-parametric job.
func New(job string) Address {
	return Address{Job: job, Index: NoIndex}
}

// NewIndexed creates an address for one instance of a matrix job.
func NewIndexed(job string, index int) Address {
	return Address{Job: job, Index: index}
}

// HasIndex returns true if the address names a matrix instance.
func (a Address) HasIndex() bool {
	return a.Index != NoIndex
}
