package nodeid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress_String(t *testing.T) {
	testCases := []struct {
		name        string
		addr        Address
		expectedStr string
	}{
		{name: "plain job", addr: New("lint"), expectedStr: "lint"},
		{name: "matrix instance", addr: NewIndexed("build", 3), expectedStr: "build[3]"},
		{name: "first instance", addr: NewIndexed("test-unit", 0), expectedStr: "test-unit[0]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedStr, tc.addr.String())
		})
	}
}

func TestAddress_RoundTrip(t *testing.T) {
	for _, id := range []string{"lint", "build[0]", "push_image[12]"} {
		t.Run(id, func(t *testing.T) {
			addr, err := Parse(id)
			require.NoError(t, err)
			assert.Equal(t, id, addr.String())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, id := range []string{"", "build[", "build[-1]", "9lives", "a.b", "build[x]"} {
		t.Run(id, func(t *testing.T) {
			_, err := Parse(id)
			assert.Error(t, err)
		})
	}
}

func TestAddress_Less(t *testing.T) {
	assert.True(t, NewIndexed("build", 0).Less(NewIndexed("build", 1)))
	assert.True(t, New("build").Less(NewIndexed("build", 0)))
	assert.True(t, New("build").Less(New("lint")))
	assert.False(t, New("lint").Less(New("lint")))
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("build-image"))
	assert.False(t, ValidName("build[0]"))
	assert.False(t, ValidName(""))
}
