package seqtable

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// GlobalID identifies one catalog entry.
type GlobalID struct {
	Sample string
	// Count is the entry's read count. It does not contribute to uniqueness.
	Count int64
	// Index is the zero-based row position in the sample's table.
	Index int
}

// String formats the ID as "sample:count:index".
func (id GlobalID) String() string {
	return id.Sample + ":" + strconv.FormatInt(id.Count, 10) + ":" + strconv.Itoa(id.Index)
}

// ParseGlobalID parses the output of GlobalID.String.
func ParseGlobalID(s string) (GlobalID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return GlobalID{}, errors.E(errors.Invalid, fmt.Sprintf("global ID %q: want 3 colon-separated fields, got %d", s, len(parts)))
	}
	id := GlobalID{Sample: parts[0]}
	if err := ValidSampleName(id.Sample); err != nil {
		return GlobalID{}, errors.E(err, fmt.Sprintf("global ID %q", s))
	}
	var err error
	if id.Count, err = strconv.ParseInt(parts[1], 10, 64); err != nil || id.Count < 0 {
		return GlobalID{}, errors.E(errors.Invalid, fmt.Sprintf("global ID %q: bad count %q", s, parts[1]))
	}
	if id.Index, err = strconv.Atoi(parts[2]); err != nil || id.Index < 0 {
		return GlobalID{}, errors.E(errors.Invalid, fmt.Sprintf("global ID %q: bad index %q", s, parts[2]))
	}
	return id, nil
}
