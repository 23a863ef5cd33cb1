package fastq

import (
	"fmt"
	"strings"
)

// Mate identifies the end of a read pair a record came from.
type Mate int

const (
	// Mate1 is the first (forward) read of a pair.
	Mate1 Mate = iota
	// Mate2 is the second (reverse) read of a pair.
	Mate2
)

// String returns "R1" or "R2".
func (m Mate) String() string {
	switch m {
	case Mate1:
		return "R1"
	case Mate2:
		return "R2"
	}
	return fmt.Sprintf("Mate(%d)", int(m))
}

// Mate extracts the mate orientation marker from the read ID. Two
// conventions are recognized:
//
//   @name 1:N:0:ATCACG   (Casava 1.8+ comment, first field before ':')
//   @name/1              (legacy suffix on the read name)
//
// The comment takes precedence when both are present. A read carrying
// neither marker yields an ErrNoMate error.
func (r *Read) Mate() (Mate, error) {
	id := strings.TrimPrefix(r.ID, "@")
	name, comment := id, ""
	if i := strings.IndexAny(id, " \t"); i >= 0 {
		name, comment = id[:i], strings.TrimLeft(id[i+1:], " \t")
	}
	if len(comment) >= 2 && comment[1] == ':' {
		switch comment[0] {
		case '1':
			return Mate1, nil
		case '2':
			return Mate2, nil
		}
	}
	if n := len(name); n >= 2 && name[n-2] == '/' {
		switch name[n-1] {
		case '1':
			return Mate1, nil
		case '2':
			return Mate2, nil
		}
	}
	return 0, &ErrNoMate{ID: r.ID}
}

// Template returns the name shared by both mates of a pair: the ID without
// its '@', its comment, and any /1 or /2 suffix.
func Template(id string) string {
	name := strings.TrimPrefix(id, "@")
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}
	if n := len(name); n >= 2 && name[n-2] == '/' && (name[n-1] == '1' || name[n-1] == '2') {
		name = name[:n-2]
	}
	return name
}

// ErrNoMate reports a read whose orientation cannot be determined.
type ErrNoMate struct {
	ID string
}

func (e *ErrNoMate) Error() string {
	return fmt.Sprintf("fastq: no mate orientation marker in read %q", e.ID)
}
