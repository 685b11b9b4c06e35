package lockset

import (
	"fmt"
	"sort"
)

// Mode selects the access level requested for a named lock.
type Mode int

const (
	Read Mode = iota
	Write
)

// String returns "read" or "write".
func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// Request names a single lock to acquire together with its access mode.
type Request struct {
	Name string
	Mode Mode
}

// Set is an immutable sequence of distinct requests sorted byte-wise by name.
// The zero value is an empty set.
type Set struct {
	reqs []Request
}

// DuplicateNameError reports a name that appeared more than once in the input
// to Build, in any combination of modes.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("lockset: %q requested more than once", e.Name)
}

// Build merges the given requests into a Set, rejecting duplicate names and
// sorting the result byte-wise by name. The sort order is the deadlock
// avoidance mechanism: it is fixed and independent of input order. An empty
// input yields an empty Set.
func Build(reqs ...Request) (Set, error) {
	seen := make(map[string]struct{}, len(reqs))
	merged := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		if _, ok := seen[r.Name]; ok {
			return Set{}, &DuplicateNameError{Name: r.Name}
		}
		seen[r.Name] = struct{}{}
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return Set{reqs: merged}, nil
}

// New builds a Set from separate lists of read and write lock names.
func New(read, write []string) (Set, error) {
	reqs := make([]Request, 0, len(read)+len(write))
	for _, n := range read {
		reqs = append(reqs, Request{Name: n, Mode: Read})
	}
	for _, n := range write {
		reqs = append(reqs, Request{Name: n, Mode: Write})
	}
	return Build(reqs...)
}

// Len returns the number of requests in the set.
func (s Set) Len() int {
	return len(s.reqs)
}

// Requests returns the requests in canonical order. The returned slice is a
// copy; mutating it does not affect the set.
func (s Set) Requests() []Request {
	return append([]Request(nil), s.reqs...)
}

// Names returns the lock names in canonical order.
func (s Set) Names() []string {
	names := make([]string, len(s.reqs))
	for i, r := range s.reqs {
		names[i] = r.Name
	}
	return names
}
