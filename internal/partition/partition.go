// Package partition splits app and content collections into per-type
// buckets and enforces the numeric id range reserved for each type.
package partition

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Range is an inclusive numeric id range
type Range struct {
	Min int
	Max int
}

// Contains reports whether n is inside the range
func (r Range) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// Policy decides how non-numeric ids are treated
type Policy string

const (
	// Lenient range-checks ids that start with an integer and accepts ids
	// containing "_" and anything else
	Lenient Policy = "lenient"
	// Strict accepts in-range numeric ids and "<digits>_<alnum>" ids only
	Strict Policy = "strict"
)

// DefaultRanges are the reserved id ranges per collection type
var DefaultRanges = map[string]Range{
	"appstory": {Min: 1, Max: 9999},
	"news":     {Min: 10000, Max: 19999},
	"gallery":  {Min: 20000, Max: 29999},
}

// ErrRangeExhausted is returned by NextID when every id in a range is taken
var ErrRangeExhausted = errors.New("id range exhausted")

var (
	adHocID = regexp.MustCompile(`^[0-9]+_[A-Za-z0-9]+$`)
	// leadingInt matches how a loose integer parse reads an id: optional
	// space and sign, then digits, ignoring any trailing text
	leadingInt = regexp.MustCompile(`^\s*([+-]?[0-9]+)`)
)

// Partitioner applies one set of ranges under one policy
type Partitioner struct {
	ranges map[string]Range
	policy Policy
}

// New creates a partitioner. A nil ranges map uses DefaultRanges.
func New(ranges map[string]Range, policy Policy) *Partitioner {
	if ranges == nil {
		ranges = DefaultRanges
	}
	if policy == "" {
		policy = Lenient
	}
	return &Partitioner{ranges: ranges, policy: policy}
}

// ParsePolicy maps a config value to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case Lenient, Strict:
		return Policy(s), nil
	case "":
		return Lenient, nil
	}
	return "", fmt.Errorf("unknown id policy %q", s)
}

// Accept reports whether id may live in the typ bucket. Types without a
// declared range accept any non-empty id.
func (p *Partitioner) Accept(typ, id string) bool {
	if id == "" {
		return false
	}
	r, ok := p.ranges[typ]
	if !ok {
		return true
	}

	if p.policy == Strict {
		if n, ok := parseInt(id); ok {
			return r.Contains(n)
		}
		return adHocID.MatchString(id)
	}

	if strings.Contains(id, "_") {
		return true
	}
	if m := leadingInt.FindStringSubmatch(id); m != nil {
		n, err := strconv.Atoi(m[1])
		return err == nil && r.Contains(n)
	}
	return true
}

// Separate groups items by their type, dropping items whose id is not
// accepted for that type. Every kept item appears in exactly one bucket.
func Separate[T any](p *Partitioner, items []T, typeOf, idOf func(T) string) map[string][]T {
	out := make(map[string][]T)
	for _, item := range items {
		typ := typeOf(item)
		if !p.Accept(typ, idOf(item)) {
			continue
		}
		out[typ] = append(out[typ], item)
	}
	return out
}

// Split checks items destined for the typ bucket and returns the accepted
// ones and the rejected ones, each in input order
func Split[T any](p *Partitioner, typ string, items []T, idOf func(T) string) (accepted, rejected []T) {
	accepted = make([]T, 0, len(items))
	for _, item := range items {
		if p.Accept(typ, idOf(item)) {
			accepted = append(accepted, item)
		} else {
			rejected = append(rejected, item)
		}
	}
	return accepted, rejected
}

// NextID allocates the lowest unused id above the highest one in use for
// typ, wrapping to the first gap when the top of the range is reached
func (p *Partitioner) NextID(typ string, existing []string) (string, error) {
	r, ok := p.ranges[typ]
	if !ok {
		return "", fmt.Errorf("no id range for type %q", typ)
	}

	used := make(map[int]bool)
	highest := r.Min - 1
	for _, id := range existing {
		n, ok := parseInt(id)
		if !ok || !r.Contains(n) {
			continue
		}
		used[n] = true
		if n > highest {
			highest = n
		}
	}

	if highest < r.Max {
		return strconv.Itoa(highest + 1), nil
	}
	for n := r.Min; n <= r.Max; n++ {
		if !used[n] {
			return strconv.Itoa(n), nil
		}
	}
	return "", fmt.Errorf("%s: %w", typ, ErrRangeExhausted)
}

// parseInt parses a whole id as a signed integer, ignoring surrounding space
func parseInt(id string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	return n, err == nil
}
