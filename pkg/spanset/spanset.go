// Package spanset provides a compact representation of a set of
// non-negative integer ids as a list of descending, disjoint,
// non-adjacent inclusive ranges.
//
// A SpanSet's canonical form is unique for a given mathematical set:
// spans are kept sorted by descending high id, pairwise disjoint, and
// never adjacent (two spans differing by exactly one id are merged).
// Every method on SpanSet preserves this invariant.
package spanset

import (
	"fmt"
	"sort"
	"strings"
)

// Id is a dense, non-negative 64-bit commit identifier.
type Id uint64

// Span is a closed interval [Low, High] of ids, Low <= High.
type Span struct {
	Low  Id
	High Id
}

// Size returns the number of ids covered by the span.
func (s Span) Size() uint64 {
	return uint64(s.High-s.Low) + 1
}

// SpanSet is a canonical, descending, disjoint, non-adjacent sequence
// of Spans.
type SpanSet struct {
	spans []Span
}

// Empty returns an empty SpanSet.
func Empty() SpanSet {
	return SpanSet{}
}

// FromSpans builds a SpanSet from arbitrary (possibly overlapping,
// unsorted) spans, normalizing them into canonical form.
func FromSpans(spans []Span) SpanSet {
	var s SpanSet
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].High > sorted[j].High })
	for _, sp := range sorted {
		s.pushSpanUnchecked(sp)
	}
	return s
}

// FromIds builds a SpanSet from an arbitrary list of ids.
func FromIds(ids []Id) SpanSet {
	spans := make([]Span, len(ids))
	for i, id := range ids {
		spans[i] = Span{Low: id, High: id}
	}
	return FromSpans(spans)
}

// Single returns a SpanSet containing exactly one id.
func Single(id Id) SpanSet {
	return SpanSet{spans: []Span{{Low: id, High: id}}}
}

// Range returns a SpanSet containing the closed interval [low, high].
// If low > high the result is empty.
func Range(low, high Id) SpanSet {
	if low > high {
		return Empty()
	}
	return SpanSet{spans: []Span{{Low: low, High: high}}}
}

// pushSpanUnchecked merges sp into the tail of s assuming sp.High is
// less than or equal to the current minimum low seen so far minus one,
// i.e. spans arrive in descending order. It is the only place spans
// are appended; every normalizing operation funnels through it.
func (s *SpanSet) pushSpanUnchecked(sp Span) {
	if sp.Low > sp.High {
		return
	}
	if len(s.spans) == 0 {
		s.spans = append(s.spans, sp)
		return
	}
	last := &s.spans[len(s.spans)-1]
	if sp.High+1 == last.Low || sp.High >= last.Low {
		// Adjacent (sp ends exactly one below last) or overlapping: merge.
		if sp.Low < last.Low {
			last.Low = sp.Low
		}
		if sp.High > last.High {
			last.High = sp.High
		}
		return
	}
	s.spans = append(s.spans, sp)
}

// PushSpan appends a span that must compare <= all existing spans
// (i.e. sp.High must be less than the current minimum Low, or adjacent
// to it). It merges on adjacency, preserving the descending-order
// invariant required of callers that build a SpanSet incrementally.
func (s *SpanSet) PushSpan(sp Span) {
	if sp.Low > sp.High {
		return
	}
	s.pushSpanUnchecked(sp)
}

// IsEmpty reports whether the set has no ids.
func (s SpanSet) IsEmpty() bool {
	return len(s.spans) == 0
}

// Contains reports whether id is a member of the set, via binary
// search over the descending spans.
func (s SpanSet) Contains(id Id) bool {
	spans := s.spans
	lo, hi := 0, len(spans)
	for lo < hi {
		mid := (lo + hi) / 2
		sp := spans[mid]
		switch {
		case id > sp.High:
			hi = mid
		case id < sp.Low:
			lo = mid + 1
		default:
			return true
		}
	}
	return false
}

// Count returns the total number of ids in the set.
func (s SpanSet) Count() uint64 {
	var n uint64
	for _, sp := range s.spans {
		n += sp.Size()
	}
	return n
}

// Spans returns the canonical descending spans. The returned slice
// must not be mutated by the caller.
func (s SpanSet) Spans() []Span {
	return s.spans
}

// Min returns the smallest id in the set.
func (s SpanSet) Min() (Id, bool) {
	if len(s.spans) == 0 {
		return 0, false
	}
	return s.spans[len(s.spans)-1].Low, true
}

// Max returns the largest id in the set.
func (s SpanSet) Max() (Id, bool) {
	if len(s.spans) == 0 {
		return 0, false
	}
	return s.spans[0].High, true
}

// Iter returns the set's ids in descending order.
func (s SpanSet) Iter() []Id {
	ids := make([]Id, 0, s.Count())
	for _, sp := range s.spans {
		for id := sp.High; ; id-- {
			ids = append(ids, id)
			if id == sp.Low {
				break
			}
		}
	}
	return ids
}

// Union returns the set union of s and other.
func (s SpanSet) Union(other SpanSet) SpanSet {
	var result SpanSet
	a, b := s.spans, other.spans
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].High >= b[j].High {
			result.pushSpanUnchecked(a[i])
			i++
		} else {
			result.pushSpanUnchecked(b[j])
			j++
		}
	}
	for ; i < len(a); i++ {
		result.pushSpanUnchecked(a[i])
	}
	for ; j < len(b); j++ {
		result.pushSpanUnchecked(b[j])
	}
	return result
}

// Intersection returns the set intersection of s and other.
//
// Spans within a SpanSet are sorted descending by High, so walking
// both slices from the tail forward visits spans in ascending order,
// letting this use the standard sorted-interval-list intersection
// sweep (advance whichever interval's High is smaller).
func (s SpanSet) Intersection(other SpanSet) SpanSet {
	a, b := s.spans, other.spans
	i, j := len(a)-1, len(b)-1
	var ascending []Span
	for i >= 0 && j >= 0 {
		A, B := a[i], b[j]
		lo := A.Low
		if B.Low > lo {
			lo = B.Low
		}
		hi := A.High
		if B.High < hi {
			hi = B.High
		}
		if lo <= hi {
			ascending = append(ascending, Span{Low: lo, High: hi})
		}
		if A.High < B.High {
			i--
		} else {
			j--
		}
	}
	var result SpanSet
	for k := len(ascending) - 1; k >= 0; k-- {
		result.pushSpanUnchecked(ascending[k])
	}
	return result
}

// Difference returns the ids in s that are not in other.
func (s SpanSet) Difference(other SpanSet) SpanSet {
	var result SpanSet
	a, b := s.spans, other.spans
	j := 0
	for _, sp := range a {
		low, high := sp.Low, sp.High
		for high >= low {
			for j < len(b) && b[j].High > high {
				j++
			}
			if j >= len(b) || b[j].High < low {
				result.pushSpanUnchecked(Span{Low: low, High: high})
				break
			}
			bsp := b[j]
			if bsp.High < high {
				result.pushSpanUnchecked(Span{Low: bsp.High + 1, High: high})
			}
			if bsp.Low <= low {
				break
			}
			high = bsp.Low - 1
		}
	}
	return result
}

// gca comparison helpers live in the engine package; SpanSet itself
// stays ignorant of the dag it came from.

// String renders the set in ascending order: a run of length 1 prints
// as the bare id, a run of length >= 2 prints as "low..=high". Runs are
// space-separated; the empty set prints as the empty string.
func (s SpanSet) String() string {
	if len(s.spans) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.spans))
	for i := len(s.spans) - 1; i >= 0; i-- {
		sp := s.spans[i]
		if sp.Low == sp.High {
			parts = append(parts, fmt.Sprintf("%d", sp.Low))
		} else {
			parts = append(parts, fmt.Sprintf("%d..=%d", sp.Low, sp.High))
		}
	}
	return strings.Join(parts, " ")
}
