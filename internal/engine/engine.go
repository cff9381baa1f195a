// Package engine implements the dag engine: building the segment
// hierarchy from a head id and a parent oracle, and answering the
// ancestry query surface (parents, children, ancestors, descendants,
// heads, roots, range, gca, is_ancestor) over that hierarchy.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/segdag/segdag/internal/segment"
	"github.com/segdag/segdag/pkg/collections"
	"github.com/segdag/segdag/pkg/compression"
	"github.com/segdag/segdag/pkg/dagerrors"
	"github.com/segdag/segdag/pkg/spanset"
	"github.com/segdag/segdag/pkg/utils"
)

var tracer = otel.Tracer("github.com/segdag/segdag/internal/engine")

// Id is a dense commit identifier, shared with the spanset package.
type Id = spanset.Id

// DefaultSegmentSize is the number of level-(L-1) segments a level-L
// segment may cover, used when no explicit size is configured.
const DefaultSegmentSize = 64

// State is one of a Dag's three lifecycle states.
type State int

const (
	// StateEmpty holds no ids at all.
	StateEmpty State = iota
	// StateOpen has an in-memory volatile tail pending flush.
	StateOpen
	// StateFlushed has no pending volatile tail.
	StateFlushed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateOpen:
		return "Open"
	case StateFlushed:
		return "Flushed"
	default:
		return "Unknown"
	}
}

// GetParents resolves an id to its parent ids. It must be stable
// across a single BuildSegmentsVolatile call.
type GetParents func(id Id) ([]Id, error)

// Dag is the segment hierarchy and query engine for one directory.
type Dag struct {
	segments    *segment.Store
	segmentSize int
	timer       *utils.Timer

	mu    sync.RWMutex
	state State
}

// Open opens or creates the dag rooted at dir.
func Open(dir string, writable bool, comp compression.Compressor) (*Dag, error) {
	st, err := segment.Open(dir, writable, comp)
	if err != nil {
		return nil, err
	}
	d := &Dag{
		segments:    st,
		segmentSize: DefaultSegmentSize,
		timer:       utils.NewTimer("build_segments", utils.WithEnabled(false)),
	}
	if st.NextFreeId(0) == 0 {
		d.state = StateEmpty
	} else {
		d.state = StateFlushed
	}
	return d, nil
}

// EnableBuildTiming turns per-phase timing of BuildSegmentsVolatile on
// or off. Disabled by default so a plain build pays no timer overhead;
// "segdag build --timing" (see cmd/segdag/cmd/build.go) turns it on.
func (d *Dag) EnableBuildTiming(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timer = utils.NewTimer("build_segments", utils.WithEnabled(enabled))
}

// BuildTiming returns the phase timings recorded by the most recent
// BuildSegmentsVolatile call, empty unless EnableBuildTiming(true) was
// called first.
func (d *Dag) BuildTiming() *utils.Timer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.timer
}

// SetSegmentSize overrides how many level-(L-1) segments a level-L
// segment may cover. Level-0 segments are bounded by graph structure
// alone (a root, a merge, or a non-adjacent parent ends the chain),
// so small sizes here shape the hierarchy without fragmenting flat
// chains. Intended for tests that need predictable segment
// boundaries.
func (d *Dag) SetSegmentSize(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.segmentSize = n
}

// State returns the dag's current lifecycle state.
func (d *Dag) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Close releases the underlying segment store.
func (d *Dag) Close() error {
	return d.segments.Close()
}

func normalizeParents(parents []Id) []Id {
	if len(parents) == 0 {
		return nil
	}
	out := append([]Id(nil), parents...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	dedup := out[:1]
	for _, p := range out[1:] {
		if p != dedup[len(dedup)-1] {
			dedup = append(dedup, p)
		}
	}
	return dedup
}

// BuildSegmentsVolatile ensures every id up to and including head has
// been assigned to a level-0 segment and that the segment hierarchy
// above level 0 has been extended as far as the newly built ids allow.
// Calling it again with a head already covered is a no-op.
func (d *Dag) BuildSegmentsVolatile(head Id, getParents GetParents) error {
	_, span := tracer.Start(context.Background(), "engine.BuildSegmentsVolatile",
		trace.WithAttributes(attribute.Int64("segdag.head_id", int64(head))))
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()

	start := d.segments.NextFreeId(0)
	if head < start {
		return nil
	}

	d.timer.Reset()
	level0 := d.timer.Start("level0")
	err := d.buildLevel0(head, start, getParents)
	level0.Stop()
	if err != nil {
		d.segments.DiscardVolatile()
		return err
	}
	d.state = StateOpen

	for level := uint8(1); ; level++ {
		phase := d.timer.Start(fmt.Sprintf("level%d", level))
		progressed, err := d.buildHigherLevel(level)
		phase.Stop()
		if err != nil {
			d.segments.DiscardVolatile()
			return err
		}
		if !progressed || level == 255 {
			break
		}
	}
	return nil
}

func (d *Dag) buildLevel0(head, start Id, getParents GetParents) error {
	segHigh := head
	current := head
	for {
		parents, err := getParents(current)
		if err != nil {
			return err
		}
		sorted := normalizeParents(parents)

		// The chain extends downward only through a sole parent at
		// current-1. A root, a merge, or a jump to a non-adjacent
		// parent closes the segment with current as its low; so does
		// reaching the first unseen id.
		mustClose := len(sorted) != 1 ||
			sorted[0] != current-1 ||
			current == start

		if mustClose {
			var flags uint8
			if len(sorted) == 0 {
				flags |= segment.FlagHasRoot
			}
			seg := segment.Segment{Level: 0, Flags: flags, Low: current, High: segHigh, Parents: sorted}
			if err := d.segments.Insert(seg); err != nil {
				return err
			}
			if current == start {
				return nil
			}
			segHigh = current - 1
			current = segHigh
			continue
		}
		current--
	}
}

// buildHigherLevel extends level with the segments derivable from the
// level-1-below segments past the current high-water mark, reporting
// whether the level made progress. A level that would end up holding
// exactly as many segments as the one below it adds no batching power;
// its planned segments are discarded and the climb stops there.
func (d *Dag) buildHigherLevel(level uint8) (bool, error) {
	lower := d.segments.AllAtLevel(level - 1)
	if len(lower) < 2 {
		return false, nil
	}
	startLow := d.segments.NextFreeId(level)
	idx := sort.Search(len(lower), func(i int) bool { return lower[i].Low >= startLow })
	if idx == len(lower) {
		return false, nil
	}
	remaining := lower[idx:]

	var planned []segment.Segment
	i := 0
	for i < len(remaining) {
		maxSpan := len(remaining) - i
		if maxSpan > d.segmentSize {
			maxSpan = d.segmentSize
		}
		contigSpan := 1
		for contigSpan < maxSpan && remaining[i+contigSpan].Low == remaining[i+contigSpan-1].High+1 {
			contigSpan++
		}

		span := ancestrySpan(remaining[i : i+contigSpan])
		group := remaining[i : i+span]

		runningLow := group[0].Low
		runningHigh := group[span-1].High
		var extParents []Id
		for _, seg := range group {
			for _, p := range seg.Parents {
				if p < runningLow {
					extParents = append(extParents, p)
				}
			}
		}

		var flags uint8
		if group[0].IsRoot() {
			flags |= segment.FlagHasRoot
		}
		planned = append(planned, segment.Segment{
			Level:   level,
			Flags:   flags,
			Low:     runningLow,
			High:    runningHigh,
			Parents: normalizeParents(extParents),
		})
		i += span
	}

	if len(d.segments.AllAtLevel(level))+len(planned) >= len(lower) {
		return false, nil
	}
	for _, seg := range planned {
		if err := d.segments.Insert(seg); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ancestrySpan returns the length of the longest prefix of group whose
// id range is entirely ancestors of the prefix's last high id. That is
// the invariant every segment above level 0 must keep for queries to
// treat [low, high] as one batched ancestor step.
//
// Two level-(L-1) segments can sit at adjacent ids purely because the
// id map numbered two unrelated lineages back to back (independent
// roots, say); numeric adjacency alone never implies a graph edge. A
// constituent is safe to fold in exactly when its high id appears in
// the parent list of a later constituent already linked into the
// window: the constituent's own chain then hangs below a proven
// ancestor. A reference into the middle of a constituent is not
// enough, since the ids above the referenced point would ride along
// without being ancestors of the window's high.
func ancestrySpan(group []segment.Segment) int {
	for span := len(group); span > 1; span-- {
		linked := make([]bool, span)
		linked[span-1] = true
		ok := true
		for k := span - 2; k >= 0; k-- {
			hi := group[k].High
			found := false
			for m := k + 1; m < span && !found; m++ {
				if !linked[m] {
					continue
				}
				for _, p := range group[m].Parents {
					if p == hi {
						found = true
						break
					}
				}
			}
			linked[k] = found
			if !found {
				ok = false
				break
			}
		}
		if ok {
			return span
		}
	}
	return 1
}

// Flush makes every volatile segment durable.
func (d *Dag) Flush() error {
	_, span := tracer.Start(context.Background(), "engine.Flush")
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.segments.Flush(); err != nil {
		return err
	}
	if d.state == StateOpen {
		d.state = StateFlushed
	}
	return nil
}

func (d *Dag) checkRange(id Id) error {
	next := d.segments.NextFreeId(0)
	if next == 0 || id >= next {
		return dagerrors.Wrap(dagerrors.CodeInputOutOfRange, fmt.Sprintf("id %d >= next_free_id %d", id, next), nil)
	}
	return nil
}

// Parents returns, for every id in set, its immediate parent(s): id-1
// if id is not the low of its level-0 segment, otherwise that
// segment's external parents.
func (d *Dag) Parents(set spanset.SpanSet) (spanset.SpanSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	spans := make([]spanset.Span, 0)
	for _, id := range set.Iter() {
		if err := d.checkRange(id); err != nil {
			return spanset.Empty(), err
		}
		seg, ok := d.segments.Find0Covering(id)
		if !ok {
			return spanset.Empty(), dagerrors.New(dagerrors.CodeCorruption, fmt.Sprintf("no level-0 segment covers id %d", id))
		}
		if id > seg.Low {
			spans = append(spans, spanset.Span{Low: id - 1, High: id - 1})
			continue
		}
		for _, p := range seg.Parents {
			spans = append(spans, spanset.Span{Low: p, High: p})
		}
	}
	return spanset.FromSpans(spans), nil
}

// Children returns, for every id in set, the ids whose parent set
// includes it: id+1 if id is not the high of its level-0 segment, plus
// every level-0 segment that lists id as an external parent.
func (d *Dag) Children(set spanset.SpanSet) (spanset.SpanSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	spans := make([]spanset.Span, 0)
	for _, id := range set.Iter() {
		if err := d.checkRange(id); err != nil {
			return spanset.Empty(), err
		}
		seg, ok := d.segments.Find0Covering(id)
		if !ok {
			return spanset.Empty(), dagerrors.New(dagerrors.CodeCorruption, fmt.Sprintf("no level-0 segment covers id %d", id))
		}
		if id < seg.High {
			spans = append(spans, spanset.Span{Low: id + 1, High: id + 1})
		}
		for _, child := range d.segments.IterParentsOf(id) {
			spans = append(spans, spanset.Span{Low: child.Low, High: child.Low})
		}
	}
	return spanset.FromSpans(spans), nil
}

// Ancestors returns every id reachable from set by following parent
// edges, including set itself. It climbs to the highest-level segment
// covering each frontier id so that a single step can absorb an
// entire merged chain.
func (d *Dag) Ancestors(set spanset.SpanSet) (spanset.SpanSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	visited := spanset.Empty()
	seen := collections.NewIdSet(int(d.segments.NextFreeId(0)))
	queue := collections.NewQueue[Id](int(set.Count()))
	for _, id := range set.Iter() {
		if err := d.checkRange(id); err != nil {
			return spanset.Empty(), err
		}
		if !seen.TestAndSet(int(id)) {
			queue.Enqueue(id)
		}
	}
	for {
		id, ok := queue.Dequeue()
		if !ok {
			break
		}
		if visited.Contains(id) {
			continue
		}
		seg, ok := d.segments.FindCoveringBest(id)
		if !ok {
			return spanset.Empty(), dagerrors.New(dagerrors.CodeCorruption, fmt.Sprintf("no segment covers id %d", id))
		}
		visited = visited.Union(spanset.Range(seg.Low, id))
		for _, p := range seg.Parents {
			if !seen.TestAndSet(int(p)) {
				queue.Enqueue(p)
			}
		}
	}
	return visited, nil
}

// Descendants returns every id that can reach set by following parent
// edges in reverse, including set itself. It sweeps level-0 segments
// in ascending order of low: within one segment the interior is a
// chain, so once the lowest descendant x inside it is known the whole
// tail [x, high] joins the result, and a later segment joins when one
// of its external parents already landed in the result.
func (d *Dag) Descendants(set spanset.SpanSet) (spanset.SpanSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if set.IsEmpty() {
		return spanset.Empty(), nil
	}
	if max, _ := set.Max(); max >= d.segments.NextFreeId(0) {
		return spanset.Empty(), dagerrors.Wrap(dagerrors.CodeInputOutOfRange, fmt.Sprintf("id %d >= next_free_id %d", max, d.segments.NextFreeId(0)), nil)
	}
	min, _ := set.Min()

	result := spanset.Empty()
	for _, seg := range d.segments.AllAtLevel(0) {
		if seg.High < min {
			continue
		}
		var start Id
		found := false
		if seg.Low >= min {
			for _, p := range seg.Parents {
				if result.Contains(p) {
					start = seg.Low
					found = true
					break
				}
			}
		}
		if !found {
			if m, ok := set.Intersection(spanset.Range(seg.Low, seg.High)).Min(); ok {
				start = m
				found = true
			}
		}
		if found {
			result = result.Union(spanset.Range(start, seg.High))
		}
	}
	return result, nil
}

// Heads returns set minus Parents(set).
func (d *Dag) Heads(set spanset.SpanSet) (spanset.SpanSet, error) {
	p, err := d.Parents(set)
	if err != nil {
		return spanset.Empty(), err
	}
	return set.Difference(p), nil
}

// Roots returns set minus Children(set).
func (d *Dag) Roots(set spanset.SpanSet) (spanset.SpanSet, error) {
	c, err := d.Children(set)
	if err != nil {
		return spanset.Empty(), err
	}
	return set.Difference(c), nil
}

// Range returns the descendants of roots that are also ancestors of
// heads.
func (d *Dag) Range(roots, heads spanset.SpanSet) (spanset.SpanSet, error) {
	desc, err := d.Descendants(roots)
	if err != nil {
		return spanset.Empty(), err
	}
	anc, err := d.Ancestors(heads)
	if err != nil {
		return spanset.Empty(), err
	}
	return desc.Intersection(anc), nil
}

// GcaAll returns heads(ancestors({a}) intersect ancestors({b})): the
// antichain of greatest common ancestors of a and b.
func (d *Dag) GcaAll(a, b Id) (spanset.SpanSet, error) {
	ancA, err := d.Ancestors(spanset.Single(a))
	if err != nil {
		return spanset.Empty(), err
	}
	ancB, err := d.Ancestors(spanset.Single(b))
	if err != nil {
		return spanset.Empty(), err
	}
	return d.Heads(ancA.Intersection(ancB))
}

// GcaOne returns one element of GcaAll: the one with the largest id.
func (d *Dag) GcaOne(a, b Id) (Id, bool, error) {
	all, err := d.GcaAll(a, b)
	if err != nil {
		return 0, false, err
	}
	max, ok := all.Max()
	return max, ok, nil
}

// IsAncestor reports whether a is an ancestor of b, or a == b.
func (d *Dag) IsAncestor(a, b Id) (bool, error) {
	anc, err := d.Ancestors(spanset.Single(b))
	if err != nil {
		return false, err
	}
	return anc.Contains(a), nil
}

// All returns every id known to the dag: 0..=next_free_id(0)-1.
func (d *Dag) All() spanset.SpanSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	next := d.segments.NextFreeId(0)
	if next == 0 {
		return spanset.Empty()
	}
	return spanset.Range(0, next-1)
}

// Dump renders every level's segments in the textual debug format
// "Lv0: <seg> <seg> ...\nLv1: ...", ascending by low within a level.
func (d *Dag) Dump() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var lines []string
	for level := uint8(0); ; level++ {
		segs := d.segments.AllAtLevel(level)
		if len(segs) == 0 {
			break
		}
		parts := make([]string, len(segs))
		for i, s := range segs {
			parts[i] = s.String()
		}
		lines = append(lines, fmt.Sprintf("Lv%d: %s", level, strings.Join(parts, " ")))
		if level == 255 {
			break
		}
	}
	return strings.Join(lines, "\n")
}
