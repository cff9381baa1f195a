// Package segment implements the persistent, ordered collection of
// segment records that the dag engine builds and queries: flat
// records keyed by (level, high id), with a second index mapping
// external parent ids to the level-0 segments that reference them.
package segment

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/segdag/segdag/internal/logstore"
	"github.com/segdag/segdag/pkg/compression"
	"github.com/segdag/segdag/pkg/dagerrors"
	"github.com/segdag/segdag/pkg/spanset"
)

// Id is a dense commit identifier, shared with the spanset package.
type Id = spanset.Id

// FlagHasRoot marks a segment whose low id has no parents.
const FlagHasRoot uint8 = 1 << 0

const (
	levelHighIndex   = "level_high"
	parentChildIndex = "parent_child"
)

// Segment is one contiguous, single-chain run of ids plus the parents
// of its low id that fall outside the run.
type Segment struct {
	Level   uint8
	Flags   uint8
	Low     Id
	High    Id
	Parents []Id // ascending, deduplicated, all < Low
}

// IsRoot reports whether the segment's low id has no parents.
func (s Segment) IsRoot() bool {
	return s.Flags&FlagHasRoot != 0
}

// Size returns the number of ids the segment covers.
func (s Segment) Size() uint64 {
	return uint64(s.High-s.Low) + 1
}

// String renders the segment using the textual debug format:
// "low-high[p1, p2, ...]", prefixed with "R" for root segments.
func (s Segment) String() string {
	parts := make([]string, len(s.Parents))
	for i, p := range s.Parents {
		parts[i] = fmt.Sprintf("%d", p)
	}
	body := fmt.Sprintf("%d-%d[%s", s.Low, s.High, joinComma(parts))
	body += "]"
	if s.IsRoot() {
		return "R" + body
	}
	return body
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// Encode serializes a segment per the on-disk wire format:
//
//	u8 level
//	u8 flags
//	varint (high - low)
//	varint high
//	varint parents_count
//	varint[] parents, each delta-encoded as (high - parent)
func (s Segment) Encode() []byte {
	buf := make([]byte, 2, 2+binary.MaxVarintLen64*(3+len(s.Parents)))
	buf[0] = s.Level
	buf[1] = s.Flags
	buf = appendUvarint(buf, uint64(s.High-s.Low))
	buf = appendUvarint(buf, uint64(s.High))
	buf = appendUvarint(buf, uint64(len(s.Parents)))
	for _, p := range s.Parents {
		buf = appendUvarint(buf, uint64(s.High-p))
	}
	return buf
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// Decode parses a segment from its encoded form, validating the basic
// shape invariants (low <= high, parents strictly below low).
func Decode(data []byte) (Segment, error) {
	if len(data) < 2 {
		return Segment{}, dagerrors.New(dagerrors.CodeCorruption, "segment record too short")
	}
	level := data[0]
	flags := data[1]
	rest := data[2:]

	lengthMinus1, n := binary.Uvarint(rest)
	if n <= 0 {
		return Segment{}, dagerrors.New(dagerrors.CodeCorruption, "bad segment length varint")
	}
	rest = rest[n:]

	high, n := binary.Uvarint(rest)
	if n <= 0 {
		return Segment{}, dagerrors.New(dagerrors.CodeCorruption, "bad segment high varint")
	}
	rest = rest[n:]

	low := high - lengthMinus1
	if low > high {
		return Segment{}, dagerrors.New(dagerrors.CodeCorruption, "segment low > high")
	}

	count, n := binary.Uvarint(rest)
	if n <= 0 {
		return Segment{}, dagerrors.New(dagerrors.CodeCorruption, "bad segment parents_count varint")
	}
	rest = rest[n:]

	var parents []Id
	if count > 0 {
		parents = make([]Id, 0, count)
	}
	for i := uint64(0); i < count; i++ {
		delta, n := binary.Uvarint(rest)
		if n <= 0 {
			return Segment{}, dagerrors.New(dagerrors.CodeCorruption, "bad segment parent delta varint")
		}
		rest = rest[n:]
		p := Id(high) - Id(delta)
		if p >= Id(low) {
			return Segment{}, dagerrors.New(dagerrors.CodeCorruption, "segment parent id >= low")
		}
		parents = append(parents, p)
	}

	return Segment{
		Level:   level,
		Flags:   flags,
		Low:     Id(low),
		High:    Id(high),
		Parents: parents,
	}, nil
}

func levelHighKey(level uint8, high Id) []byte {
	key := make([]byte, 9)
	key[0] = level
	binary.BigEndian.PutUint64(key[1:], uint64(high))
	return key
}

func parentKey(id Id) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// Store is the persistent, ordered collection of segments for one dag
// directory. Segments inserted since the last Flush are held in a
// volatile in-memory tail and are visible to every query method before
// they become durable.
type Store struct {
	log *logstore.Log

	mu       sync.RWMutex
	byLevel  map[uint8][]Segment // durable + volatile, sorted by Low ascending
	volatile []Segment           // segments inserted since last Flush, in insertion order
}

// Open opens or creates the segment store rooted at dir.
func Open(dir string, writable bool, comp compression.Compressor) (*Store, error) {
	log, err := logstore.Open(dir, logstore.Options{
		Writable:   writable,
		Indices:    []string{levelHighIndex, parentChildIndex},
		Compressor: comp,
	})
	if err != nil {
		return nil, err
	}
	st := &Store{log: log, byLevel: make(map[uint8][]Segment)}
	if err := st.loadDurable(); err != nil {
		log.Close()
		return nil, err
	}
	return st, nil
}

func (st *Store) loadDurable() error {
	entries := st.log.All(levelHighIndex)
	for _, e := range entries {
		raw, err := st.log.ReadAt(e.Offset)
		if err != nil {
			return err
		}
		seg, err := Decode(raw)
		if err != nil {
			return err
		}
		st.byLevel[seg.Level] = append(st.byLevel[seg.Level], seg)
	}
	for lvl := range st.byLevel {
		sort.Slice(st.byLevel[lvl], func(i, j int) bool { return st.byLevel[lvl][i].Low < st.byLevel[lvl][j].Low })
	}
	return nil
}

// Insert appends seg to the volatile tail, rejecting a duplicate
// (level, high) key among already-known segments (durable or
// volatile).
func (st *Store) Insert(seg Segment) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if seg.Low > seg.High {
		return dagerrors.New(dagerrors.CodeInvalidInput, "segment low > high")
	}
	for _, existing := range st.byLevel[seg.Level] {
		if existing.High == seg.High {
			return dagerrors.New(dagerrors.CodeInvalidInput, fmt.Sprintf("segment (%d,%d) already exists", seg.Level, seg.High))
		}
	}
	st.byLevel[seg.Level] = insertSorted(st.byLevel[seg.Level], seg)
	st.volatile = append(st.volatile, seg)
	return nil
}

func insertSorted(segs []Segment, seg Segment) []Segment {
	i := sort.Search(len(segs), func(i int) bool { return segs[i].Low >= seg.Low })
	segs = append(segs, Segment{})
	copy(segs[i+1:], segs[i:])
	segs[i] = seg
	return segs
}

// Find returns the segment at exactly (level, high), if any.
func (st *Store) Find(level uint8, high Id) (Segment, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, seg := range st.byLevel[level] {
		if seg.High == high {
			return seg, true
		}
	}
	return Segment{}, false
}

// FindCovering returns the segment at level that contains id (Low <=
// id <= High), if any, found by binary search over High.
func (st *Store) FindCovering(level uint8, id Id) (Segment, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	segs := st.byLevel[level]
	i := sort.Search(len(segs), func(i int) bool { return segs[i].High >= id })
	if i < len(segs) && segs[i].Low <= id && id <= segs[i].High {
		return segs[i], true
	}
	return Segment{}, false
}

// Find0Covering is FindCovering at level 0, the level at which every
// id-to-segment boundary is exact.
func (st *Store) Find0Covering(id Id) (Segment, bool) {
	return st.FindCovering(0, id)
}

// FindCoveringBest returns the highest-level segment whose High field
// equals id exactly, falling back to the level-0 segment covering id
// if no level above 0 ends exactly at id.
//
// A level-0 segment's interior is a strict single-parent chain, so
// [Low, id] is a valid ancestor window for any id it covers. A
// higher-level segment's interior can branch internally at absorbed
// merge points, so [Low, id] is only safe there when id is exactly the
// segment's High — the one point its build rule proves every covered
// id is an ancestor of.
func (st *Store) FindCoveringBest(id Id) (Segment, bool) {
	for lvl := st.MaxLevel(); lvl > 0; lvl-- {
		if seg, ok := st.Find(lvl, id); ok {
			return seg, true
		}
	}
	return st.FindCovering(0, id)
}

// IterLevel returns the segments at level whose range overlaps
// [low, high], ascending by Low.
func (st *Store) IterLevel(level uint8, low, high Id) []Segment {
	st.mu.RLock()
	defer st.mu.RUnlock()
	segs := st.byLevel[level]
	out := make([]Segment, 0)
	for _, seg := range segs {
		if seg.High < low {
			continue
		}
		if seg.Low > high {
			break
		}
		out = append(out, seg)
	}
	return out
}

// AllAtLevel returns every segment at level, ascending by Low.
func (st *Store) AllAtLevel(level uint8) []Segment {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Segment, len(st.byLevel[level]))
	copy(out, st.byLevel[level])
	return out
}

// IterParentsOf returns the level-0 segments that list id as an
// external parent.
func (st *Store) IterParentsOf(id Id) []Segment {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Segment, 0)
	for _, seg := range st.byLevel[0] {
		for _, p := range seg.Parents {
			if p == id {
				out = append(out, seg)
				break
			}
		}
	}
	return out
}

// NextFreeId returns one past the highest High stored at level, or 0
// if level is empty.
func (st *Store) NextFreeId(level uint8) Id {
	st.mu.RLock()
	defer st.mu.RUnlock()
	segs := st.byLevel[level]
	if len(segs) == 0 {
		return 0
	}
	max := segs[0].High
	for _, seg := range segs {
		if seg.High > max {
			max = seg.High
		}
	}
	return max + 1
}

// MaxLevel returns the highest level with at least one segment, or 0
// if the store is empty.
func (st *Store) MaxLevel() uint8 {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var max uint8
	for lvl := range st.byLevel {
		if lvl > max {
			max = lvl
		}
	}
	return max
}

// Flush makes every volatile segment durable in a single commit.
func (st *Store) Flush() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.volatile) == 0 {
		return nil
	}
	batches := make([]logstore.CommitBatch, len(st.volatile))
	for i, seg := range st.volatile {
		indexed := map[string][][]byte{
			levelHighIndex: {levelHighKey(seg.Level, seg.High)},
		}
		if seg.Level == 0 {
			keys := make([][]byte, len(seg.Parents))
			for j, p := range seg.Parents {
				keys[j] = parentKey(p)
			}
			if len(keys) > 0 {
				indexed[parentChildIndex] = keys
			}
		}
		batches[i] = logstore.CommitBatch{Record: seg.Encode(), Indexed: indexed}
	}
	if _, err := st.log.Commit(batches); err != nil {
		return err
	}
	st.volatile = st.volatile[:0]
	return nil
}

// HasVolatile reports whether any segment is pending flush.
func (st *Store) HasVolatile() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.volatile) > 0
}

// DiscardVolatile drops the in-memory tail without flushing, used
// when a build fails partway through.
func (st *Store) DiscardVolatile() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, seg := range st.volatile {
		segs := st.byLevel[seg.Level]
		for i, existing := range segs {
			if existing.High == seg.High && existing.Low == seg.Low {
				st.byLevel[seg.Level] = append(segs[:i], segs[i+1:]...)
				break
			}
		}
	}
	st.volatile = st.volatile[:0]
}

// Close releases the underlying log store.
func (st *Store) Close() error {
	return st.log.Close()
}
