package spanset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spans(pairs ...[2]Id) []Span {
	out := make([]Span, len(pairs))
	for i, p := range pairs {
		out[i] = Span{Low: p[0], High: p[1]}
	}
	return out
}

func TestFromSpansNormalizes(t *testing.T) {
	s := FromSpans(spans([2]Id{0, 1}, [2]Id{2, 3}))
	// 0..=1 and 2..=3 are adjacent and must merge into one span.
	assert.Equal(t, "0..=3", s.String())
	assert.Equal(t, uint64(4), s.Count())
}

func TestFromSpansDedupesOverlap(t *testing.T) {
	s := FromSpans(spans([2]Id{5, 10}, [2]Id{8, 12}))
	assert.Equal(t, "5..=12", s.String())
}

func TestContains(t *testing.T) {
	s := FromSpans(spans([2]Id{0, 1}, [2]Id{4, 7}, [2]Id{10, 11}))
	for _, id := range []Id{0, 1, 4, 5, 6, 7, 10, 11} {
		assert.True(t, s.Contains(id), "expected %d to be contained", id)
	}
	for _, id := range []Id{2, 3, 8, 9, 12} {
		assert.False(t, s.Contains(id), "expected %d to be absent", id)
	}
}

func TestStringFormat(t *testing.T) {
	assert.Equal(t, "", Empty().String())
	assert.Equal(t, "0", Single(0).String())
	assert.Equal(t, "0..=6 8", FromSpans(spans([2]Id{0, 6}, [2]Id{8, 8})).String())
}

func TestUnion(t *testing.T) {
	a := FromSpans(spans([2]Id{0, 2}, [2]Id{8, 9}))
	b := FromSpans(spans([2]Id{1, 4}, [2]Id{10, 11}))
	got := a.Union(b)
	assert.Equal(t, "0..=4 8..=11", got.String())
}

func TestIntersection(t *testing.T) {
	a := Range(1, 10)
	b := FromSpans(spans([2]Id{6, 10}, [2]Id{0, 2}))
	got := a.Intersection(b)
	assert.Equal(t, "1..=2 6..=10", got.String())
}

func TestDifference(t *testing.T) {
	a := Range(0, 11)
	b := FromSpans(spans([2]Id{3, 5}, [2]Id{8, 8}))
	got := a.Difference(b)
	assert.Equal(t, "0..=2 6..=7 9..=11", got.String())
}

func TestMinMax(t *testing.T) {
	s := Empty()
	_, ok := s.Min()
	assert.False(t, ok)
	_, ok = s.Max()
	assert.False(t, ok)

	s = FromSpans(spans([2]Id{0, 1}, [2]Id{4, 7}))
	min, ok := s.Min()
	require.True(t, ok)
	assert.Equal(t, Id(0), min)
	max, ok := s.Max()
	require.True(t, ok)
	assert.Equal(t, Id(7), max)
}

func TestIterDescending(t *testing.T) {
	s := FromSpans(spans([2]Id{0, 1}, [2]Id{4, 5}))
	assert.Equal(t, []Id{5, 4, 1, 0}, s.Iter())
}

func TestPushSpanMergesAdjacent(t *testing.T) {
	var s SpanSet
	s.PushSpan(Span{Low: 10, High: 11})
	s.PushSpan(Span{Low: 8, High: 9})
	s.PushSpan(Span{Low: 0, High: 6})
	assert.Equal(t, "0..=6 8..=11", s.String())
}
