package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segdag/segdag/pkg/compression"
)

func TestSegmentString(t *testing.T) {
	root := Segment{Low: 0, High: 1, Flags: FlagHasRoot}
	assert.Equal(t, "R0-1[]", root.String())

	mid := Segment{Low: 4, High: 7, Parents: []Id{1, 3}}
	assert.Equal(t, "4-7[1, 3]", mid.String())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	seg := Segment{Level: 1, Flags: FlagHasRoot, Low: 10, High: 14, Parents: []Id{2, 5}}
	encoded := seg.Encode()
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, seg, decoded)
}

func TestEncodeDecodeNoParents(t *testing.T) {
	seg := Segment{Level: 0, Low: 8, High: 8}
	decoded, err := Decode(seg.Encode())
	require.NoError(t, err)
	assert.Equal(t, seg, decoded)
	assert.False(t, decoded.IsRoot())
}

func TestDecodeRejectsParentAboveLow(t *testing.T) {
	seg := Segment{Level: 0, Low: 5, High: 9, Parents: []Id{6}}
	_, err := Decode(seg.Encode())
	assert.Error(t, err)
}

func TestStoreInsertFindFlush(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	defer st.Close()

	segs := []Segment{
		{Level: 0, Flags: FlagHasRoot, Low: 0, High: 1},
		{Level: 0, Flags: FlagHasRoot, Low: 2, High: 3},
		{Level: 0, Low: 4, High: 7, Parents: []Id{1, 3}},
	}
	for _, s := range segs {
		require.NoError(t, st.Insert(s))
	}

	found, ok := st.Find(0, 7)
	require.True(t, ok)
	assert.Equal(t, Id(4), found.Low)

	assert.Equal(t, Id(8), st.NextFreeId(0))

	require.NoError(t, st.Flush())
	assert.False(t, st.HasVolatile())

	parentsOf1 := st.IterParentsOf(1)
	require.Len(t, parentsOf1, 1)
	assert.Equal(t, Id(4), parentsOf1[0].Low)
}

func TestIterLevelOverlap(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	defer st.Close()

	for _, s := range []Segment{
		{Level: 0, Flags: FlagHasRoot, Low: 0, High: 1},
		{Level: 0, Flags: FlagHasRoot, Low: 2, High: 3},
		{Level: 0, Low: 4, High: 7, Parents: []Id{1, 3}},
		{Level: 0, Low: 8, High: 9, Parents: []Id{6}},
	} {
		require.NoError(t, st.Insert(s))
	}

	got := st.IterLevel(0, 3, 8)
	require.Len(t, got, 3)
	assert.Equal(t, Id(2), got[0].Low)
	assert.Equal(t, Id(4), got[1].Low)
	assert.Equal(t, Id(8), got[2].Low)
}

func TestStoreRejectsDuplicateHigh(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Insert(Segment{Level: 0, Low: 0, High: 3}))
	err = st.Insert(Segment{Level: 0, Low: 2, High: 3})
	assert.Error(t, err)
}

func TestStoreReopenAfterFlush(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	require.NoError(t, w.Insert(Segment{Level: 0, Flags: FlagHasRoot, Low: 0, High: 5}))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	r, err := Open(dir, false, compression.NewNoOpCompressor())
	require.NoError(t, err)
	defer r.Close()
	found, ok := r.Find(0, 5)
	require.True(t, ok)
	assert.True(t, found.IsRoot())
}
