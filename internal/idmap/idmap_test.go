package idmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segdag/segdag/pkg/compression"
	"github.com/segdag/segdag/pkg/dagerrors"
)

// linearGraph encodes A-B-C-D-E as single-letter names, each with one
// parent, so traversal order is fully predictable.
func linearGraph(t *testing.T) ParentsByName {
	parents := map[string][]string{
		"A": {},
		"B": {"A"},
		"C": {"B"},
		"D": {"C"},
		"E": {"D"},
	}
	return func(name []byte) ([][]byte, error) {
		ps, ok := parents[string(name)]
		require.True(t, ok, "unexpected name %q", name)
		out := make([][]byte, len(ps))
		for i, p := range ps {
			out[i] = []byte(p)
		}
		return out, nil
	}
}

func TestAssignHeadTopologicalOrder(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.AssignHead([]byte("E"), linearGraph(t)))

	idA, ok := m.FindIdByName([]byte("A"))
	require.True(t, ok)
	idB, _ := m.FindIdByName([]byte("B"))
	idC, _ := m.FindIdByName([]byte("C"))
	idD, _ := m.FindIdByName([]byte("D"))
	idE, _ := m.FindIdByName([]byte("E"))

	assert.True(t, idA < idB)
	assert.True(t, idB < idC)
	assert.True(t, idC < idD)
	assert.True(t, idD < idE)
	assert.Equal(t, idE+1, m.NextFreeId())
}

func TestAssignHeadIdempotent(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.AssignHead([]byte("E"), linearGraph(t)))
	before := m.NextFreeId()
	require.NoError(t, m.AssignHead([]byte("E"), linearGraph(t)))
	assert.Equal(t, before, m.NextFreeId())
}

func TestAssignHeadDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	defer m.Close()

	cyclic := func(name []byte) ([][]byte, error) {
		switch string(name) {
		case "X":
			return [][]byte{[]byte("Y")}, nil
		case "Y":
			return [][]byte{[]byte("X")}, nil
		}
		return nil, nil
	}
	err = m.AssignHead([]byte("X"), cyclic)
	require.Error(t, err)
	assert.True(t, dagerrors.IsCycle(err))

	_, ok := m.FindIdByName([]byte("X"))
	assert.False(t, ok, "cycle must not leave partial assignments visible")
}

func TestAssignHeadDiamondSharedAncestor(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	defer m.Close()

	parents := map[string][]string{
		"A": {},
		"B": {"A"},
		"D": {"A"},
		"C": {"B", "D"},
	}
	cb := func(name []byte) ([][]byte, error) {
		ps := parents[string(name)]
		out := make([][]byte, len(ps))
		for i, p := range ps {
			out[i] = []byte(p)
		}
		return out, nil
	}
	require.NoError(t, m.AssignHead([]byte("C"), cb))

	idA, _ := m.FindIdByName([]byte("A"))
	idB, _ := m.FindIdByName([]byte("B"))
	idD, _ := m.FindIdByName([]byte("D"))
	idC, _ := m.FindIdByName([]byte("C"))
	assert.True(t, idA < idB)
	assert.True(t, idA < idD)
	assert.True(t, idB < idC)
	assert.True(t, idD < idC)
	// A must only be assigned once despite two paths reaching it.
	assert.Equal(t, uint64(4), uint64(idC)+1)
}

func TestFlushPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	require.NoError(t, w.AssignHead([]byte("E"), linearGraph(t)))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	r, err := Open(dir, false, compression.NewNoOpCompressor())
	require.NoError(t, err)
	defer r.Close()

	id, ok := r.FindIdByName([]byte("E"))
	require.True(t, ok)
	name, ok := r.FindNameById(id)
	require.True(t, ok)
	assert.Equal(t, "E", string(name))
}

func TestDebugReplace(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	defer m.Close()

	m.DebugReplace(0, []byte("A"))
	m.DebugReplace(1, []byte("B"))
	id, ok := m.FindIdByName([]byte("B"))
	require.True(t, ok)
	assert.Equal(t, Id(1), id)
	assert.Equal(t, Id(2), m.NextFreeId())
}
