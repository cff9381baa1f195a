package logstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitAndReadAt(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{Writable: true, Indices: []string{"by_key"}})
	require.NoError(t, err)
	defer l.Close()

	offsets, err := l.Commit([]CommitBatch{
		{Record: []byte("alpha"), Indexed: map[string][][]byte{"by_key": {[]byte("a")}}},
		{Record: []byte("beta"), Indexed: map[string][][]byte{"by_key": {[]byte("b")}}},
	})
	require.NoError(t, err)
	require.Len(t, offsets, 2)

	got, err := l.ReadAt(offsets[0])
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))

	got, err = l.ReadAt(offsets[1])
	require.NoError(t, err)
	assert.Equal(t, "beta", string(got))
}

func TestLookupAndRange(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{Writable: true, Indices: []string{"num"}})
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Commit([]CommitBatch{
		{Record: []byte("r1"), Indexed: map[string][][]byte{"num": {{0, 0, 0, 1}}}},
		{Record: []byte("r2"), Indexed: map[string][][]byte{"num": {{0, 0, 0, 2}}}},
		{Record: []byte("r3"), Indexed: map[string][][]byte{"num": {{0, 0, 0, 3}}}},
	})
	require.NoError(t, err)

	offs := l.Lookup("num", []byte{0, 0, 0, 2})
	require.Len(t, offs, 1)
	rec, err := l.ReadAt(offs[0])
	require.NoError(t, err)
	assert.Equal(t, "r2", string(rec))

	ranged := l.Range("num", []byte{0, 0, 0, 1}, []byte{0, 0, 0, 2})
	require.Len(t, ranged, 2)
}

func TestDuplicateKeysAccumulate(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, Options{Writable: true, Indices: []string{"parent"}})
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Commit([]CommitBatch{
		{Record: []byte("child-a"), Indexed: map[string][][]byte{"parent": {[]byte("p")}}},
		{Record: []byte("child-b"), Indexed: map[string][][]byte{"parent": {[]byte("p")}}},
	})
	require.NoError(t, err)

	offs := l.Lookup("parent", []byte("p"))
	assert.Len(t, offs, 2)
}

func TestReopenReadOnlySeesCommittedData(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, Options{Writable: true, Indices: []string{"k"}})
	require.NoError(t, err)
	_, err = w.Commit([]CommitBatch{
		{Record: []byte("persisted"), Indexed: map[string][][]byte{"k": {[]byte("x")}}},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := Open(dir, Options{Writable: false, Indices: []string{"k"}})
	require.NoError(t, err)
	defer r.Close()

	offs := r.Lookup("k", []byte("x"))
	require.Len(t, offs, 1)
	rec, err := r.ReadAt(offs[0])
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(rec))
}

func TestSecondWriterRejected(t *testing.T) {
	dir := t.TempDir()
	w1, err := Open(dir, Options{Writable: true})
	require.NoError(t, err)
	defer w1.Close()

	_, err = Open(dir, Options{Writable: true})
	assert.Error(t, err)
}
