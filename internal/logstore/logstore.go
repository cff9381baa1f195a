// Package logstore implements the append-only, single-writer storage
// primitive shared by the segment store and the id map: a growing data
// log plus a set of named sorted indices rebuilt on every flush.
//
// Entries written before a Flush are held in memory by the caller (the
// segment store and id map each keep their own typed volatile buffer);
// logstore itself never sees a record until it is committed, which
// keeps "durable" and "the result of the last Flush" synonymous.
package logstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/segdag/segdag/pkg/compression"
	"github.com/segdag/segdag/pkg/dagerrors"
)

var dataMagic = [4]byte{'S', 'D', 'L', 'G'}

const dataVersion = 1

// IndexEntry is one (key, offset) pair in a named index. offset points
// into the data log.
type IndexEntry struct {
	Key    []byte
	Offset int64
}

type index struct {
	name    string
	path    string
	entries []IndexEntry // durable, sorted by (Key, Offset)
}

// Log is a single append-only data file plus a set of named sorted
// indices. A writer holds an exclusive flock for the lifetime of the
// Log; readers open without locking and never write.
type Log struct {
	dir        string
	dataPath   string
	writable   bool
	compressor compression.Compressor

	mu       sync.RWMutex
	dataFile *os.File
	dataSize int64
	lockFile *os.File
	indices  map[string]*index
	closed   bool
}

// Options configures Open.
type Options struct {
	// Writable requests the exclusive writer lock. Only one writable
	// Log may be open against dir at a time.
	Writable bool
	// Indices lists the names of the sorted indices maintained
	// alongside the data log (e.g. "level_high", "parent_child").
	Indices []string
	// Compressor compresses record payloads before they hit the data
	// log. Defaults to compression.NewNoOpCompressor().
	Compressor compression.Compressor
}

// Open opens (creating if necessary) the log store rooted at dir.
func Open(dir string, opts Options) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dagerrors.Wrap(dagerrors.CodeIo, "create log dir", err)
	}
	comp := opts.Compressor
	if comp == nil {
		comp = compression.NewNoOpCompressor()
	}

	l := &Log{
		dir:        dir,
		dataPath:   filepath.Join(dir, "data.log"),
		writable:   opts.Writable,
		compressor: comp,
		indices:    make(map[string]*index),
	}

	flag := os.O_RDONLY
	if opts.Writable {
		flag = os.O_RDWR | os.O_CREATE
		lf, err := os.OpenFile(filepath.Join(dir, "LOCK"), os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, dagerrors.Wrap(dagerrors.CodeIo, "open lock file", err)
		}
		if err := syscall.Flock(int(lf.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			lf.Close()
			return nil, dagerrors.Wrap(dagerrors.CodeIo, "acquire exclusive lock: store is already open for writing", err)
		}
		l.lockFile = lf
	}

	df, err := os.OpenFile(l.dataPath, flag, 0o644)
	if err != nil {
		if os.IsNotExist(err) && !opts.Writable {
			df = nil
		} else {
			l.releaseLock()
			return nil, dagerrors.Wrap(dagerrors.CodeIo, "open data log", err)
		}
	}
	l.dataFile = df

	if df != nil {
		size, err := l.ensureHeader()
		if err != nil {
			l.releaseLock()
			return nil, err
		}
		l.dataSize = size
	}

	for _, name := range opts.Indices {
		idx, err := loadIndex(dir, name)
		if err != nil {
			l.releaseLock()
			return nil, err
		}
		l.indices[name] = idx
	}

	return l, nil
}

func (l *Log) releaseLock() {
	if l.dataFile != nil {
		l.dataFile.Close()
	}
	if l.lockFile != nil {
		syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_UN)
		l.lockFile.Close()
	}
}

// ensureHeader writes the file header if the data log is new, and
// returns the current size of the file including the header.
func (l *Log) ensureHeader() (int64, error) {
	info, err := l.dataFile.Stat()
	if err != nil {
		return 0, dagerrors.Wrap(dagerrors.CodeIo, "stat data log", err)
	}
	if info.Size() == 0 {
		if !l.writable {
			return 0, nil
		}
		hdr := make([]byte, 5)
		copy(hdr[0:4], dataMagic[:])
		hdr[4] = dataVersion
		if _, err := l.dataFile.Write(hdr); err != nil {
			return 0, dagerrors.Wrap(dagerrors.CodeIo, "write data log header", err)
		}
		if err := l.dataFile.Sync(); err != nil {
			return 0, dagerrors.Wrap(dagerrors.CodeIo, "sync data log header", err)
		}
		return 5, nil
	}
	hdr := make([]byte, 5)
	if _, err := l.dataFile.ReadAt(hdr, 0); err != nil {
		return 0, dagerrors.Wrap(dagerrors.CodeCorruption, "read data log header", err)
	}
	if string(hdr[0:4]) != string(dataMagic[:]) {
		return 0, dagerrors.New(dagerrors.CodeCorruption, "bad data log magic")
	}
	return info.Size(), nil
}

// ReadAt reads and decompresses one record at offset.
func (l *Log) ReadAt(offset int64) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.dataFile == nil {
		return nil, dagerrors.New(dagerrors.CodeCorruption, "read from empty store")
	}
	lenBuf := make([]byte, 4)
	if _, err := l.dataFile.ReadAt(lenBuf, offset); err != nil {
		return nil, dagerrors.Wrap(dagerrors.CodeIo, "read record length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf)
	payload := make([]byte, n)
	if _, err := l.dataFile.ReadAt(payload, offset+4); err != nil {
		return nil, dagerrors.Wrap(dagerrors.CodeIo, "read record payload", err)
	}
	return l.compressor.Decompress(payload)
}

// CommitBatch is one record plus the index entries it should be
// indexed under, keyed by index name.
type CommitBatch struct {
	Record  []byte
	Indexed map[string][][]byte // indexName -> list of keys this record is indexed under
}

// Commit appends records to the data log and updates every named
// index in a single durable step, fsyncing both before returning. It
// is the only path by which data becomes visible to a freshly-opened
// reader.
func (l *Log) Commit(batches []CommitBatch) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.writable {
		return nil, dagerrors.New(dagerrors.CodeInvalidInput, "commit on read-only log")
	}
	if l.dataFile == nil {
		return nil, dagerrors.New(dagerrors.CodeCorruption, "nil data file on writable log")
	}

	offsets := make([]int64, len(batches))
	w := bufio.NewWriter(l.dataFile)
	cursor := l.dataSize
	pendingByIndex := make(map[string][]IndexEntry)

	for i, b := range batches {
		payload, err := l.compressor.Compress(b.Record)
		if err != nil {
			return nil, dagerrors.Wrap(dagerrors.CodeIo, "compress record", err)
		}
		lenBuf := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBuf, uint32(len(payload)))
		if _, err := w.Write(lenBuf); err != nil {
			return nil, dagerrors.Wrap(dagerrors.CodeIo, "append record length", err)
		}
		if _, err := w.Write(payload); err != nil {
			return nil, dagerrors.Wrap(dagerrors.CodeIo, "append record payload", err)
		}
		offsets[i] = cursor
		for name, keys := range b.Indexed {
			for _, k := range keys {
				pendingByIndex[name] = append(pendingByIndex[name], IndexEntry{Key: k, Offset: cursor})
			}
		}
		cursor += int64(4 + len(payload))
	}
	if err := w.Flush(); err != nil {
		return nil, dagerrors.Wrap(dagerrors.CodeIo, "flush data log writer", err)
	}
	if err := l.dataFile.Sync(); err != nil {
		return nil, dagerrors.Wrap(dagerrors.CodeIo, "sync data log", err)
	}
	l.dataSize = cursor

	for name, pending := range pendingByIndex {
		idx, ok := l.indices[name]
		if !ok {
			idx = &index{name: name, path: indexPath(l.dir, name)}
			l.indices[name] = idx
		}
		merged := make([]IndexEntry, 0, len(idx.entries)+len(pending))
		merged = append(merged, idx.entries...)
		merged = append(merged, pending...)
		sort.Slice(merged, func(i, j int) bool {
			c := compareBytes(merged[i].Key, merged[j].Key)
			if c != 0 {
				return c < 0
			}
			return merged[i].Offset < merged[j].Offset
		})
		if err := writeIndex(idx.path, merged); err != nil {
			return nil, err
		}
		idx.entries = merged
	}

	return offsets, nil
}

// Lookup returns every offset stored under exactly key in the named
// index, ascending by offset.
func (l *Log) Lookup(indexName string, key []byte) []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.indices[indexName]
	if !ok {
		return nil
	}
	lo := sort.Search(len(idx.entries), func(i int) bool { return compareBytes(idx.entries[i].Key, key) >= 0 })
	var out []int64
	for i := lo; i < len(idx.entries) && compareBytes(idx.entries[i].Key, key) == 0; i++ {
		out = append(out, idx.entries[i].Offset)
	}
	return out
}

// Range returns every entry whose key lies in [low, high] (inclusive,
// lexicographic), ascending by (key, offset).
func (l *Log) Range(indexName string, low, high []byte) []IndexEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.indices[indexName]
	if !ok {
		return nil
	}
	lo := sort.Search(len(idx.entries), func(i int) bool { return compareBytes(idx.entries[i].Key, low) >= 0 })
	out := make([]IndexEntry, 0)
	for i := lo; i < len(idx.entries); i++ {
		if compareBytes(idx.entries[i].Key, high) > 0 {
			break
		}
		out = append(out, idx.entries[i])
	}
	return out
}

// All returns every entry in the named index, ascending.
func (l *Log) All(indexName string) []IndexEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.indices[indexName]
	if !ok {
		return nil
	}
	out := make([]IndexEntry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// Close releases the writer lock (if held) and closes the data file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	compression.Close(l.compressor)
	var err error
	if l.dataFile != nil {
		err = l.dataFile.Close()
	}
	if l.lockFile != nil {
		syscall.Flock(int(l.lockFile.Fd()), syscall.LOCK_UN)
		l.lockFile.Close()
	}
	return err
}

func compareBytes(a, b []byte) int {
	la, lb := len(a), len(b)
	n := la
	if lb < n {
		n = lb
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	default:
		return 0
	}
}

func indexPath(dir, name string) string {
	return filepath.Join(dir, "idx_"+name)
}

func loadIndex(dir, name string) (*index, error) {
	path := indexPath(dir, name)
	idx := &index{name: name, path: path}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, dagerrors.Wrap(dagerrors.CodeIo, fmt.Sprintf("open index %s", name), err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	for {
		var keyLen uint32
		if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
			if err == io.EOF {
				break
			}
			return nil, dagerrors.Wrap(dagerrors.CodeCorruption, fmt.Sprintf("read index %s", name), err)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, dagerrors.Wrap(dagerrors.CodeCorruption, fmt.Sprintf("read index %s key", name), err)
		}
		var offset int64
		if err := binary.Read(r, binary.BigEndian, &offset); err != nil {
			return nil, dagerrors.Wrap(dagerrors.CodeCorruption, fmt.Sprintf("read index %s offset", name), err)
		}
		idx.entries = append(idx.entries, IndexEntry{Key: key, Offset: offset})
	}
	return idx, nil
}

func writeIndex(path string, entries []IndexEntry) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return dagerrors.Wrap(dagerrors.CodeIo, "create index temp file", err)
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if err := binary.Write(w, binary.BigEndian, uint32(len(e.Key))); err != nil {
			f.Close()
			return dagerrors.Wrap(dagerrors.CodeIo, "write index key length", err)
		}
		if _, err := w.Write(e.Key); err != nil {
			f.Close()
			return dagerrors.Wrap(dagerrors.CodeIo, "write index key", err)
		}
		if err := binary.Write(w, binary.BigEndian, e.Offset); err != nil {
			f.Close()
			return dagerrors.Wrap(dagerrors.CodeIo, "write index offset", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return dagerrors.Wrap(dagerrors.CodeIo, "flush index temp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return dagerrors.Wrap(dagerrors.CodeIo, "sync index temp file", err)
	}
	if err := f.Close(); err != nil {
		return dagerrors.Wrap(dagerrors.CodeIo, "close index temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return dagerrors.Wrap(dagerrors.CodeIo, "rename index temp file", err)
	}
	return nil
}
