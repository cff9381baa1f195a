// Package idmap implements the bidirectional, persistent mapping
// between opaque byte names and dense integer ids, assigned by a
// reverse post-order walk so that every parent's id is smaller than
// its child's.
package idmap

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/segdag/segdag/internal/logstore"
	"github.com/segdag/segdag/pkg/collections"
	"github.com/segdag/segdag/pkg/compression"
	"github.com/segdag/segdag/pkg/dagerrors"
	"github.com/segdag/segdag/pkg/spanset"
)

var tracer = otel.Tracer("github.com/segdag/segdag/internal/idmap")

// Id is a dense commit identifier, shared with the spanset package.
type Id = spanset.Id

const (
	nameToIdIndex = "name_to_id"
	idToNameIndex = "id_to_name"
)

// ParentsByName resolves a name to the names of its parents. It must
// be total on every name reachable from the traversal's root and
// referentially transparent for the duration of a single AssignHead
// call.
type ParentsByName func(name []byte) ([][]byte, error)

type entry struct {
	Name []byte
	Id   Id
}

// IdMap is the name<->id mapping for one dag directory.
type IdMap struct {
	log *logstore.Log

	mu       sync.RWMutex
	nameToId map[string]Id
	idToName map[Id]string
	volatile []entry
	nextId   Id
}

// Open opens or creates the id map rooted at dir.
func Open(dir string, writable bool, comp compression.Compressor) (*IdMap, error) {
	log, err := logstore.Open(dir, logstore.Options{
		Writable:   writable,
		Indices:    []string{nameToIdIndex, idToNameIndex},
		Compressor: comp,
	})
	if err != nil {
		return nil, err
	}
	m := &IdMap{
		log:      log,
		nameToId: make(map[string]Id),
		idToName: make(map[Id]string),
	}
	if err := m.loadDurable(); err != nil {
		log.Close()
		return nil, err
	}
	return m, nil
}

func (m *IdMap) loadDurable() error {
	entries := m.log.All(idToNameIndex)
	for _, e := range entries {
		raw, err := m.log.ReadAt(e.Offset)
		if err != nil {
			return err
		}
		id, name, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		m.nameToId[string(name)] = id
		m.idToName[id] = string(name)
		if id >= m.nextId {
			m.nextId = id + 1
		}
	}
	return nil
}

func decodeEntry(raw []byte) (Id, []byte, error) {
	if len(raw) < 8 {
		return 0, nil, dagerrors.New(dagerrors.CodeCorruption, "id map record too short")
	}
	id := Id(binary.BigEndian.Uint64(raw[:8]))
	name := append([]byte(nil), raw[8:]...)
	return id, name, nil
}

func encodeEntry(id Id, name []byte) []byte {
	buf := make([]byte, 8+len(name))
	binary.BigEndian.PutUint64(buf[:8], uint64(id))
	copy(buf[8:], name)
	return buf
}

// FindIdByName returns the id assigned to name, if any.
func (m *IdMap) FindIdByName(name []byte) (Id, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.nameToId[string(name)]
	return id, ok
}

// FindNameById returns the name assigned to id, if any.
func (m *IdMap) FindNameById(id Id) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.idToName[id]
	if !ok {
		return nil, false
	}
	return []byte(name), true
}

// NextFreeId returns one past the highest assigned id, or 0 if the
// map is empty.
func (m *IdMap) NextFreeId() Id {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextId
}

type dfsFrame struct {
	name    []byte
	parents [][]byte
	idx     int
}

// AssignHead ensures name and every unassigned ancestor reachable
// through parentsByName has an id, walking parents before children so
// that a node's id is always greater than every parent's. The walk is
// a no-op if name already has an id.
//
// A name reappearing on the traversal stack before it completes is a
// cycle and aborts the whole call without mutating any state; an
// unresolvable name from parentsByName is reported as NameNotFound.
func (m *IdMap) AssignHead(name []byte, parentsByName ParentsByName) error {
	_, span := tracer.Start(context.Background(), "idmap.AssignHead",
		trace.WithAttributes(attribute.String("segdag.head_name", string(name))))
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nameToId[string(name)]; ok {
		return nil
	}

	var order [][]byte
	visiting := make(map[string]bool)
	queued := make(map[string]bool)
	stack := collections.NewStack[*dfsFrame](16)

	enter := func(n []byte) error {
		key := string(n)
		if _, ok := m.nameToId[key]; ok {
			return nil
		}
		if queued[key] {
			if visiting[key] {
				return dagerrors.Wrap(dagerrors.CodeCycle, fmt.Sprintf("cycle detected involving name %x", n), nil)
			}
			return nil
		}
		parents, err := parentsByName(n)
		if err != nil {
			return dagerrors.Wrap(dagerrors.CodeNameNotFound, fmt.Sprintf("parents lookup failed for name %x", n), err)
		}
		visiting[key] = true
		queued[key] = true
		stack.Push(&dfsFrame{name: append([]byte(nil), n...), parents: parents})
		return nil
	}

	if err := enter(name); err != nil {
		return err
	}
	for {
		top, ok := stack.Peek()
		if !ok {
			break
		}
		if top.idx < len(top.parents) {
			p := top.parents[top.idx]
			top.idx++
			if err := enter(p); err != nil {
				return err
			}
			continue
		}
		visiting[string(top.name)] = false
		order = append(order, top.name)
		stack.Pop()
	}

	for _, nm := range order {
		id := m.nextId
		m.nextId++
		m.nameToId[string(nm)] = id
		m.idToName[id] = string(nm)
		m.volatile = append(m.volatile, entry{Name: nm, Id: id})
	}
	return nil
}

// BuildGetParentsByID adapts a name-keyed parent callback into an
// id-keyed one for the dag engine, translating every name through
// this map. Names that AssignHead has not yet resolved are a
// programming error in the caller and surface as NameNotFound.
func (m *IdMap) BuildGetParentsByID(parentsByName ParentsByName) func(id Id) ([]Id, error) {
	return func(id Id) ([]Id, error) {
		name, ok := m.FindNameById(id)
		if !ok {
			return nil, dagerrors.Wrap(dagerrors.CodeNameNotFound, fmt.Sprintf("no name for id %d", id), nil)
		}
		parentNames, err := parentsByName(name)
		if err != nil {
			return nil, dagerrors.Wrap(dagerrors.CodeNameNotFound, fmt.Sprintf("parents lookup failed for id %d", id), err)
		}
		ids := make([]Id, 0, len(parentNames))
		for _, pn := range parentNames {
			pid, ok := m.FindIdByName(pn)
			if !ok {
				return nil, dagerrors.Wrap(dagerrors.CodeNameNotFound, fmt.Sprintf("unassigned parent name %x", pn), nil)
			}
			ids = append(ids, pid)
		}
		return ids, nil
	}
}

// DebugReplace forcibly binds id to name, bypassing AssignHead's
// traversal. It exists for tests that need to stand up a map with
// pre-determined ids matching a fixture graph.
func (m *IdMap) DebugReplace(id Id, name []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.idToName[id]; ok {
		delete(m.nameToId, old)
	}
	m.nameToId[string(name)] = id
	m.idToName[id] = string(name)
	m.volatile = append(m.volatile, entry{Name: append([]byte(nil), name...), Id: id})
	if id >= m.nextId {
		m.nextId = id + 1
	}
}

// Flush makes every assignment since the last Flush durable.
func (m *IdMap) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.volatile) == 0 {
		return nil
	}
	batches := make([]logstore.CommitBatch, len(m.volatile))
	for i, e := range m.volatile {
		idKey := make([]byte, 8)
		binary.BigEndian.PutUint64(idKey, uint64(e.Id))
		batches[i] = logstore.CommitBatch{
			Record: encodeEntry(e.Id, e.Name),
			Indexed: map[string][][]byte{
				nameToIdIndex: {e.Name},
				idToNameIndex: {idKey},
			},
		}
	}
	if _, err := m.log.Commit(batches); err != nil {
		return err
	}
	m.volatile = m.volatile[:0]
	return nil
}

// Close releases the underlying log store.
func (m *IdMap) Close() error {
	return m.log.Close()
}
