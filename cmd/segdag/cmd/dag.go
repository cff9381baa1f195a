package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/segdag/segdag/internal/engine"
	"github.com/segdag/segdag/internal/idmap"
)

// openedDag bundles the two on-disk stores that back one named dag:
// the name<->id mapping and the segment hierarchy built over it.
type openedDag struct {
	Dag   *engine.Dag
	IdMap *idmap.IdMap
}

func openDag(dagDir string, writable bool) (*openedDag, error) {
	cfg := GetConfig()
	comp, err := compressorFor(cfg.Dag)
	if err != nil {
		return nil, err
	}

	idMap, err := idmap.Open(filepath.Join(dagDir, "idmap"), writable, comp)
	if err != nil {
		return nil, fmt.Errorf("failed to open id map: %w", err)
	}

	d, err := engine.Open(filepath.Join(dagDir, "segments"), writable, comp)
	if err != nil {
		idMap.Close()
		return nil, fmt.Errorf("failed to open segment store: %w", err)
	}
	if cfg.Dag.SegmentSize > 0 {
		d.SetSegmentSize(cfg.Dag.SegmentSize)
	}

	return &openedDag{Dag: d, IdMap: idMap}, nil
}

func (o *openedDag) Close() error {
	dagErr := o.Dag.Close()
	idErr := o.IdMap.Close()
	if dagErr != nil {
		return dagErr
	}
	return idErr
}

func dagDirFor(name string) string {
	return GetConfig().GetDagDir(name)
}
