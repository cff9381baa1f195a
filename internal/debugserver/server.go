// Package debugserver exposes a read-only HTTP view of a dag snapshot's
// ancestry queries. It realizes the "many threads querying a snapshot
// concurrently" model of the engine in process form: one server,
// many concurrent handlers, all calling into the same immutable Dag.
package debugserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/segdag/segdag/internal/engine"
	"github.com/segdag/segdag/internal/idmap"
	"github.com/segdag/segdag/internal/render"
	"github.com/segdag/segdag/pkg/spanset"
	"github.com/segdag/segdag/pkg/utils"
)

// Server is the read-only query HTTP service for one dag snapshot.
type Server struct {
	dag    *engine.Dag
	idMap  *idmap.IdMap
	logger utils.Logger
	addr   string
	http   *http.Server
}

// NewServer wires routes for dag (ancestry queries) and idMap (name
// labels for /api/render) behind addr.
func NewServer(addr string, dag *engine.Dag, idMap *idmap.IdMap, logger utils.Logger) *Server {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Server{dag: dag, idMap: idMap, logger: logger, addr: addr}
}

// Routes builds the /api/... route table served by Start.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ancestors", s.handleAncestors)
	mux.HandleFunc("/api/descendants", s.handleDescendants)
	mux.HandleFunc("/api/parents", s.handleParents)
	mux.HandleFunc("/api/children", s.handleChildren)
	mux.HandleFunc("/api/heads", s.handleHeads)
	mux.HandleFunc("/api/roots", s.handleRoots)
	mux.HandleFunc("/api/range", s.handleRange)
	mux.HandleFunc("/api/gca", s.handleGCA)
	mux.HandleFunc("/api/is_ancestor", s.handleIsAncestor)
	mux.HandleFunc("/api/render", s.handleRender)
	return mux
}

// Start blocks serving HTTP on addr until Shutdown is called.
func (s *Server) Start() error {
	s.http = &http.Server{Addr: s.addr, Handler: s.Routes()}
	s.logger.Info("debug query server listening on %s", s.addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("debug server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func parseIds(raw string) ([]spanset.Id, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]spanset.Id, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", p, err)
		}
		ids = append(ids, spanset.Id(n))
	}
	return ids, nil
}

func parseId(raw string) (spanset.Id, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return spanset.Id(n), nil
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) writeSet(w http.ResponseWriter, set spanset.SpanSet) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"set":   set.String(),
		"count": set.Count(),
		"ids":   set.Iter(),
	})
}

func (s *Server) setFromQuery(r *http.Request, param string) (spanset.SpanSet, error) {
	ids, err := parseIds(r.URL.Query().Get(param))
	if err != nil {
		return spanset.Empty(), err
	}
	return spanset.FromIds(ids), nil
}

func (s *Server) handleAncestors(w http.ResponseWriter, r *http.Request) {
	set, err := s.setFromQuery(r, "ids")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.dag.Ancestors(set)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeSet(w, res)
}

func (s *Server) handleDescendants(w http.ResponseWriter, r *http.Request) {
	set, err := s.setFromQuery(r, "ids")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.dag.Descendants(set)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeSet(w, res)
}

func (s *Server) handleParents(w http.ResponseWriter, r *http.Request) {
	set, err := s.setFromQuery(r, "ids")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.dag.Parents(set)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeSet(w, res)
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	set, err := s.setFromQuery(r, "ids")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.dag.Children(set)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeSet(w, res)
}

func (s *Server) handleHeads(w http.ResponseWriter, r *http.Request) {
	set, err := s.setFromQuery(r, "ids")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.dag.Heads(set)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeSet(w, res)
}

func (s *Server) handleRoots(w http.ResponseWriter, r *http.Request) {
	set, err := s.setFromQuery(r, "ids")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.dag.Roots(set)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeSet(w, res)
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	roots, err := s.setFromQuery(r, "roots")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	heads, err := s.setFromQuery(r, "heads")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.dag.Range(roots, heads)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeSet(w, res)
}

func (s *Server) handleGCA(w http.ResponseWriter, r *http.Request) {
	a, err := parseId(r.URL.Query().Get("a"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := parseId(r.URL.Query().Get("b"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	all, err := s.dag.GcaAll(a, b)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	one, ok, err := s.dag.GcaOne(a, b)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{"all": all.String()}
	if ok {
		resp["one"] = one
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleIsAncestor(w http.ResponseWriter, r *http.Request) {
	a, err := parseId(r.URL.Query().Get("a"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := parseId(r.URL.Query().Get("b"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.dag.IsAncestor(a, b)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"is_ancestor": res})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	set, err := s.setFromQuery(r, "ids")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if set.IsEmpty() {
		set = s.dag.All()
	}

	var opts render.Options
	if s.idMap != nil {
		opts.Name = func(id spanset.Id) string {
			if name, ok := s.idMap.FindNameById(id); ok {
				return string(name)
			}
			return fmt.Sprintf("%d", id)
		}
	}

	text, err := render.Render(set.Iter(), func(id spanset.Id) ([]spanset.Id, error) {
		parents, err := s.dag.Parents(spanset.Single(id))
		if err != nil {
			return nil, err
		}
		return parents.Iter(), nil
	}, opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}
