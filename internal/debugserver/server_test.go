package debugserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segdag/segdag/internal/engine"
	"github.com/segdag/segdag/pkg/compression"
	"github.com/segdag/segdag/pkg/spanset"
	"github.com/segdag/segdag/pkg/utils"
)

// dag1Parents encodes the ASCII_DAG1 fixture used across the engine
// test suite: A=0 .. L=11.
func dag1Parents(id spanset.Id) ([]spanset.Id, error) {
	table := [][]spanset.Id{
		{}, {0}, {}, {2}, {1, 3}, {4}, {5}, {6}, {6}, {8}, {7, 9}, {10},
	}
	return table[id], nil
}

func openTestDag(t *testing.T) *engine.Dag {
	t.Helper()
	d, err := engine.Open(t.TempDir(), true, compression.NewNoOpCompressor())
	require.NoError(t, err)
	d.SetSegmentSize(3)
	require.NoError(t, d.BuildSegmentsVolatile(11, dag1Parents))
	return d
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	d := openTestDag(t)
	logger := utils.NewDefaultLogger(utils.LevelError, io.Discard)
	srv := NewServer(":0", d, nil, logger)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func TestDebugServerAncestors(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/ancestors?ids=11")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Count uint64 `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, uint64(12), body.Count)
}

func TestDebugServerGCA(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/gca?a=10&b=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		One int `json:"one"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.One)
}

func TestDebugServerIsAncestor(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/is_ancestor?a=0&b=11")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		IsAncestor bool `json:"is_ancestor"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.IsAncestor)
}

func TestDebugServerRenderDefaultsToAll(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/render")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "o  11")
}

func TestDebugServerBadInput(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/ancestors?ids=notanumber")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
