package agent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runningwild/thrash/pkg/engine"
)

func tempTarget(t *testing.T, size int64) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "thrash-agent-test")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return f.Name()
}

func postRun(t *testing.T, s *Server, params engine.Params) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(params)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleRun(w, req)
	return w
}

func TestHandleRun(t *testing.T) {
	s := NewServer("")
	params := engine.Params{
		Path:      tempTarget(t, 1024*1024),
		BlockSize: 4096,
		ReadPct:   100,
		Pattern:   "random",
		Workers:   1,
		Runtime:   200 * time.Millisecond,
	}

	w := postRun(t, s, params)
	require.Equal(t, http.StatusOK, w.Code)

	var res engine.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Greater(t, res.TotalIOs, int64(0))
	assert.Greater(t, res.IOPS, 0.0)
}

func TestHandleRunPathOverride(t *testing.T) {
	// The agent's local path wins over whatever target the controller
	// config named.
	s := NewServer(tempTarget(t, 1024*1024))
	params := engine.Params{
		Path:      "/does/not/exist",
		BlockSize: 4096,
		ReadPct:   100,
		Pattern:   "sequential",
		Workers:   1,
		Runtime:   100 * time.Millisecond,
	}

	w := postRun(t, s, params)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleRunRejectsMethod(t *testing.T) {
	s := NewServer("")
	req := httptest.NewRequest(http.MethodGet, "/run", nil)
	w := httptest.NewRecorder()
	s.handleRun(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleRunBadBody(t *testing.T) {
	s := NewServer("")
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	s.handleRun(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRunEngineFailure(t *testing.T) {
	s := NewServer("")
	w := postRun(t, s, engine.Params{Path: "/does/not/exist", BlockSize: 0})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealth(t *testing.T) {
	s := NewServer("")
	w := httptest.NewRecorder()
	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestVerifyAccess(t *testing.T) {
	assert.NoError(t, NewServer("").VerifyAccess())
	assert.NoError(t, NewServer(tempTarget(t, 1024)).VerifyAccess())
	assert.Error(t, NewServer(filepath.Join(t.TempDir(), "missing")).VerifyAccess())
}
