package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/runningwild/thrash/pkg/engine"
)

// Server executes workloads posted by a remote controller. Each
// request gets a fresh engine so no ring or clock state leaks between
// runs.
type Server struct {
	path string
}

// NewServer creates an agent. If path is non-empty it overrides the
// target in every request, which lets one controller config drive
// agents with differently-named devices.
func NewServer(path string) *Server {
	return &Server{path: path}
}

// VerifyAccess checks that the configured target is usable before the
// agent starts accepting work.
func (s *Server) VerifyAccess() error {
	if s.path == "" {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open target %s: %w", s.path, err)
	}
	return f.Close()
}

func (s *Server) ListenAndServe(port int) error {
	http.HandleFunc("/run", s.handleRun)
	http.HandleFunc("/health", s.handleHealth)

	addr := fmt.Sprintf(":%d", port)
	logrus.Infof("agent listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params engine.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, fmt.Sprintf("Invalid body: %v", err), http.StatusBadRequest)
		return
	}

	if s.path != "" {
		params.Path = s.path
	}

	logrus.Infof("agent: running %s workload on %s (bs=%d workers=%d)",
		params.EngineType, params.Path, params.BlockSize, params.Workers)

	eng := engine.New(params.EngineType)
	res, err := eng.Run(params)
	if err != nil {
		// A failed run (rate floor, disk error) is a system-level
		// failure the controller must see, not a result.
		http.Error(w, fmt.Sprintf("Engine execution failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		logrus.Errorf("agent: failed to encode response: %v", err)
	}
}
