// Package http serves the latest cycle of readings as JSON.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ericogr/thermistor-to-mqtt/pkg/config"
	"github.com/ericogr/thermistor-to-mqtt/pkg/output"
	"github.com/ericogr/thermistor-to-mqtt/pkg/probe"
	"github.com/gorilla/mux"
)

type HTTPOutput struct {
	mu       sync.RWMutex
	readings []probe.Reading
	server   *http.Server
}

// NewHTTP binds cfg.Listen and serves in the background. A bind failure is
// returned to the caller.
func NewHTTP(cfg config.HTTPConfig) (output.Output, error) {
	l, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("http listen %s: %w", cfg.Listen, err)
	}
	h := newHTTPOutput()
	h.server = &http.Server{
		Addr:              cfg.Listen,
		Handler:           h.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := h.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http output on %s: %v", cfg.Listen, err)
		}
	}()
	return h, nil
}

func newHTTPOutput() *HTTPOutput {
	return &HTTPOutput{}
}

// Handler routes:
//
//	GET /readings          latest cycle
//	GET /readings/{probe}  one probe of the latest cycle
func (h *HTTPOutput) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/readings", h.handleReadings).Methods(http.MethodGet)
	r.HandleFunc("/readings/{probe}", h.handleProbe).Methods(http.MethodGet)
	return r
}

func (h *HTTPOutput) Publish(readings []probe.Reading) error {
	snapshot := make([]probe.Reading, len(readings))
	copy(snapshot, readings)
	h.mu.Lock()
	h.readings = snapshot
	h.mu.Unlock()
	return nil
}

func (h *HTTPOutput) Close() error {
	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}

func (h *HTTPOutput) handleReadings(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := h.readings
	if out == nil {
		out = []probe.Reading{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPOutput) handleProbe(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["probe"]
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, rd := range h.readings {
		if rd.Probe == name {
			writeJSON(w, http.StatusOK, rd)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown probe " + name})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http output: encode response: %v", err)
	}
}
