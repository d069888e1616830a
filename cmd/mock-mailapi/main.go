// Command mock-mailapi is a fake HTTP mail API for exercising the http
// transport locally.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type sendRequest struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
}

type server struct {
	logger   *slog.Logger
	accepted atomic.Int64
	rejected atomic.Int64
	flaky    atomic.Int64
}

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	s := &server{logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Always accepts.
	r.Post("/send", s.accept)
	// Rejects with 422; the transport treats this as permanent.
	r.Post("/send/reject", s.reject)
	// Fails every other request with 503.
	r.Post("/send/flaky", s.flakySend)
	// Slow accepts after 3 seconds.
	r.Post("/send/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
		s.accept(w, r)
	})
	r.Get("/stats", s.stats)

	logger.Info("mock mail api starting", "port", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (s *server) decode(w http.ResponseWriter, r *http.Request) (*sendRequest, bool) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return nil, false
	}
	if req.To == "" || req.From == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "from and to are required"})
		return nil, false
	}
	return &req, true
}

func (s *server) accept(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	n := s.accepted.Add(1)
	id := uuid.NewString()
	s.logger.Info("accepted",
		"n", n,
		"id", id,
		"to", req.To,
		"subject", req.Subject,
		"list_unsubscribe", req.Headers["List-Unsubscribe"],
	)
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *server) reject(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	s.rejected.Add(1)
	s.logger.Info("rejected", "to", req.To)
	writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
		"error": fmt.Sprintf("mailbox %s does not exist", req.To),
	})
}

func (s *server) flakySend(w http.ResponseWriter, r *http.Request) {
	if s.flaky.Add(1)%2 == 1 {
		s.logger.Info("flaky failure")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "try again later"})
		return
	}
	s.accept(w, r)
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{
		"accepted": s.accepted.Load(),
		"rejected": s.rejected.Load(),
		"flaky":    s.flaky.Load(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
