// Package fakesvc is an in-process stand-in for the remote analysis service.
//
// It implements the same HTTP contract, keeps a per-credential edit history
// on the server side, and renders deterministic PNG rasters whose pixels
// derive from the revision, so two different edit chains never produce the
// same image and an undo reproduces the earlier image exactly. Faults can be
// injected per endpoint for failure-path tests.
package fakesvc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"vizflow/internal/logging"
)

// Endpoint paths served by the fake.
const (
	PathGoals    = "/visualize/goalgenerator"
	PathAddGoal  = "/visualize/goaladdition"
	PathTitles   = "/visualize/visualization-titles"
	PathRender   = "/visualize/visualizations"
	PathEdit     = "/visualize/edit-visualization"
	PathUndo     = "/visualize/undo-edit"
	PathExplain  = "/visualize/explain-visualization"
	PathEvaluate = "/visualize/evaluate-visualization"
	PathClear    = "/visualize/clear-db"
)

// Fault alters the next Times responses of one endpoint.
type Fault struct {
	Status     int    // non-zero: reply with this status and Detail
	Detail     string // FastAPI-style detail message
	OmitRaster bool   // reply 200 with a visualization lacking its raster
	Raster     string // non-empty: reply 200 with this raster verbatim
	Hang       bool   // block until the client gives up
	Times      int    // how many requests the fault applies to; 0 means once
}

// Server is the fake analysis service.
type Server struct {
	token string
	log   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	faults   map[string][]Fault
	calls    map[string]int
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires the given bearer token on every endpoint except
// clear-db. An empty token accepts any caller.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New returns a fake service with no state.
func New(opts ...Option) *Server {
	s := &Server{
		log:      logging.Nop(),
		sessions: make(map[string]*session),
		faults:   make(map[string][]Fault),
		calls:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inject queues a fault for the given endpoint path.
func (s *Server) Inject(path string, f Fault) {
	if f.Times <= 0 {
		f.Times = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[path] = append(s.faults[path], f)
}

// Calls returns how many requests reached the endpoint path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// TotalCalls returns the number of requests across all endpoints.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// HistoryDepth reports how many revisions the service holds for a token.
func (s *Server) HistoryDepth(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		return len(sess.history)
	}
	return 0
}

// Handler returns the HTTP handler implementing the service contract.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathGoals, s.guard(PathGoals, s.handleGoals))
	mux.HandleFunc("POST "+PathAddGoal, s.guard(PathAddGoal, s.handleAddGoal))
	mux.HandleFunc("POST "+PathTitles, s.guard(PathTitles, s.handleTitles))
	mux.HandleFunc("POST "+PathRender, s.guard(PathRender, s.handleRender))
	mux.HandleFunc("POST "+PathEdit, s.guard(PathEdit, s.handleEdit))
	mux.HandleFunc("GET "+PathUndo, s.guard(PathUndo, s.handleUndo))
	mux.HandleFunc("GET "+PathExplain, s.guard(PathExplain, s.handleExplain))
	mux.HandleFunc("GET "+PathEvaluate, s.guard(PathEvaluate, s.handleEvaluate))
	mux.HandleFunc("POST "+PathClear, s.guard(PathClear, s.handleClear))
	return mux
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, sess *session)

// guard counts the call, authenticates, applies injected faults and
// resolves the caller's session before handing off.
func (s *Server) guard(path string, next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		s.calls[path]++
		fault, hasFault := s.popFaultLocked(path)
		s.mu.Unlock()

		s.log.Info("fake request", "method", r.Method, "path", path, "request_id", r.Header.Get("X-Request-ID"))

		if s.token != "" && path != PathClear && token != s.token {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if hasFault {
			switch {
			case fault.Hang:
				<-r.Context().Done()
				return
			case fault.Status != 0:
				writeDetail(w, fault.Status, fault.Detail)
				return
			case fault.OmitRaster:
				writeJSON(w, http.StatusOK, map[string]any{"visualization": map[string]string{"type": "image/png"}})
				return
			case fault.Raster != "":
				writeJSON(w, http.StatusOK, map[string]any{"visualization": map[string]string{"type": "image/png", "raster": fault.Raster}})
				return
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		sess, ok := s.sessions[token]
		if !ok {
			sess = &session{}
			s.sessions[token] = sess
		}
		next(w, r, sess)
	}
}

func (s *Server) popFaultLocked(path string) (Fault, bool) {
	queue := s.faults[path]
	if len(queue) == 0 {
		return Fault{}, false
	}
	f := queue[0]
	f.Times--
	if f.Times <= 0 {
		s.faults[path] = queue[1:]
	} else {
		queue[0] = f
	}
	return f, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	if detail == "" {
		detail = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"detail": detail})
}

type validationItem struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeValidation(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []validationItem{{Loc: []string{"body", field}, Msg: msg, Type: "value_error"}},
	})
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
