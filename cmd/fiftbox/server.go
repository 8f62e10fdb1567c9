package main

import (
	"bytes"
	"crypto/rand"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/broxus/fift-playground/executor"
	"github.com/broxus/fift-playground/library"
)

const (
	defaultMaxRequestBody = 1 << 20 // 1MB
	contentTypeCBOR       = "application/cbor"
)

var errTooManySessions = errors.New("too many sessions")

//go:embed schema/request.json
var requestSchemaJSON []byte

func compileRequestSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	const url = "schema://request.json"
	if err := compiler.AddResource(url, bytes.NewReader(requestSchemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

type sessionManager struct {
	sessions map[string]*serverSession
	mu       sync.RWMutex
	ttl      time.Duration
	max      int
	now      func() time.Time
}

type serverSession struct {
	session  *executor.Session
	lastUsed time.Time
}

func newSessionManager(ttl time.Duration, max int) *sessionManager {
	return &sessionManager{
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
		max:      max,
		now:      time.Now,
	}
}

func (sm *sessionManager) create(exec *executor.Executor, opts ...executor.SessionOption) (string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.max > 0 && len(sm.sessions) >= sm.max {
		return "", errTooManySessions
	}

	id := generateSessionID()
	sm.sessions[id] = &serverSession{
		session:  exec.NewSession(opts...),
		lastUsed: sm.now(),
	}
	return id, nil
}

func (sm *sessionManager) get(id string) (*executor.Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ss, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	ss.lastUsed = sm.now()
	return ss.session, true
}

// close removes the session and then closes it. Closing waits for a running
// program, so it happens outside the manager lock.
func (sm *sessionManager) close(id string) bool {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if ok {
		ss.session.Close()
	}
	return ok
}

// expire closes sessions idle for longer than the TTL and returns how many
// it closed.
func (sm *sessionManager) expire() int {
	sm.mu.Lock()
	now := sm.now()
	var idle []*executor.Session
	for id, ss := range sm.sessions {
		if now.Sub(ss.lastUsed) > sm.ttl {
			idle = append(idle, ss.session)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}

// cleanup expires idle sessions every minute until done is closed.
func (sm *sessionManager) cleanup(done <-chan struct{}, log *slog.Logger) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if n := sm.expire(); n > 0 {
				log.Info("expired idle sessions", "count", n)
			}
		}
	}
}

func (sm *sessionManager) count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *sessionManager) closeAll() {
	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*serverSession)
	sm.mu.Unlock()

	for _, ss := range all {
		ss.session.Close()
	}
}

func generateSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

type runRequest struct {
	Code       string            `json:"code"`
	WithStdlib *bool             `json:"withStdlib,omitempty"`
	Files      map[string]string `json:"files,omitempty"`
}

type runResponse struct {
	*executor.Result
	DurationMs int64 `json:"durationMs" cbor:"durationMs"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id" cbor:"session_id"`
}

type fileInfo struct {
	Name string `json:"name" cbor:"name"`
	Size int    `json:"size" cbor:"size"`
}

type libraryEntry struct {
	Name    string `json:"name" cbor:"name"`
	Size    int    `json:"size" cbor:"size"`
	Blake2b string `json:"blake2b" cbor:"blake2b"`
}

// server serves the HTTP API over one executor.
type server struct {
	exec     *executor.Executor
	sessions *sessionManager
	library  *library.Set
	schema   *jsonschema.Schema
	stdlib   bool
	maxBody  int64
	log      *slog.Logger
}

func newServer(exec *executor.Executor, sessions *sessionManager, stdlib bool, log *slog.Logger) (*server, error) {
	schema, err := compileRequestSchema()
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	return &server{
		exec:     exec,
		sessions: sessions,
		library:  library.Default(),
		schema:   schema,
		stdlib:   stdlib,
		maxBody:  defaultMaxRequestBody,
		log:      log,
	}, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/exec", s.handleSessionExec)
	mux.HandleFunc("GET /sessions/{id}/files", s.handleListFiles)
	mux.HandleFunc("PUT /sessions/{id}/files/{name...}", s.handlePutFile)
	mux.HandleFunc("DELETE /sessions/{id}/files", s.handleClearFiles)
	mux.HandleFunc("DELETE /sessions/{id}/files/{name...}", s.handleRemoveFile)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("GET /library", s.handleLibrary)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return s.logRequests(mux)
}

func (s *server) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	var (
		res *executor.Result
		err error
	)
	if len(req.Files) > 0 {
		session := s.exec.NewSession(executor.WithFiles(toBytes(req.Files)))
		res, err = session.Run(r.Context(), req.Code, s.withStdlib(req))
		session.Close()
	} else {
		res, err = s.exec.Run(r.Context(), req.Code, s.withStdlib(req))
	}
	s.writeResult(w, r, res, err)
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.create(s.exec)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errTooManySessions) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, fmt.Sprintf("failed to create session: %v", err), status)
		return
	}
	s.write(w, r, http.StatusOK, createSessionResponse{SessionID: id})
}

func (s *server) handleSessionExec(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	for name, content := range req.Files {
		if err := session.WriteFile(name, []byte(content)); err != nil {
			s.writeResult(w, r, nil, err)
			return
		}
	}
	res, err := session.Run(r.Context(), req.Code, s.withStdlib(req))
	s.writeResult(w, r, res, err)
}

func (s *server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	files := []fileInfo{}
	for _, name := range session.Files() {
		data, err := session.ReadFile(name)
		if err != nil {
			continue
		}
		files = append(files, fileInfo{Name: name, Size: len(data)})
	}
	s.write(w, r, http.StatusOK, files)
}

func (s *server) handlePutFile(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if name == "" {
		http.Error(w, "file name required", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err := session.WriteFile(name, data); err != nil {
		http.Error(w, err.Error(), http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleClearFiles(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	session.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	if !session.Remove(r.PathValue("name")) {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions.close(r.PathValue("id")) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Error(w, "session not found", http.StatusNotFound)
}

func (s *server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	entries := make([]libraryEntry, 0, len(s.library.Names()))
	for _, name := range s.library.Names() {
		data, _ := s.library.Lookup(name)
		digest, _ := s.library.Digest(name)
		entries = append(entries, libraryEntry{Name: name, Size: len(data), Blake2b: digest})
	}
	s.write(w, r, http.StatusOK, entries)
}

func (s *server) session(w http.ResponseWriter, r *http.Request) (*executor.Session, bool) {
	session, ok := s.sessions.get(r.PathValue("id"))
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
	}
	return session, ok
}

// decodeRequest reads a run request and checks it against the request
// schema before decoding it.
func (s *server) decodeRequest(w http.ResponseWriter, r *http.Request) (runRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return runRequest{}, false
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return runRequest{}, false
	}
	if err := s.schema.Validate(doc); err != nil {
		http.Error(w, "invalid request: "+validationMessage(err), http.StatusBadRequest)
		return runRequest{}, false
	}

	var req runRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return runRequest{}, false
	}
	return req, true
}

func validationMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	// The innermost cause names the offending field.
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if ve.InstanceLocation == "" {
		return ve.Message
	}
	return ve.InstanceLocation + ": " + ve.Message
}

func (s *server) withStdlib(req runRequest) bool {
	if req.WithStdlib == nil {
		return s.stdlib
	}
	return *req.WithStdlib
}

func (s *server) writeResult(w http.ResponseWriter, r *http.Request, res *executor.Result, err error) {
	switch {
	case errors.Is(err, executor.ErrSessionClosed):
		http.Error(w, "session closed", http.StatusGone)
	case err != nil:
		s.log.Error("run failed", "path", r.URL.Path, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		s.write(w, r, http.StatusOK, runResponse{Result: res, DurationMs: res.Duration.Milliseconds()})
	}
}

// write encodes v as CBOR when the client accepts it and as JSON otherwise.
func (s *server) write(w http.ResponseWriter, r *http.Request, status int, v any) {
	if strings.Contains(r.Header.Get("Accept"), contentTypeCBOR) {
		data, err := cbor.Marshal(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentTypeCBOR)
		w.WriteHeader(status)
		w.Write(data)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func toBytes(files map[string]string) map[string][]byte {
	out := make(map[string][]byte, len(files))
	for name, content := range files {
		out[name] = []byte(content)
	}
	return out
}
