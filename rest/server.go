// Copyright 2026 The Procvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/netutil"

	"github.com/procvisor/procvisor"
)

// Handler wraps a Supervisor, adding http.Handler functionality.
type Handler struct {
	s      *procvisor.Supervisor
	r      *mux.Router
	user   string
	hash   []byte
	logger *zap.SugaredLogger
}

type HandlerOption func(*Handler)

// WithBasicAuth requires HTTP basic authentication.  hash is the bcrypt
// hash of the password.
func WithBasicAuth(user string, hash string) HandlerOption {
	return func(h *Handler) {
		h.user = user
		h.hash = []byte(hash)
	}
}

// WithMetrics serves the gatherer's metrics at /metrics.
func WithMetrics(g prometheus.Gatherer) HandlerOption {
	return func(h *Handler) {
		h.r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods("GET")
	}
}

func WithLogger(l *zap.SugaredLogger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

// pollArgs extracts the long-poll parameters.  The wait is zero unless
// both headers are present.
func pollArgs(r *http.Request) (int64, time.Duration) {
	etag, e := strconv.ParseInt(r.Header.Get(PollEtagHeader), 10, 64)
	if e != nil {
		return 0, 0
	}
	secs, e := strconv.Atoi(r.Header.Get(PollTimeHeader))
	if e != nil || secs < 0 {
		return etag, 0
	}
	if secs > MaxPollTime {
		secs = MaxPollTime
	}
	return etag, time.Duration(secs) * time.Second
}

// notModified sets the Etag, and reports (and answers) a request whose
// If-None-Match already has it.
func notModified(w http.ResponseWriter, r *http.Request, etag int64) bool {
	tag := strconv.FormatInt(etag, 10)
	w.Header().Set("Etag", tag)
	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func (h *Handler) watchSerial(r *http.Request) int64 {
	if last, wait := pollArgs(r); wait > 0 {
		return h.s.WatchSerial(last, wait)
	}
	return h.s.Serial()
}

func (h *Handler) listProcesses(w http.ResponseWriter, r *http.Request) {
	serial := h.watchSerial(r)
	if notModified(w, r, serial) {
		return
	}
	h.writeJson(w, h.s.Processes())
}

func (h *Handler) getProcess(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, e := h.s.Process(name); e != nil {
		h.writeError(w, &Error{http.StatusNotFound, e.Error()})
		return
	}
	serial := h.watchSerial(r)
	if notModified(w, r, serial) {
		return
	}
	if info, e := h.s.Process(name); e != nil {
		h.writeError(w, &Error{http.StatusNotFound, e.Error()})
	} else {
		h.writeJson(w, info)
	}
}

func (h *Handler) serveLog(w http.ResponseWriter, r *http.Request, log *procvisor.Log) {
	last, wait := pollArgs(r)
	if wait > 0 {
		log.Watch(last, wait)
	}
	recs, id := log.GetRecords(0)
	if notModified(w, r, id) {
		return
	}
	if recs == nil {
		recs = []procvisor.LogRecord{}
	}
	h.writeJson(w, recs)
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if log, e := h.s.Log(name); e != nil {
		h.writeError(w, &Error{http.StatusNotFound, e.Error()})
	} else {
		h.serveLog(w, r, log)
	}
}

func (h *Handler) getAllLog(w http.ResponseWriter, r *http.Request) {
	h.serveLog(w, r, h.s.Sink().All())
}

// flushLog forgets remembered output; for /log that of every process.
func (h *Handler) flushLog(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if e := h.s.Sink().Flush(name); e != nil {
		h.writeError(w, &Error{http.StatusNotFound, e.Error()})
		return
	}
	h.writeJson(w, ok)
}

// shutdown begins a shutdown and returns without waiting for it.
func (h *Handler) shutdown(w http.ResponseWriter, r *http.Request) {
	req := ShutdownRequest{}
	if r.ContentLength > 0 {
		if e := json.NewDecoder(r.Body).Decode(&req); e != nil {
			h.writeError(w, &Error{http.StatusBadRequest, e.Error()})
			return
		}
	}
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if h.logger != nil {
		h.logger.Infow("shutdown requested", "remote", r.RemoteAddr)
	}
	go h.s.Shutdown(context.Background(), timeout)
	h.writeJson(w, ok)
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, found := r.BasicAuth()
		if !found ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.user)) != 1 ||
			bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="procvisor"`)
			h.writeError(w, &Error{http.StatusUnauthorized, "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(s *procvisor.Supervisor, opts ...HandlerOption) *Handler {
	r := mux.NewRouter()
	h := &Handler{s: s, r: r}
	r.HandleFunc("/processes", h.listProcesses).Methods("GET")
	r.HandleFunc("/processes/{name}", h.getProcess).Methods("GET")
	r.HandleFunc("/processes/{name}/log", h.getLog).Methods("GET")
	r.HandleFunc("/processes/{name}/log", h.flushLog).Methods("DELETE")
	r.HandleFunc("/log", h.getAllLog).Methods("GET")
	r.HandleFunc("/log", h.flushLog).Methods("DELETE")
	r.HandleFunc("/shutdown", h.shutdown).Methods("POST")
	for _, o := range opts {
		o(h)
	}
	if h.user != "" {
		r.Use(h.authenticate)
	}
	return h
}

// Listen opens a TCP listener for the control API that accepts at most
// maxConns simultaneous connections, long polls included.
func Listen(addr string, maxConns int) (net.Listener, error) {
	l, e := net.Listen("tcp", addr)
	if e != nil {
		return nil, e
	}
	if maxConns > 0 {
		l = netutil.LimitListener(l, maxConns)
	}
	return l, nil
}
