package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/chainsync/internal/record"
	"github.com/roach88/chainsync/internal/store"
)

// MaxPageSize caps the count of a single next request.
const MaxPageSize = 1000

// Server serves the Record API over a Store.
type Server struct {
	store  store.Store
	token  string
	router *mux.Router

	received *prometheus.CounterVec
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithToken requires "Authorization: Token <token>" on record routes.
func WithToken(token string) ServerOption {
	return func(s *Server) { s.token = token }
}

// WithRegistry registers server metrics on reg and serves them on /metrics.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) {
		s.received = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsync_server_records_received_total",
			Help: "Records accepted by push requests, by tag.",
		}, []string{"tag"})
		reg.MustRegister(s.received)
		s.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// NewServer returns a Server backed by st.
func NewServer(st store.Store, opts ...ServerOption) *Server {
	s := &Server{store: st, router: mux.NewRouter()}

	s.router.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v0").Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/record", s.status).Methods(http.MethodGet)
	api.HandleFunc("/record/next", s.next).Methods(http.MethodGet)
	api.HandleFunc("/record", s.push).Methods(http.MethodPost)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(rw, r)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Token "+s.token {
			writeError(rw, http.StatusUnauthorized, errors.New("invalid or missing session token"))
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (s *Server) status(rw http.ResponseWriter, r *http.Request) {
	status, err := s.store.Status(r.Context())
	if err != nil {
		slog.Error("status failed", "error", err)
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, status)
}

func (s *Server) next(rw http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	host, tag := record.HostID(q.Get("host")), q.Get("tag")
	if host == "" || tag == "" {
		writeError(rw, http.StatusBadRequest, errors.New("host and tag are required"))
		return
	}
	start, err := strconv.ParseUint(q.Get("start"), 10, 64)
	if err != nil {
		writeError(rw, http.StatusBadRequest, fmt.Errorf("start: %w", err))
		return
	}
	count, err := strconv.ParseUint(q.Get("count"), 10, 64)
	if err != nil {
		writeError(rw, http.StatusBadRequest, fmt.Errorf("count: %w", err))
		return
	}
	count = min(count, MaxPageSize)

	rs, err := s.store.Next(r.Context(), host, tag, start, count)
	if err != nil {
		slog.Error("next failed", "host", host, "tag", tag, "start", start, "error", err)
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	writeJSON(rw, http.StatusOK, rs)
}

func (s *Server) push(rw http.ResponseWriter, r *http.Request) {
	var rs []store.Record
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		writeError(rw, http.StatusBadRequest, fmt.Errorf("decode records: %w", err))
		return
	}
	if err := s.validate(r, rs); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, record.ErrMalformed), errors.Is(err, store.ErrIdxRange):
			code = http.StatusBadRequest
		case errors.Is(err, record.ErrBrokenChain):
			code = http.StatusConflict
		}
		writeError(rw, code, err)
		return
	}

	if err := s.store.PushBatch(r.Context(), rs); err != nil {
		code := http.StatusInternalServerError
		if store.IsConflict(err) {
			code = http.StatusConflict
		}
		slog.Warn("push rejected", "records", len(rs), "error", err)
		writeError(rw, code, err)
		return
	}

	if s.received != nil {
		for _, rec := range rs {
			s.received.WithLabelValues(rec.Tag).Inc()
		}
	}
	slog.Debug("push accepted", "records", len(rs))
	writeJSON(rw, http.StatusOK, map[string]int{"count": len(rs)})
}

// validate checks that each chain in rs extends what the server holds.
func (s *Server) validate(r *http.Request, rs []store.Record) error {
	groups := map[record.Chain][]store.Record{}
	var order []record.Chain
	for _, rec := range rs {
		if err := record.CheckChainName(rec.Host, rec.Tag); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		c := record.Chain{Host: rec.Host, Tag: rec.Tag}
		if _, ok := groups[c]; !ok {
			order = append(order, c)
		}
		groups[c] = append(groups[c], rec)
	}

	if err := store.CheckRange(rs); err != nil {
		return err
	}

	for _, c := range order {
		batch := groups[c]
		var prev *store.Record
		if batch[0].Idx > 0 {
			p, err := s.store.Idx(r.Context(), c.Host, c.Tag, batch[0].Idx-1)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("%w: %s/%s has no record at %d", record.ErrBrokenChain, c.Host, c.Tag, batch[0].Idx-1)
			}
			prev = p
		}
		if err := record.ValidateChain(prev, batch); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(rw http.ResponseWriter, code int, err error) {
	writeJSON(rw, code, apiError{Error: err.Error()})
}
