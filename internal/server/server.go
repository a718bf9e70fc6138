// Package server exposes a folder service over the folder API:
//
//	GET    /api/folders?id=<id>                       node with direct children
//	POST   /api/folders  {parentId, item}             create, returns the node
//	PATCH  /api/folders  {id, updates: {name}}        rename, returns the node
//	DELETE /api/folders?id=<id>                       {success: true}
//	GET    /health
//
// Errors are JSON {error, code} with the status from api.Classify.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rescale/rescale-foldernav/internal/api"
	"github.com/rescale/rescale-foldernav/internal/constants"
	"github.com/rescale/rescale-foldernav/internal/logging"
	"github.com/rescale/rescale-foldernav/internal/models"
	"github.com/rescale/rescale-foldernav/internal/navigator"
	"github.com/rescale/rescale-foldernav/internal/version"
)

// Options configures the handler.
type Options struct {
	// APIKey, when set, is required as "Authorization: Token <key>" on
	// every folder request. /health is always open.
	APIKey string
	Logger *logging.Logger
}

type handler struct {
	svc    navigator.FolderService
	apiKey string
	logger *logging.Logger
}

// NewHandler returns the folder API router for svc.
func NewHandler(svc navigator.FolderService, opts Options) nethttp.Handler {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	h := &handler{svc: svc, apiKey: opts.APIKey, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get(constants.HealthPath, h.health)
	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Route(constants.FoldersPath, func(r chi.Router) {
			r.Get("/", h.fetch)
			r.Post("/", h.create)
			r.Patch("/", h.rename)
			r.Delete("/", h.remove)
		})
	})

	r.NotFound(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeError(w, nethttp.StatusNotFound, api.CodeNotFound, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		writeError(w, nethttp.StatusMethodNotAllowed, api.CodeBadRequest, r.Method+" not allowed")
	})
	return r
}

func (h *handler) requestLogger(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			h.logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("query", r.URL.RawQuery).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Msg("Request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func (h *handler) authenticate(next nethttp.Handler) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if h.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Token ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.apiKey)) != 1 {
			writeError(w, nethttp.StatusUnauthorized, api.CodeUnauthorized, "missing or invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) health(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, api.HealthResponse{Status: "ok", Version: version.Version})
}

func (h *handler) fetch(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		id = models.RootID
	}
	node, err := h.svc.FetchNode(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, node)
}

func (h *handler) create(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req api.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ParentID == "" {
		req.ParentID = models.RootID
	}
	node, err := h.svc.CreateNode(r.Context(), req.ParentID, req.Item)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, nethttp.StatusCreated, node)
}

func (h *handler) rename(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req api.RenameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, nethttp.StatusBadRequest, api.CodeBadRequest, "id is required")
		return
	}
	node, err := h.svc.RenameNode(r.Context(), req.ID, req.Updates.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, node)
}

func (h *handler) remove(w nethttp.ResponseWriter, r *nethttp.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, nethttp.StatusBadRequest, api.CodeBadRequest, "id is required")
		return
	}
	if err := h.svc.DeleteNode(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, nethttp.StatusOK, api.DeleteResponse{Success: true})
}

func (h *handler) fail(w nethttp.ResponseWriter, r *nethttp.Request, err error) {
	status, code := api.Classify(err)
	if status >= 500 {
		h.logger.Error().Err(err).Str("method", r.Method).Str("query", r.URL.RawQuery).Msg("Folder service failed")
	}
	writeError(w, status, code, err.Error())
}

func decodeBody(w nethttp.ResponseWriter, r *nethttp.Request, out interface{}) bool {
	r.Body = nethttp.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, nethttp.StatusBadRequest, api.CodeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w nethttp.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w nethttp.ResponseWriter, status int, code api.ErrorCode, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg, Code: code})
}

// Server runs the folder API until its context is cancelled.
type Server struct {
	srv    *nethttp.Server
	logger *logging.Logger
}

// New returns a server for svc listening on addr.
func New(addr string, svc navigator.FolderService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	return &Server{
		srv: &nethttp.Server{
			Addr:              addr,
			Handler:           NewHandler(svc, opts),
			ReadHeaderTimeout: constants.HTTPServerReadHeaderTimeout,
		},
		logger: opts.Logger,
	}
}

// Run listens and serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Folder API listening")
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.HTTPServerShutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("Shutting down folder API")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
