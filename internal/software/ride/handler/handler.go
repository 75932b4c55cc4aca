package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/ride/service"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// StatsFunc reports live dispatch counters for the health probe.
type StatsFunc func() ports.DispatchStats

// RideHTTPHandler adapts HTTP requests to the RideService.
type RideHTTPHandler struct {
	svc    ports.RideService
	logger *logger.Logger
	auth   *jwt.Manager
	socket http.HandlerFunc
	stats  StatsFunc
}

// NewRideHTTPHandler wires an HTTP handler around the RideService. socket serves
// GET /ws and may be nil when sockets are mounted elsewhere.
func NewRideHTTPHandler(
	svc ports.RideService,
	logger *logger.Logger,
	auth *jwt.Manager,
	socket http.HandlerFunc,
	stats StatsFunc,
) *RideHTTPHandler {
	if stats == nil {
		stats = func() ports.DispatchStats { return ports.DispatchStats{} }
	}
	return &RideHTTPHandler{svc: svc, logger: logger, auth: auth, socket: socket, stats: stats}
}

// RegisterRoutes mounts ride endpoints on the provided mux.
func (handler *RideHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc, roles ...user.Role) http.HandlerFunc {
		return jwt.AuthMiddlewareFunc(handler.auth, roles...)(h)
	}

	mux.HandleFunc("POST /rides", authed(handler.handleRequestRide, user.RoleRider))
	mux.HandleFunc("POST /rides/quote", authed(handler.handleQuote, user.RoleRider, user.RoleDriver))
	mux.HandleFunc("POST /rides/{ride_id}/accept", authed(handler.handleAccept, user.RoleDriver))
	mux.HandleFunc("PUT /rides/{ride_id}/status", authed(handler.handleUpdateStatus, user.RoleRider, user.RoleDriver))
	mux.HandleFunc("POST /rides/{ride_id}/cancel", authed(handler.handleCancel, user.RoleRider, user.RoleDriver))
	mux.HandleFunc("GET /rides", authed(handler.handleList, user.RoleRider, user.RoleDriver))
	mux.HandleFunc("GET /rides/{ride_id}", authed(handler.handleGet))

	// the socket authenticates its own first frame
	if handler.socket != nil {
		mux.HandleFunc("GET /ws", handler.socket)
	}

	mux.HandleFunc("GET /health", handler.handleHealth)
}

type healthResponse struct {
	Status string `json:"status"`
	ports.DispatchStats
}

func (handler *RideHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, healthResponse{
		Status:        "ok",
		DispatchStats: handler.stats(),
	})
}

// ----- general helpers -----

// decodeJSON reads a strict JSON body into dst. An empty body is accepted when
// allowEmpty is set. It writes the error response itself and reports success.
func (handler *RideHTTPHandler) decodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if r.ContentLength != 0 && !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
		return false
	}
	return true
}

// serviceError maps service errors onto HTTP statuses.
func (handler *RideHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, ride.ErrInvalidTransition), errors.Is(err, ride.ErrRideNotAvailable):
		handler.httpError(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, ride.ErrForbidden):
		handler.httpError(ctx, w, http.StatusForbidden, err.Error(), err)
	case errors.Is(err, ride.ErrNotFound):
		handler.httpError(ctx, w, http.StatusNotFound, "ride not found", err)
	case errors.Is(err, service.ErrValidation):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		handler.httpError(ctx, w, http.StatusGatewayTimeout, "request timed out", err)
	case errors.As(err, &pgErr):
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
	default:
		handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

// jsonResponse takes any type of data and encode it to HTTP response.
func (handler *RideHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *RideHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	if status >= 500 {
		handler.logger.Error(ctx, "http_internal_error", msg, err, nil)
	} else {
		action := "request_failed"
		switch status {
		case http.StatusBadRequest:
			action = "validation_failed"
		case http.StatusUnsupportedMediaType:
			action = "unsupported_media_type"
		case http.StatusConflict:
			action = "ride_conflict"
		}
		handler.logger.Info(ctx, action, msg, map[string]any{"status": status})
	}

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *RideHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = logger.NewRequestID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}
