package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/ports"
)

const serviceTimeout = 5 * time.Second

// --- Request DTOs (HTTP boundary) ---

type tripRequest struct {
	RiderID string    `json:"rider_id,omitempty"`
	Pickup  geo.Point `json:"pickup"`
	Dropoff geo.Point `json:"dropoff"`
}

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ----- POST /rides -----

func (handler *RideHTTPHandler) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims, ok := handler.claims(ctx, w, r)
	if !ok {
		return
	}

	var req tripRequest
	if !handler.decodeJSON(ctx, w, r, &req, false) {
		return
	}

	// fill or verify rider_id
	sub := strings.TrimSpace(claims.UserID())
	if strings.TrimSpace(req.RiderID) == "" {
		req.RiderID = sub
	} else if req.RiderID != sub {
		handler.httpError(ctx, w, http.StatusForbidden, "rider_id does not match token subject", errors.New("rider/token mismatch"))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	res, err := handler.svc.RequestRide(ctx, ports.RequestRideInput{
		RiderID: req.RiderID,
		Pickup:  trimAddress(req.Pickup),
		Dropoff: trimAddress(req.Dropoff),
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	ctx = handler.logger.WithRideID(ctx, res.RideID)

	handler.logger.Info(ctx, "ride_requested", "Ride created", map[string]any{
		"rider_id":            req.RiderID,
		"fare":                res.Fare,
		"candidates_notified": res.CandidatesNotified,
	})
	handler.jsonResponse(ctx, w, http.StatusCreated, res)
}

// ----- POST /rides/quote -----

func (handler *RideHTTPHandler) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req tripRequest
	if !handler.decodeJSON(ctx, w, r, &req, false) {
		return
	}

	quote, err := handler.svc.Quote(ctx, ports.QuoteInput{Pickup: req.Pickup, Dropoff: req.Dropoff})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, quote)
}

// ----- POST /rides/{ride_id}/accept -----

func (handler *RideHTTPHandler) handleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims, ok := handler.claims(ctx, w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	view, err := handler.svc.Accept(ctx, r.PathValue("ride_id"), ports.Actor(claims.UserID(), claims.Role))
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, view)
}

// ----- PUT /rides/{ride_id}/status -----

func (handler *RideHTTPHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims, ok := handler.claims(ctx, w, r)
	if !ok {
		return
	}

	var req statusRequest
	if !handler.decodeJSON(ctx, w, r, &req, false) {
		return
	}

	status, err := ride.ParseStatus(req.Status)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest,
			"status must be one of: ACCEPTED, ARRIVED, STARTED, COMPLETED, CANCELLED", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	view, err := handler.svc.UpdateStatus(ctx, ports.StatusInput{
		RideID: r.PathValue("ride_id"),
		Actor:  ports.Actor(claims.UserID(), claims.Role),
		Status: status,
		Reason: req.Reason,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, view)
}

// ----- POST /rides/{ride_id}/cancel -----

func (handler *RideHTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims, ok := handler.claims(ctx, w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if !handler.decodeJSON(ctx, w, r, &req, true) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	view, err := handler.svc.Cancel(ctx, ports.StatusInput{
		RideID: r.PathValue("ride_id"),
		Actor:  ports.Actor(claims.UserID(), claims.Role),
		Status: ride.StatusCancelled,
		Reason: req.Reason,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, view)
}

// ----- GET /rides/{ride_id} -----

func (handler *RideHTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims, ok := handler.claims(ctx, w, r)
	if !ok {
		return
	}

	view, err := handler.svc.Get(ctx, r.PathValue("ride_id"), ports.Actor(claims.UserID(), claims.Role))
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, view)
}

// ----- GET /rides?active=true&limit=20 -----

type listResponse struct {
	Rides []ports.RideView `json:"rides"`
	Count int              `json:"count"`
}

func (handler *RideHTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims, ok := handler.claims(ctx, w, r)
	if !ok {
		return
	}

	in := ports.ListRidesInput{Actor: ports.Actor(claims.UserID(), claims.Role)}
	query := r.URL.Query()
	if v := query.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "active must be a boolean", err)
			return
		}
		in.ActiveOnly = active
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, "limit must be an integer", err)
			return
		}
		in.Limit = limit
	}

	ctx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	views, err := handler.svc.List(ctx, in)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	if views == nil {
		views = []ports.RideView{}
	}
	handler.jsonResponse(ctx, w, http.StatusOK, listResponse{Rides: views, Count: len(views)})
}

func (handler *RideHTTPHandler) claims(ctx context.Context, w http.ResponseWriter, r *http.Request) (*jwt.Claims, bool) {
	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return nil, false
	}
	return claims, true
}

func trimAddress(p geo.Point) geo.Point {
	p.Address = strings.TrimSpace(p.Address)
	return p
}
