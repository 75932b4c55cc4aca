package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/general/contracts"
)

// route dispatches one inbound client frame. Driver frames must name the session's
// own driver id.
func (ws *WebSocket) route(ctx context.Context, s *session, msg contracts.WSInbound) {
	switch msg.Type {
	case contracts.WSDriverOnline:
		ws.handleDriverOnline(ctx, s, msg.Data)

	case contracts.WSDriverOffline:
		ws.handleDriverOffline(ctx, s, msg.Data)

	case contracts.WSUpdateLocation:
		ws.handleUpdateLocation(ctx, s, msg.Data)

	case contracts.WSAuthenticate:
		s.enqueue(errorMessage("already authenticated", "bad_request"))

	default:
		s.enqueue(errorMessage("unknown message type", "bad_request"))
	}
}

func (ws *WebSocket) handleDriverOnline(ctx context.Context, s *session, data json.RawMessage) {
	in, lat, lon, ok := ws.decodePosition(s, data)
	if !ok {
		return
	}
	if _, err := ws.dispatcher.GoOnline(ctx, s.handle, in.DriverID, lat, lon); err != nil {
		ws.replyError(ctx, s, contracts.WSDriverOnline, err)
	}
}

func (ws *WebSocket) handleDriverOffline(ctx context.Context, s *session, data json.RawMessage) {
	var in contracts.WSDriverPresencePayload
	if err := json.Unmarshal(data, &in); err != nil {
		s.enqueue(errorMessage("invalid driver_offline payload", "bad_request"))
		return
	}
	if err := ws.dispatcher.GoOffline(ctx, s.handle, in.DriverID); err != nil {
		ws.replyError(ctx, s, contracts.WSDriverOffline, err)
	}
}

func (ws *WebSocket) handleUpdateLocation(ctx context.Context, s *session, data json.RawMessage) {
	in, lat, lon, ok := ws.decodePosition(s, data)
	if !ok {
		return
	}
	if _, err := ws.dispatcher.UpdateLocation(ctx, s.handle, in.DriverID, lat, lon); err != nil {
		ws.replyError(ctx, s, contracts.WSUpdateLocation, err)
	}
}

func (ws *WebSocket) decodePosition(s *session, data json.RawMessage) (contracts.WSDriverPresencePayload, float64, float64, bool) {
	var in contracts.WSDriverPresencePayload
	if err := json.Unmarshal(data, &in); err != nil {
		s.enqueue(errorMessage("invalid payload", "bad_request"))
		return in, 0, 0, false
	}
	if in.Latitude == nil || in.Longitude == nil {
		s.enqueue(errorMessage("latitude and longitude are required", "bad_request"))
		return in, 0, 0, false
	}
	return in, *in.Latitude, *in.Longitude, true
}

func (ws *WebSocket) replyError(ctx context.Context, s *session, msgType string, err error) {
	code := "internal"
	switch {
	case errors.Is(err, dispatch.ErrNotDriver):
		code = "forbidden"
	case errors.Is(err, dispatch.ErrNotOnline):
		code = "not_online"
	case errors.Is(err, dispatch.ErrInvalidCoordinates), errors.Is(err, dispatch.ErrDriverIDRequired):
		code = "bad_request"
	case errors.Is(err, dispatch.ErrNotFound):
		code = "unauthorized"
	}

	ws.logger.Info(ctx, "ws_message_rejected", err.Error(), map[string]any{
		"user_id": s.userID,
		"type":    msgType,
		"code":    code,
	})
	s.enqueue(errorMessage(err.Error(), code))
}
