package jwt

import (
	"encoding/json"
	"errors"
	"strings"

	"ride-dispatch/internal/domain/user"
)

var ErrBadAuthMsg = errors.New("invalid authenticate message")

// ClientAuthMessage is what clients send first over WS:
// {"type":"authenticate","data":{"token":"Bearer <jwt>"}}
type ClientAuthMessage struct {
	Type string `json:"type"`
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

type Result struct {
	Claims *Claims
	Raw    string
}

// ValidateWSAuth parses the first frame, validates the JWT, and enforces RBAC. Used in WebSocket auth.
func ValidateWSAuth(frame []byte, mgr *Manager, allowedRoles ...user.Role) (*Result, error) {
	// parse auth message
	var msg ClientAuthMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, ErrBadAuthMsg
	}

	// validate message type
	if strings.ToLower(strings.TrimSpace(msg.Type)) != "authenticate" {
		return nil, ErrBadAuthMsg
	}

	// expect "Bearer <token>" wrapping
	raw, err := StripBearer(msg.Data.Token)
	if err != nil {
		return nil, err
	}

	// parse and validate token
	_, claims, err := mgr.ParseAndValidate(raw)
	if err != nil {
		return nil, err
	}

	// enforce role-based access control (RBAC)
	if err := RoleAllowed(claims, allowedRoles...); err != nil {
		return nil, err
	}

	return &Result{Claims: claims, Raw: raw}, nil
}
