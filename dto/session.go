package dto

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"mongosession/model"
)

type LoginRequest struct {
	Principal string `json:"principal" binding:"required,max=256"`
}

type AttributeRequest struct {
	Value any `json:"value"`
}

type SessionResponse struct {
	// ID is the session id for the caller's own session and an opaque handle
	// for any other, since the id doubles as the session cookie.
	ID                  string         `json:"id"`
	Current             bool           `json:"current"`
	CreatedAt           time.Time      `json:"created_at"`
	LastAccessedAt      time.Time      `json:"last_accessed_at"`
	MaxInactiveInterval int64          `json:"max_inactive_interval"` // seconds, negative never expires
	ExpireAt            *time.Time     `json:"expire_at"`
	Principal           string         `json:"principal,omitempty"`
	Attributes          map[string]any `json:"attributes"`
}

type LoginResponse struct {
	Session  SessionResponse `json:"session"`
	Redirect string          `json:"redirect,omitempty"`
}

func ToSessionResponse(session *model.Session) SessionResponse {
	resp := SessionResponse{
		ID:                  session.ID(),
		Current:             true,
		CreatedAt:           session.CreationTime(),
		LastAccessedAt:      session.LastAccessedTime(),
		MaxInactiveInterval: int64(session.MaxInactiveInterval() / time.Second),
		Principal:           session.PrincipalName(),
		Attributes:          session.Attributes(),
	}
	if expireAt := session.ExpireAt(); !expireAt.IsZero() {
		resp.ExpireAt = &expireAt
	}
	return resp
}

// ToSessionResponses lists sessions most recently used first. Sessions other
// than currentID are shown without their id or saved request.
func ToSessionResponses(sessions map[string]*model.Session, currentID string) []SessionResponse {
	out := make([]SessionResponse, 0, len(sessions))
	for id, s := range sessions {
		resp := ToSessionResponse(s)
		if id != currentID {
			resp.ID = SessionHandle(id)
			resp.Current = false
			delete(resp.Attributes, model.SavedRequestAttribute)
		}
		out = append(out, resp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
	})
	return out
}

// SessionHandle identifies a session without revealing its id.
func SessionHandle(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:16])
}
