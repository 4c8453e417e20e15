package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tillpoint-backend/internal/sessions"
)

type sessionResponse struct {
	SessionID  uuid.UUID         `json:"session_id"`
	OperatorID string            `json:"operator_id,omitempty"`
	OpenedAt   time.Time         `json:"opened_at"`
	Cart       sessions.CartView `json:"cart"`
}

func newSessionResponse(s *sessions.Session) sessionResponse {
	return sessionResponse{
		SessionID:  s.ID,
		OperatorID: s.OperatorID,
		OpenedAt:   s.OpenedAt.UTC(),
		Cart:       s.View(),
	}
}
