package testutil

import (
	"net/http"

	"github.com/google/uuid"

	id "frontdesk/pkg/domain"
	"frontdesk/pkg/requestcontext"
)

// Actor is the staff identity a test request acts as.
type Actor struct {
	StaffID       id.StaffID
	CondominiumID id.CondominiumID
	Role          string
	Name          string
}

// NewActor returns a fresh actor with the given role in a new condominium.
func NewActor(role string) Actor {
	return Actor{
		StaffID:       id.StaffID(uuid.New()),
		CondominiumID: id.CondominiumID(uuid.New()),
		Role:          role,
		Name:          "Test " + role,
	}
}

// WithActor attaches the actor to the request context the way the auth
// middleware does for a validated token.
func WithActor(req *http.Request, a Actor) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), a.StaffID, a.CondominiumID, a.Role, a.Name)
	return req.WithContext(ctx)
}
