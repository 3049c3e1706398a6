// Package access decides whether an actor may perform an operation on a
// condominium's records. Services call Require themselves so their operations
// stay safe when exposed without the HTTP layer.
package access

import (
	"context"
	"strings"

	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/requestcontext"
)

// Role is the actor's function in the condominium.
type Role string

const (
	RoleDoorman  Role = "doorman"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
	RoleResident Role = "resident"
)

// Capability names an operation guarded by Require.
type Capability string

const (
	CapRegister        Capability = "register"
	CapPickup          Capability = "pickup"
	CapSearch          Capability = "search"
	CapCreateNotice    Capability = "create_notice"
	CapManageTemplates Capability = "manage_templates"
	CapRenderDocuments Capability = "render_documents"
)

var grants = map[Role]map[Capability]bool{
	RoleDoorman: {
		CapRegister: true, CapPickup: true, CapSearch: true,
		CapCreateNotice: true, CapRenderDocuments: true,
	},
	RoleManager: {
		CapRegister: true, CapPickup: true, CapSearch: true,
		CapCreateNotice: true, CapRenderDocuments: true, CapManageTemplates: true,
	},
	RoleAdmin: {
		CapRegister: true, CapPickup: true, CapSearch: true,
		CapCreateNotice: true, CapRenderDocuments: true, CapManageTemplates: true,
	},
	RoleResident: {
		CapSearch: true,
	},
}

// Actor is the authenticated principal behind a request.
type Actor struct {
	StaffID       id.StaffID
	Name          string
	CondominiumID id.CondominiumID
	Role          Role
	// Unit is set for residents only.
	Unit string
}

// FromContext builds the actor injected by the auth middleware.
func FromContext(ctx context.Context) Actor {
	return Actor{
		StaffID:       requestcontext.StaffID(ctx),
		Name:          requestcontext.StaffName(ctx),
		CondominiumID: requestcontext.CondominiumID(ctx),
		Role:          Role(requestcontext.Role(ctx)),
		Unit:          requestcontext.Unit(ctx),
	}
}

// IsStaff reports whether the actor works the front desk.
func (a Actor) IsStaff() bool {
	return a.Role == RoleDoorman || a.Role == RoleManager || a.Role == RoleAdmin
}

// Can reports whether the role grants the capability.
func (a Actor) Can(capability Capability) bool {
	return grants[a.Role][capability]
}

// Require fails unless the actor holds the capability for the condominium.
// Admins are not bound to a single condominium.
func Require(ctx context.Context, capability Capability, condoID id.CondominiumID) (Actor, error) {
	actor := FromContext(ctx)
	if actor.StaffID.IsNil() {
		return actor, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !actor.Can(capability) {
		return actor, dErrors.New(dErrors.CodeForbidden, "operation not permitted for role "+string(actor.Role))
	}
	if actor.Role != RoleAdmin && actor.CondominiumID != condoID {
		return actor, dErrors.New(dErrors.CodeForbidden, "condominium mismatch")
	}
	return actor, nil
}

// SeesUnit reports whether the actor may read records of unit. Staff see
// every unit; residents only their own.
func (a Actor) SeesUnit(unit string) bool {
	if a.Role != RoleResident {
		return true
	}
	return a.Unit != "" && strings.EqualFold(a.Unit, strings.TrimSpace(unit))
}
