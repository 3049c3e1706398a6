// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services read them. Keeping the package free of
// net/http lets services and background workers import it without pulling in
// transport code.
//
// Usage in services (read values):
//
//	staffID := requestcontext.StaffID(ctx)
//	condoID := requestcontext.CondominiumID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithActor(ctx, staffID, condoID, "doorman", "Joao")
package requestcontext

import (
	"context"
	"time"

	id "frontdesk/pkg/domain"
)

type (
	staffIDKey       struct{}
	staffNameKey     struct{}
	condominiumIDKey struct{}
	roleKey          struct{}
	unitKey          struct{}
	clientIPKey      struct{}
	userAgentKey     struct{}
	requestIDKey     struct{}
	requestTimeKey   struct{}
)

var (
	ContextKeyStaffID       = staffIDKey{}
	ContextKeyStaffName     = staffNameKey{}
	ContextKeyCondominiumID = condominiumIDKey{}
	ContextKeyRole          = roleKey{}
	ContextKeyUnit          = unitKey{}
	ContextKeyClientIP      = clientIPKey{}
	ContextKeyUserAgent     = userAgentKey{}
	ContextKeyRequestID     = requestIDKey{}
	ContextKeyRequestTime   = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Actor (staff member or resident acting on a condominium)
// -----------------------------------------------------------------------------

// StaffID returns the authenticated actor id, or the zero value.
func StaffID(ctx context.Context) id.StaffID {
	if v, ok := ctx.Value(ContextKeyStaffID).(id.StaffID); ok {
		return v
	}
	return id.StaffID{}
}

// StaffName returns the display name of the authenticated actor.
func StaffName(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyStaffName).(string); ok {
		return v
	}
	return ""
}

// CondominiumID returns the condominium the actor is bound to.
func CondominiumID(ctx context.Context) id.CondominiumID {
	if v, ok := ctx.Value(ContextKeyCondominiumID).(id.CondominiumID); ok {
		return v
	}
	return id.CondominiumID{}
}

// Role returns the actor role claim.
func Role(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRole).(string); ok {
		return v
	}
	return ""
}

// Unit returns the unit a resident actor lives in.
func Unit(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyUnit).(string); ok {
		return v
	}
	return ""
}

// WithUnit binds a resident actor to their unit.
func WithUnit(ctx context.Context, unit string) context.Context {
	return context.WithValue(ctx, ContextKeyUnit, unit)
}

// WithActor injects the authenticated actor into the context.
func WithActor(ctx context.Context, staffID id.StaffID, condoID id.CondominiumID, role, name string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyStaffID, staffID)
	ctx = context.WithValue(ctx, ContextKeyCondominiumID, condoID)
	ctx = context.WithValue(ctx, ContextKeyRole, role)
	ctx = context.WithValue(ctx, ContextKeyStaffName, name)
	return ctx
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
