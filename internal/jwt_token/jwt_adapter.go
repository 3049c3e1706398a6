package jwttoken

import (
	"frontdesk/internal/platform/middleware"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
)

// ToMiddlewareClaims converts validated claims into typed actor claims.
func ToMiddlewareClaims(claims *Claims) (*middleware.ActorClaims, error) {
	staffID, err := id.ParseStaffID(claims.StaffID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid staff claim")
	}
	condoID, err := id.ParseCondominiumID(claims.CondominiumID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid condominium claim")
	}
	return &middleware.ActorClaims{
		StaffID:       staffID,
		CondominiumID: condoID,
		Role:          claims.Role,
		Name:          claims.Name,
		Unit:          claims.Unit,
		JTI:           claims.ID,
	}, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*middleware.ActorClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
