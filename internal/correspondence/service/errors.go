package service

import (
	"errors"

	dErrors "frontdesk/pkg/domain-errors"
	"frontdesk/pkg/platform/sentinel"
)

// wrapStoreErr translates store sentinels into domain errors. Domain errors
// raised inside store callbacks pass through unchanged.
func wrapStoreErr(err error, action string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "correspondence not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "correspondence was modified concurrently")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "invalid state while trying to "+action)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "store unavailable while trying to "+action)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
}
