package service

import (
	"context"
	"time"

	"frontdesk/internal/access"
	"frontdesk/internal/correspondence/models"
	id "frontdesk/pkg/domain"
	dErrors "frontdesk/pkg/domain-errors"
)

// Search looks records up by protocol, unit or resident-name prefix within
// the actor's condominium. Residents only ever see their own unit.
func (s *Service) Search(ctx context.Context, q models.SearchQuery) ([]*models.Correspondence, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "correspondence.Search")
	defer span.End()

	actor, err := access.Require(ctx, access.CapSearch, q.CondominiumID)
	if err != nil {
		return nil, err
	}
	q.Normalize()
	if actor.Role == access.RoleResident {
		if actor.Unit == "" {
			return nil, dErrors.New(dErrors.CodeForbidden, "resident is not bound to a unit")
		}
		q.Unit = actor.Unit
	}

	results, err := s.store.Search(ctx, q)
	if err != nil {
		return nil, wrapStoreErr(err, "search correspondences")
	}
	if s.metrics != nil {
		s.metrics.ObserveSearch(start)
	}
	return results, nil
}

// Detail is a correspondence with its pickup evidence, when picked up.
type Detail struct {
	Correspondence *models.Correspondence `json:"correspondence"`
	Evidence       *models.PickupEvidence `json:"evidence,omitempty"`
}

// Get loads one record for an authenticated actor.
func (s *Service) Get(ctx context.Context, corrID id.CorrespondenceID) (*Detail, error) {
	detail, err := s.Lookup(ctx, corrID)
	if err != nil {
		return nil, err
	}
	actor, err := access.Require(ctx, access.CapSearch, detail.Correspondence.CondominiumID)
	if err != nil {
		return nil, err
	}
	if !actor.SeesUnit(detail.Correspondence.Recipient.Unit) {
		return nil, dErrors.New(dErrors.CodeNotFound, "correspondence not found")
	}
	return detail, nil
}

// Lookup loads a record without an actor. It backs the public verification
// view, which shows only what is printed on the documents.
func (s *Service) Lookup(ctx context.Context, corrID id.CorrespondenceID) (*Detail, error) {
	c, err := s.store.FindByID(ctx, corrID)
	if err != nil {
		return nil, wrapStoreErr(err, "load correspondence")
	}
	detail := &Detail{Correspondence: c}
	if c.Status.IsTerminal() && c.EvidenceID != nil {
		ev, err := s.store.FindEvidence(ctx, *c.EvidenceID)
		if err != nil {
			return nil, wrapStoreErr(err, "load pickup evidence")
		}
		detail.Evidence = ev
	}
	return detail, nil
}

// PickupPolicy exposes the policy that ConfirmPickup enforces.
func (s *Service) PickupPolicy(ctx context.Context, condoID id.CondominiumID) (models.PickupPolicy, error) {
	policy, err := s.policies.PickupPolicy(ctx, condoID)
	if err != nil {
		return models.PickupPolicy{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve pickup policy")
	}
	return policy, nil
}

// LookupCorrespondence is Lookup flattened for the verification view.
func (s *Service) LookupCorrespondence(ctx context.Context, corrID id.CorrespondenceID) (*models.Correspondence, *models.PickupEvidence, error) {
	detail, err := s.Lookup(ctx, corrID)
	if err != nil {
		return nil, nil, err
	}
	return detail.Correspondence, detail.Evidence, nil
}
