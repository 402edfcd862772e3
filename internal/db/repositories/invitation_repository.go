package repositories

import (
	"context"
	"fmt"

	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/models/entities"
	"spacewh/mis/internal/providers"
)

// InvitationRepository reads and writes the invitations collection.
// Lookups return (nil, nil) when nothing matches; errors are store failures.
type InvitationRepository struct {
	store providers.RecordStore
}

func NewInvitationRepository(store providers.RecordStore) *InvitationRepository {
	return &InvitationRepository{store: store}
}

// Create stores a new invitation and returns it as persisted
func (r *InvitationRepository) Create(ctx context.Context, inv entities.Invitation) (*entities.Invitation, error) {
	rec, err := providers.EncodeRecord(inv)
	if err != nil {
		return nil, fmt.Errorf("encode invitation: %w", err)
	}
	created, err := r.store.Create(ctx, constants.CollectionInvitations, rec)
	if err != nil {
		return nil, err
	}
	return decodeOne[entities.Invitation](created)
}

// FindByCode fetches the invitation with the given code, whatever its status
func (r *InvitationRepository) FindByCode(ctx context.Context, code string) (*entities.Invitation, error) {
	rows, err := r.store.Query(ctx, constants.CollectionInvitations, providers.Filter{"code": code})
	if err != nil {
		return nil, err
	}
	return first[entities.Invitation](rows)
}

// FindPending fetches a pending invitation matching both code and PIN
func (r *InvitationRepository) FindPending(ctx context.Context, code, pin string) (*entities.Invitation, error) {
	rows, err := r.store.Query(ctx, constants.CollectionInvitations, providers.Filter{
		"code":   code,
		"pin":    pin,
		"status": constants.InviteStatusPending,
	})
	if err != nil {
		return nil, err
	}
	return first[entities.Invitation](rows)
}

// MarkStatus moves the invitation to status "to". When from is non-empty the
// update only applies if the invitation is currently in that status. It
// reports whether a row changed.
func (r *InvitationRepository) MarkStatus(ctx context.Context, code string, from, to constants.InviteStatus) (bool, error) {
	filter := providers.Filter{"code": code}
	if from != "" {
		filter["status"] = from
	}
	rows, err := r.store.Update(ctx, constants.CollectionInvitations, filter, providers.Record{"status": to})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ListByStatus returns every invitation currently in status
func (r *InvitationRepository) ListByStatus(ctx context.Context, status constants.InviteStatus) ([]entities.Invitation, error) {
	rows, err := r.store.Query(ctx, constants.CollectionInvitations, providers.Filter{"status": status})
	if err != nil {
		return nil, err
	}
	return decodeAll[entities.Invitation](rows)
}

// List returns every invitation
func (r *InvitationRepository) List(ctx context.Context) ([]entities.Invitation, error) {
	rows, err := r.store.Query(ctx, constants.CollectionInvitations, nil)
	if err != nil {
		return nil, err
	}
	return decodeAll[entities.Invitation](rows)
}
