package repositories

import (
	"context"
	"fmt"

	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/models/entities"
	"spacewh/mis/internal/providers"
)

type MembershipRepository struct {
	store providers.RecordStore
}

func NewMembershipRepository(store providers.RecordStore) *MembershipRepository {
	return &MembershipRepository{store: store}
}

// Create commits a membership. Uniqueness violations come back as a
// conflict StoreError (see providers.IsConflict).
func (r *MembershipRepository) Create(ctx context.Context, m entities.Membership) (*entities.Membership, error) {
	rec, err := providers.EncodeRecord(m)
	if err != nil {
		return nil, fmt.Errorf("encode membership: %w", err)
	}
	created, err := r.store.Create(ctx, constants.CollectionMemberships, rec)
	if err != nil {
		return nil, err
	}
	return decodeOne[entities.Membership](created)
}

// FindActiveByInvitation returns every active membership bound to an invitation.
// More than one means the store is inconsistent.
func (r *MembershipRepository) FindActiveByInvitation(ctx context.Context, invitationCode string) ([]entities.Membership, error) {
	return r.find(ctx, providers.Filter{"invitation_code": invitationCode, "active": true})
}

// FindActiveByCode returns active memberships whose public code equals code
func (r *MembershipRepository) FindActiveByCode(ctx context.Context, membershipCode string) ([]entities.Membership, error) {
	return r.find(ctx, providers.Filter{"membership_code": membershipCode, "active": true})
}

// FindActiveByKey returns active memberships whose bearer key equals key
func (r *MembershipRepository) FindActiveByKey(ctx context.Context, key string) ([]entities.Membership, error) {
	return r.find(ctx, providers.Filter{"membership_key": key, "active": true})
}

// CodeExists reports whether any membership, active or not, holds membershipCode
func (r *MembershipRepository) CodeExists(ctx context.Context, membershipCode string) (bool, error) {
	rows, err := r.store.Query(ctx, constants.CollectionMemberships, providers.Filter{"membership_code": membershipCode})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// List returns every membership as stored, including keys. Callers exposing
// the result must redact it.
func (r *MembershipRepository) List(ctx context.Context) ([]entities.Membership, error) {
	return r.find(ctx, nil)
}

func (r *MembershipRepository) find(ctx context.Context, filter providers.Filter) ([]entities.Membership, error) {
	rows, err := r.store.Query(ctx, constants.CollectionMemberships, filter)
	if err != nil {
		return nil, err
	}
	return decodeAll[entities.Membership](rows)
}
