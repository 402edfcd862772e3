package repositories

import (
	"context"
	"fmt"

	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/models/entities"
	"spacewh/mis/internal/providers"
)

type OnboardingRepository struct {
	store providers.RecordStore
}

func NewOnboardingRepository(store providers.RecordStore) *OnboardingRepository {
	return &OnboardingRepository{store: store}
}

// Create stores the onboarding answers for an invitation. A second record for
// the same invitation is rejected by the store as a conflict.
func (r *OnboardingRepository) Create(ctx context.Context, rec entities.OnboardingRecord) (*entities.OnboardingRecord, error) {
	raw, err := providers.EncodeRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("encode onboarding record: %w", err)
	}
	created, err := r.store.Create(ctx, constants.CollectionOnboarding, raw)
	if err != nil {
		return nil, err
	}
	return decodeOne[entities.OnboardingRecord](created)
}

func (r *OnboardingRepository) FindByInvitation(ctx context.Context, invitationCode string) (*entities.OnboardingRecord, error) {
	rows, err := r.store.Query(ctx, constants.CollectionOnboarding, providers.Filter{"invitation_code": invitationCode})
	if err != nil {
		return nil, err
	}
	return first[entities.OnboardingRecord](rows)
}
