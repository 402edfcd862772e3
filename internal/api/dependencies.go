package api

import (
	"time"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/db/repositories"
	"spacewh/mis/internal/metrics"
	"spacewh/mis/internal/providers"
	"spacewh/mis/internal/services"
)

type Repositories struct {
	Invitations *repositories.InvitationRepository
	Onboarding  *repositories.OnboardingRepository
	Memberships *repositories.MembershipRepository
}

type Services struct {
	Invitations *services.InvitationService
	Issuance    *services.IssuanceService
	Validator   services.Validator
	Responder   services.Responder
}

type Dependencies struct {
	Store     providers.RecordStore
	Repo      *Repositories
	Services  *Services
	Metrics   *metrics.MetricsRegistry
	StartedAt time.Time
}

// InitDependencies wires repositories and services over one record store.
func InitDependencies(store providers.RecordStore, locker common.KeyedLocker, m *metrics.MetricsRegistry, opts ...services.IssuanceOption) *Dependencies {
	repos := &Repositories{
		Invitations: repositories.NewInvitationRepository(store),
		Onboarding:  repositories.NewOnboardingRepository(store),
		Memberships: repositories.NewMembershipRepository(store),
	}

	svcs := &Services{
		Invitations: services.NewInvitationService(repos.Invitations, repos.Onboarding),
		Issuance:    services.NewIssuanceService(repos.Invitations, repos.Memberships, locker, m, opts...),
		Validator:   services.NewCredentialValidator(repos.Memberships, m),
		Responder:   services.NewCannedResponder(),
	}

	return &Dependencies{
		Store:     store,
		Repo:      repos,
		Services:  svcs,
		Metrics:   m,
		StartedAt: time.Now(),
	}
}
