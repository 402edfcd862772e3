package services

import (
	"context"
	"fmt"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/db/repositories"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/models/entities"
	"spacewh/mis/internal/providers"
)

const maxInvitationCodeAttempts = 3

// InvitationService covers the invitee side of the lifecycle: creating
// invitations, checking code and PIN, and taking the onboarding submission.
type InvitationService struct {
	invitations *repositories.InvitationRepository
	onboarding  *repositories.OnboardingRepository
}

func NewInvitationService(invitations *repositories.InvitationRepository, onboarding *repositories.OnboardingRepository) *InvitationService {
	return &InvitationService{
		invitations: invitations,
		onboarding:  onboarding,
	}
}

// Create issues a pending invitation with a fresh code and PIN
func (s *InvitationService) Create(ctx context.Context, invitedName string) (*entities.Invitation, error) {
	for attempt := 1; ; attempt++ {
		code, err := common.GenerateInvitationCode()
		if err != nil {
			return nil, fmt.Errorf("generate invitation code: %w", err)
		}
		pin, err := common.GeneratePin()
		if err != nil {
			return nil, fmt.Errorf("generate pin: %w", err)
		}

		inv, err := s.invitations.Create(ctx, entities.Invitation{
			Code:        code,
			Pin:         pin,
			InvitedName: invitedName,
			Status:      constants.InviteStatusPending,
		})
		if err == nil {
			logging.Info("Invitation created", "code", code, "invited_name", invitedName)
			return inv, nil
		}
		if !providers.IsConflict(err) || attempt >= maxInvitationCodeAttempts {
			return nil, fmt.Errorf("create invitation: %w", err)
		}
		logging.Warn("Invitation code collision, regenerating", "attempt", attempt)
	}
}

// Validate returns the pending invitation matching code and pin, or ErrNotFound
func (s *InvitationService) Validate(ctx context.Context, code, pin string) (*entities.Invitation, error) {
	inv, err := s.invitations.FindPending(ctx, code, pin)
	if err != nil {
		return nil, fmt.Errorf("find pending invitation: %w", err)
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	return inv, nil
}

type SubmitOnboardingInput struct {
	Code         string
	VoiceConsent bool
	Responses    map[string]any
}

// SubmitOnboarding stores the invitee's answers once and moves the invitation
// from pending to onboarded.
func (s *InvitationService) SubmitOnboarding(ctx context.Context, in SubmitOnboardingInput) (*entities.OnboardingRecord, error) {
	inv, err := s.invitations.FindByCode(ctx, in.Code)
	if err != nil {
		return nil, fmt.Errorf("find invitation: %w", err)
	}
	if inv == nil {
		return nil, ErrNotFound
	}

	existing, err := s.onboarding.FindByInvitation(ctx, in.Code)
	if err != nil {
		return nil, fmt.Errorf("find onboarding: %w", err)
	}
	if existing != nil {
		// A previous submission may have landed without its status change.
		if inv.Status == constants.InviteStatusPending {
			s.markOnboarded(ctx, in.Code)
		}
		return nil, fmt.Errorf("%w: onboarding already submitted for %s", ErrConflict, in.Code)
	}
	if inv.Status != constants.InviteStatusPending {
		return nil, fmt.Errorf("%w: invitation %s is %s", ErrConflict, in.Code, inv.Status)
	}

	responses := in.Responses
	if responses == nil {
		responses = map[string]any{}
	}
	rec, err := s.onboarding.Create(ctx, entities.OnboardingRecord{
		InvitationCode: in.Code,
		VoiceConsent:   in.VoiceConsent,
		Responses:      responses,
	})
	if err != nil {
		if providers.IsConflict(err) {
			return nil, fmt.Errorf("%w: onboarding already submitted for %s", ErrConflict, in.Code)
		}
		return nil, fmt.Errorf("%w: store onboarding: %w", ErrPersistence, err)
	}

	s.markOnboarded(ctx, in.Code)
	logging.Info("Onboarding submitted", "code", in.Code)
	return rec, nil
}

// List returns every invitation for the admin listing
func (s *InvitationService) List(ctx context.Context) ([]entities.Invitation, error) {
	invs, err := s.invitations.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invs, nil
}

func (s *InvitationService) markOnboarded(ctx context.Context, code string) {
	changed, err := s.invitations.MarkStatus(ctx, code, constants.InviteStatusPending, constants.InviteStatusOnboarded)
	if err != nil {
		logging.Error("Failed to mark invitation onboarded", "code", code, "error", err)
		return
	}
	if !changed {
		logging.Warn("Invitation was not pending when marking onboarded", "code", code)
	}
}
