package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/db/repositories"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/metrics"
	"spacewh/mis/internal/models/entities"
	"spacewh/mis/internal/providers"
)

const (
	maxMembershipCodeAttempts = 5
	defaultApprovalLockWait   = 5 * time.Second
)

// IssuanceService mints membership credentials for onboarded invitations.
// Approvals for one invitation run one at a time through the keyed locker;
// the store's unique index on active memberships backs that up across
// processes that do not share the locker.
type IssuanceService struct {
	invitations *repositories.InvitationRepository
	memberships *repositories.MembershipRepository
	locker      common.KeyedLocker
	metrics     *metrics.MetricsRegistry

	lockWait time.Duration
	now      func() time.Time
	newCode  func() (string, error)
}

type IssuanceOption func(*IssuanceService)

// WithLockWait bounds how long Approve waits for a concurrent approval of the
// same invitation.
func WithLockWait(d time.Duration) IssuanceOption {
	return func(s *IssuanceService) { s.lockWait = d }
}

func WithClock(now func() time.Time) IssuanceOption {
	return func(s *IssuanceService) { s.now = now }
}

func WithCodeGenerator(gen func() (string, error)) IssuanceOption {
	return func(s *IssuanceService) { s.newCode = gen }
}

func NewIssuanceService(
	invitations *repositories.InvitationRepository,
	memberships *repositories.MembershipRepository,
	locker common.KeyedLocker,
	m *metrics.MetricsRegistry,
	opts ...IssuanceOption,
) *IssuanceService {
	s := &IssuanceService{
		invitations: invitations,
		memberships: memberships,
		locker:      locker,
		metrics:     m,
		lockWait:    defaultApprovalLockWait,
		now:         time.Now,
		newCode:     common.GenerateMembershipCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ApproveInput struct {
	InvitationCode string
	UserName       *string
	Actor          string
}

// Approve runs guard, precondition, generation and commit in that order and
// returns the new membership, key included. The key is not retrievable
// through this service afterwards.
func (s *IssuanceService) Approve(ctx context.Context, in ApproveInput) (*entities.Membership, error) {
	log := logging.GetLogger().With("invitation_code", in.InvitationCode, "actor", in.Actor)

	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	unlock, err := s.locker.Lock(lockCtx, in.InvitationCode)
	cancel()
	if err != nil {
		s.reject("lock")
		log.Warnw("Approval lock unavailable", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
	}
	defer unlock()

	// Replay guard
	active, err := s.memberships.FindActiveByInvitation(ctx, in.InvitationCode)
	if err != nil {
		return nil, fmt.Errorf("check existing membership: %w", err)
	}
	if len(active) > 0 {
		s.reject("conflict")
		log.Warnw("Replay blocked, membership already exists")
		return nil, fmt.Errorf("%w: membership already exists for %s", ErrConflict, in.InvitationCode)
	}

	// Precondition
	inv, err := s.invitations.FindByCode(ctx, in.InvitationCode)
	if err != nil {
		return nil, fmt.Errorf("find invitation: %w", err)
	}
	if inv == nil {
		s.reject("not_found")
		log.Warnw("Invitation not found")
		return nil, ErrNotFound
	}
	switch inv.Status {
	case constants.InviteStatusApproved:
		s.reject("conflict")
		log.Warnw("Replay blocked, invitation already approved")
		return nil, fmt.Errorf("%w: invitation %s already approved", ErrConflict, in.InvitationCode)
	case constants.InviteStatusOnboarded:
	default:
		s.reject("invalid_state")
		log.Warnw("Invitation not onboarded", "status", inv.Status)
		return nil, fmt.Errorf("%w: invitation %s is %s", ErrInvalidState, in.InvitationCode, inv.Status)
	}

	userName := inv.InvitedName
	if in.UserName != nil {
		userName = *in.UserName
	}

	// Generate
	code, err := s.uniqueMembershipCode(ctx)
	if err != nil {
		s.reject("persistence")
		return nil, err
	}
	issuedAt := s.now().UTC()
	membership := entities.Membership{
		InvitationCode: in.InvitationCode,
		MembershipCode: code,
		MembershipKey:  common.MembershipKey(code, issuedAt),
		IssuedTo:       userName,
		Active:         true,
		IssuedAt:       entities.NewStoreTime(issuedAt),
	}

	// Commit
	created, err := s.memberships.Create(ctx, membership)
	if err != nil {
		if providers.IsConflict(err) {
			s.reject("conflict")
			log.Warnw("Membership commit rejected as duplicate", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		s.reject("persistence")
		log.Errorw("Failed to save membership", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	// Some stores echo back without the key; ours is authoritative.
	created.MembershipKey = membership.MembershipKey

	changed, err := s.invitations.MarkStatus(ctx, in.InvitationCode, constants.InviteStatusOnboarded, constants.InviteStatusApproved)
	if err != nil {
		log.Errorw("Membership issued but invitation status not updated", "error", err)
	} else if !changed {
		log.Warnw("Membership issued but invitation was no longer onboarded")
	}

	if s.metrics != nil {
		s.metrics.MembershipsIssuedTotal.Inc()
	}
	log.Infow("Membership approved", "membership_code", common.MaskCredential(code), "issued_to", userName)
	return created, nil
}

// State reports where an invitation is in the issuance lifecycle. An active
// membership means approved even if the status write after commit was lost.
func (s *IssuanceService) State(ctx context.Context, invitationCode string) (entities.InvitationState, error) {
	inv, err := s.invitations.FindByCode(ctx, invitationCode)
	if err != nil {
		return "", fmt.Errorf("find invitation: %w", err)
	}
	if inv == nil {
		return "", ErrNotFound
	}
	if inv.Status == constants.InviteStatusApproved {
		return entities.StateApproved, nil
	}

	active, err := s.memberships.FindActiveByInvitation(ctx, invitationCode)
	if err != nil {
		return "", fmt.Errorf("check existing membership: %w", err)
	}
	if len(active) > 0 {
		return entities.StateApproved, nil
	}
	if inv.Status == constants.InviteStatusOnboarded {
		return entities.StateOnboarded, nil
	}
	return entities.StatePending, nil
}

// ListMemberships returns every membership with its key removed
func (s *IssuanceService) ListMemberships(ctx context.Context) ([]entities.Membership, error) {
	all, err := s.memberships.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	for i := range all {
		all[i] = all[i].Redacted()
	}
	return all, nil
}

func (s *IssuanceService) uniqueMembershipCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= maxMembershipCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", fmt.Errorf("%w: generate membership code: %w", ErrPersistence, err)
		}
		taken, err := s.memberships.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("%w: check membership code: %w", ErrPersistence, err)
		}
		if !taken {
			return code, nil
		}
		logging.Warn("Membership code collision, regenerating", "attempt", attempt)
	}
	return "", fmt.Errorf("%w: no free membership code after %d attempts", ErrPersistence, maxMembershipCodeAttempts)
}

func (s *IssuanceService) reject(reason string) {
	if s.metrics != nil {
		s.metrics.ApprovalsRejectedTotal.WithLabelValues(reason).Inc()
	}
}

// IsStoreFailure reports whether err came from the record store rather than
// from a lifecycle rule.
func IsStoreFailure(err error) bool {
	var storeErr *providers.StoreError
	return errors.As(err, &storeErr)
}
