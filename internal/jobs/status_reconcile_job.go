package jobs

import (
	"context"
	"fmt"
	"time"

	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/db/repositories"
	"spacewh/mis/internal/logging"
)

// StatusReconcileJob repairs invitation statuses whose write was lost after
// the record that justifies them was stored: an onboarding record for a
// pending invitation, or an active membership for a pending or onboarded one.
type StatusReconcileJob struct {
	invitations *repositories.InvitationRepository
	onboarding  *repositories.OnboardingRepository
	memberships *repositories.MembershipRepository
}

// ReconcileResult summarises one pass.
type ReconcileResult struct {
	Scanned   int
	Onboarded int
	Approved  int
	Failed    int
}

func NewStatusReconcileJob(
	invitations *repositories.InvitationRepository,
	onboarding *repositories.OnboardingRepository,
	memberships *repositories.MembershipRepository,
) *StatusReconcileJob {
	return &StatusReconcileJob{
		invitations: invitations,
		onboarding:  onboarding,
		memberships: memberships,
	}
}

// Run makes one pass over every invitation that is not yet approved.
// Per-invitation failures are counted and skipped; only a failure to list
// invitations aborts the pass.
func (j *StatusReconcileJob) Run(ctx context.Context) (ReconcileResult, error) {
	start := time.Now()
	var res ReconcileResult

	for _, status := range []constants.InviteStatus{constants.InviteStatusPending, constants.InviteStatusOnboarded} {
		invs, err := j.invitations.ListByStatus(ctx, status)
		if err != nil {
			return res, fmt.Errorf("list %s invitations: %w", status, err)
		}

		for _, inv := range invs {
			res.Scanned++
			to, err := j.target(ctx, inv.Code, status)
			if err != nil {
				res.Failed++
				logging.Warn("Reconcile lookup failed", "code", inv.Code, "error", err)
				continue
			}
			if to == "" {
				continue
			}

			changed, err := j.invitations.MarkStatus(ctx, inv.Code, status, to)
			if err != nil {
				res.Failed++
				logging.Warn("Reconcile status update failed", "code", inv.Code, "error", err)
				continue
			}
			if !changed {
				continue
			}
			logging.Info("Invitation status repaired", "code", inv.Code, "from", status, "to", to)
			if to == constants.InviteStatusApproved {
				res.Approved++
			} else {
				res.Onboarded++
			}
		}
	}

	logging.Info("Status reconcile finished",
		"scanned", res.Scanned,
		"onboarded", res.Onboarded,
		"approved", res.Approved,
		"failed", res.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// target returns the status the invitation should be in, or "" when current
// is already right.
func (j *StatusReconcileJob) target(ctx context.Context, code string, current constants.InviteStatus) (constants.InviteStatus, error) {
	active, err := j.memberships.FindActiveByInvitation(ctx, code)
	if err != nil {
		return "", err
	}
	if len(active) > 0 {
		return constants.InviteStatusApproved, nil
	}
	if current != constants.InviteStatusPending {
		return "", nil
	}

	rec, err := j.onboarding.FindByInvitation(ctx, code)
	if err != nil {
		return "", err
	}
	if rec != nil {
		return constants.InviteStatusOnboarded, nil
	}
	return "", nil
}

// RunScheduled runs the job now and then every interval until ctx is done.
func (j *StatusReconcileJob) RunScheduled(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := j.Run(ctx); err != nil {
		logging.Error("Status reconcile initial run failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				logging.Error("Status reconcile scheduled run failed", "error", err)
			}
		case <-ctx.Done():
			logging.Info("Shutting down status reconcile job")
			return
		}
	}
}
