package jobs

import (
	"context"
	"time"

	"spacewh/mis/internal/db/repositories"
	"spacewh/mis/internal/logging"
)

// InitializeJobs starts the background jobs and blocks until ctx is done.
// A non-positive interval disables the reconcile job.
func InitializeJobs(
	ctx context.Context,
	invitations *repositories.InvitationRepository,
	onboarding *repositories.OnboardingRepository,
	memberships *repositories.MembershipRepository,
	reconcileInterval time.Duration,
) {
	if reconcileInterval <= 0 {
		logging.Info("Status reconcile job disabled")
		<-ctx.Done()
		return
	}

	reconcile := NewStatusReconcileJob(invitations, onboarding, memberships)
	reconcile.RunScheduled(ctx, reconcileInterval)
}
