package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/db/repositories"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/metrics"
	"spacewh/mis/internal/models/entities"
)

// membershipKeyPattern matches a full bearer key (code plus issuance time).
// Anything else is looked up as a membership code.
var membershipKeyPattern = regexp.MustCompile(`^MEMBER-[0-9A-F]{6}-[0-9]+$`)

// lookupTimeout bounds a shared lookup, which outlives any single caller's
// context.
const lookupTimeout = 10 * time.Second

// Validator resolves a presented credential to an identity.
type Validator interface {
	Validate(ctx context.Context, key string) (*entities.Identity, error)
}

// CredentialValidator answers "which active membership is this key" for both
// the REST bearer path and the session handshake.
type CredentialValidator struct {
	memberships *repositories.MembershipRepository
	metrics     *metrics.MetricsRegistry
	group       singleflight.Group
}

var _ Validator = (*CredentialValidator)(nil)

func NewCredentialValidator(memberships *repositories.MembershipRepository, m *metrics.MetricsRegistry) *CredentialValidator {
	return &CredentialValidator{
		memberships: memberships,
		metrics:     m,
	}
}

// Validate returns the identity bound to key. It returns ErrInvalidCredential
// when no active membership matches, and also when several do: an ambiguous
// match never authenticates. Store failures are returned as-is.
func (v *CredentialValidator) Validate(ctx context.Context, key string) (*entities.Identity, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		v.count("invalid")
		return nil, ErrInvalidCredential
	}

	// Concurrent callers for one key share a lookup. It runs detached from
	// whichever caller started it, and each caller waits on its own ctx.
	ch := v.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		if membershipKeyPattern.MatchString(key) {
			return v.memberships.FindActiveByKey(lookupCtx, key)
		}
		return v.memberships.FindActiveByCode(lookupCtx, key)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		v.count("error")
		return nil, fmt.Errorf("look up membership: %w", ctx.Err())
	}
	if res.Err != nil {
		v.count("error")
		return nil, fmt.Errorf("look up membership: %w", res.Err)
	}

	matches := res.Val.([]entities.Membership)
	switch len(matches) {
	case 0:
		v.count("invalid")
		return nil, ErrInvalidCredential
	case 1:
		m := matches[0]
		v.count("valid")
		return &entities.Identity{
			UserName:       m.IssuedTo,
			MembershipCode: m.MembershipCode,
			InvitationCode: m.InvitationCode,
			IssuedAt:       m.IssuedAt,
		}, nil
	default:
		v.count("ambiguous")
		logging.Error("Multiple active memberships match one credential, refusing",
			"matches", len(matches), "membership_code", common.MaskCredential(matches[0].MembershipCode))
		return nil, ErrInvalidCredential
	}
}

func (v *CredentialValidator) count(result string) {
	if v.metrics != nil {
		v.metrics.ValidationsTotal.WithLabelValues(result).Inc()
	}
}
