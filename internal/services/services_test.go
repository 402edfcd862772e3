package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/db/repositories"
	"spacewh/mis/internal/metrics"
	"spacewh/mis/internal/models/entities"
	"spacewh/mis/internal/providers"
	"spacewh/mis/internal/providers/storefake"
)

var issuedKeyPattern = regexp.MustCompile(`^MEMBER-[0-9A-F]{6}-\d+$`)

type harness struct {
	store       *storefake.FakeRecordStore
	invRepo     *repositories.InvitationRepository
	memRepo     *repositories.MembershipRepository
	invitations *InvitationService
	issuance    *IssuanceService
	validator   *CredentialValidator
}

func newHarness(t *testing.T, locker common.KeyedLocker, opts ...IssuanceOption) *harness {
	t.Helper()
	store := storefake.NewFakeRecordStore()
	return newHarnessWithStore(t, store, store, locker, opts...)
}

func newHarnessWithStore(t *testing.T, fake *storefake.FakeRecordStore, store providers.RecordStore, locker common.KeyedLocker, opts ...IssuanceOption) *harness {
	t.Helper()
	if locker == nil {
		locker = common.NewMemoryLocker()
	}
	m := metrics.NewMetricsRegistry()
	invRepo := repositories.NewInvitationRepository(store)
	memRepo := repositories.NewMembershipRepository(store)
	return &harness{
		store:       fake,
		invRepo:     invRepo,
		memRepo:     memRepo,
		invitations: NewInvitationService(invRepo, repositories.NewOnboardingRepository(store)),
		issuance:    NewIssuanceService(invRepo, memRepo, locker, m, opts...),
		validator:   NewCredentialValidator(memRepo, m),
	}
}

func (h *harness) seedInvitation(t *testing.T, code, pin string, status constants.InviteStatus) {
	t.Helper()
	_, err := h.invRepo.Create(context.Background(), entities.Invitation{
		Code:        code,
		Pin:         pin,
		InvitedName: "Invitee " + code,
		Status:      status,
	})
	require.NoError(t, err)
}

// noLock lets every caller through, leaving only the store's unique index.
type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }

func TestApprovalScenario(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seedInvitation(t, "ABC123DEF456GHI789", "4821", constants.InviteStatusPending)

	_, err := h.invitations.Validate(ctx, "ABC123DEF456GHI789", "4821")
	require.NoError(t, err)

	_, err = h.invitations.SubmitOnboarding(ctx, SubmitOnboardingInput{
		Code:         "ABC123DEF456GHI789",
		VoiceConsent: true,
		Responses:    map[string]any{"motivation": "exploration"},
	})
	require.NoError(t, err)

	state, err := h.issuance.State(ctx, "ABC123DEF456GHI789")
	require.NoError(t, err)
	assert.Equal(t, entities.StateOnboarded, state)

	membership, err := h.issuance.Approve(ctx, ApproveInput{InvitationCode: "ABC123DEF456GHI789", Actor: "admin"})
	require.NoError(t, err)
	assert.Regexp(t, issuedKeyPattern, membership.MembershipKey)
	assert.True(t, membership.Active)
	assert.Equal(t, "Invitee ABC123DEF456GHI789", membership.IssuedTo)

	_, err = h.issuance.Approve(ctx, ApproveInput{InvitationCode: "ABC123DEF456GHI789", Actor: "admin"})
	assert.ErrorIs(t, err, ErrConflict)

	state, err = h.issuance.State(ctx, "ABC123DEF456GHI789")
	require.NoError(t, err)
	assert.Equal(t, entities.StateApproved, state)

	assert.Len(t, h.store.Rows(constants.CollectionMemberships), 1)
}

func TestApprove_ConcurrentYieldsOneSuccess(t *testing.T) {
	lockers := map[string]common.KeyedLocker{
		"memory-locker": common.NewMemoryLocker(),
		"store-only":    noLock{},
	}
	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, locker)
			h.seedInvitation(t, "RACE", "1111", constants.InviteStatusOnboarded)

			const callers = 32
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				others    []error
			)
			start := make(chan struct{})
			for range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "RACE"})
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						successes++
					} else {
						others = append(others, err)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, 1, successes)
			for _, err := range others {
				assert.ErrorIs(t, err, ErrConflict)
			}

			active, err := h.memRepo.FindActiveByInvitation(context.Background(), "RACE")
			require.NoError(t, err)
			assert.Len(t, active, 1)
		})
	}
}

func TestApprove_PendingIsInvalidState(t *testing.T) {
	h := newHarness(t, nil)
	h.seedInvitation(t, "PEND", "2222", constants.InviteStatusPending)

	_, err := h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "PEND"})

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, h.store.Rows(constants.CollectionMemberships))
	assert.Zero(t, h.store.Calls("create", constants.CollectionMemberships))
}

func TestApprove_UnknownInvitation(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "MISSING"})

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, h.store.Calls("create", constants.CollectionMemberships))
}

func TestApprove_UserNameOverride(t *testing.T) {
	h := newHarness(t, nil)
	h.seedInvitation(t, "NAMED", "3333", constants.InviteStatusOnboarded)
	name := "Commander Ada"

	m, err := h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "NAMED", UserName: &name})

	require.NoError(t, err)
	assert.Equal(t, "Commander Ada", m.IssuedTo)
}

func TestApprove_DistinctKeys(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	const n = 50

	keys := make(map[string]struct{}, n)
	for i := range n {
		code := fmt.Sprintf("INV%03d", i)
		h.seedInvitation(t, code, "0000", constants.InviteStatusOnboarded)
		m, err := h.issuance.Approve(ctx, ApproveInput{InvitationCode: code})
		require.NoError(t, err)
		keys[m.MembershipKey] = struct{}{}
	}

	assert.Len(t, keys, n)
}

func TestApprove_RegeneratesTakenCode(t *testing.T) {
	codes := []string{"MEMBER-AAAAAA", "MEMBER-AAAAAA", "MEMBER-BBBBBB"}
	var mu sync.Mutex
	next := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
	h := newHarness(t, nil, WithCodeGenerator(next))
	h.seedInvitation(t, "ONE", "0000", constants.InviteStatusOnboarded)
	h.seedInvitation(t, "TWO", "0000", constants.InviteStatusOnboarded)

	first, err := h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "ONE"})
	require.NoError(t, err)
	second, err := h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "TWO"})
	require.NoError(t, err)

	assert.Equal(t, "MEMBER-AAAAAA", first.MembershipCode)
	assert.Equal(t, "MEMBER-BBBBBB", second.MembershipCode)
}

func TestApprove_GivesUpAfterRepeatedCollisions(t *testing.T) {
	h := newHarness(t, nil, WithCodeGenerator(func() (string, error) { return "MEMBER-AAAAAA", nil }))
	h.seedInvitation(t, "ONE", "0000", constants.InviteStatusOnboarded)
	h.seedInvitation(t, "TWO", "0000", constants.InviteStatusOnboarded)

	_, err := h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "ONE"})
	require.NoError(t, err)
	_, err = h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "TWO"})
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestApprove_CommitFailureLeavesInvitationRetryable(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seedInvitation(t, "FLAKY", "0000", constants.InviteStatusOnboarded)

	h.store.FailOn("create", constants.CollectionMemberships, &providers.StoreError{
		Status: 500, Code: constants.ErrCodeStoreInternal, Message: "write failed",
	})
	_, err := h.issuance.Approve(ctx, ApproveInput{InvitationCode: "FLAKY"})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.True(t, IsStoreFailure(err))

	state, err := h.issuance.State(ctx, "FLAKY")
	require.NoError(t, err)
	assert.Equal(t, entities.StateOnboarded, state)

	h.store.ClearFailures()
	_, err = h.issuance.Approve(ctx, ApproveInput{InvitationCode: "FLAKY"})
	assert.NoError(t, err)
}

func TestApprove_GuardStoreFailureIsNotConflict(t *testing.T) {
	h := newHarness(t, nil)
	h.seedInvitation(t, "DOWN", "0000", constants.InviteStatusOnboarded)
	h.store.FailOn("query", constants.CollectionMemberships, &providers.StoreError{Code: constants.ErrCodeStoreNetwork, Message: "unreachable"})

	_, err := h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "DOWN"})

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrConflict))
	assert.True(t, IsStoreFailure(err))
}

func TestApprove_LockUnavailable(t *testing.T) {
	locker := common.NewMemoryLocker()
	h := newHarness(t, locker, WithLockWait(20*time.Millisecond))
	h.seedInvitation(t, "BUSY", "0000", constants.InviteStatusOnboarded)

	unlock, err := locker.Lock(context.Background(), "BUSY")
	require.NoError(t, err)
	defer unlock()

	_, err = h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "BUSY"})
	assert.ErrorIs(t, err, ErrLockUnavailable)
}

func TestListMemberships_RedactsKeys(t *testing.T) {
	h := newHarness(t, nil)
	h.seedInvitation(t, "LIST", "0000", constants.InviteStatusOnboarded)
	_, err := h.issuance.Approve(context.Background(), ApproveInput{InvitationCode: "LIST"})
	require.NoError(t, err)

	all, err := h.issuance.ListMemberships(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Empty(t, all[0].MembershipKey)
	assert.NotEmpty(t, all[0].MembershipCode)
}

func TestInvitationService_Create(t *testing.T) {
	h := newHarness(t, nil)

	inv, err := h.invitations.Create(context.Background(), "Grace")

	require.NoError(t, err)
	assert.Regexp(t, `^[A-Za-z0-9]{18}$`, inv.Code)
	assert.Regexp(t, `^[0-9]{4}$`, inv.Pin)
	assert.Equal(t, constants.InviteStatusPending, inv.Status)
}

func TestInvitationService_Validate(t *testing.T) {
	h := newHarness(t, nil)
	h.seedInvitation(t, "VAL", "4821", constants.InviteStatusPending)
	h.seedInvitation(t, "DONE", "4821", constants.InviteStatusOnboarded)

	_, err := h.invitations.Validate(context.Background(), "VAL", "4821")
	assert.NoError(t, err)

	_, err = h.invitations.Validate(context.Background(), "VAL", "9999")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.invitations.Validate(context.Background(), "DONE", "4821")
	assert.ErrorIs(t, err, ErrNotFound, "only pending invitations validate")
}

func TestInvitationService_SubmitOnboarding(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seedInvitation(t, "OB", "0000", constants.InviteStatusPending)

	_, err := h.invitations.SubmitOnboarding(ctx, SubmitOnboardingInput{Code: "NOPE"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.invitations.SubmitOnboarding(ctx, SubmitOnboardingInput{Code: "OB", VoiceConsent: true})
	require.NoError(t, err)

	inv, err := h.invRepo.FindByCode(ctx, "OB")
	require.NoError(t, err)
	assert.Equal(t, constants.InviteStatusOnboarded, inv.Status)

	_, err = h.invitations.SubmitOnboarding(ctx, SubmitOnboardingInput{Code: "OB", VoiceConsent: false})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Len(t, h.store.Rows(constants.CollectionOnboarding), 1)
}

func TestInvitationService_SubmitOnboardingRepairsStatus(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seedInvitation(t, "HALF", "0000", constants.InviteStatusPending)

	h.store.FailOn("update", constants.CollectionInvitations, &providers.StoreError{Code: constants.ErrCodeStoreNetwork, Message: "down"})
	_, err := h.invitations.SubmitOnboarding(ctx, SubmitOnboardingInput{Code: "HALF"})
	require.NoError(t, err)
	h.store.ClearFailures()

	_, err = h.invitations.SubmitOnboarding(ctx, SubmitOnboardingInput{Code: "HALF"})
	assert.ErrorIs(t, err, ErrConflict)

	inv, err := h.invRepo.FindByCode(ctx, "HALF")
	require.NoError(t, err)
	assert.Equal(t, constants.InviteStatusOnboarded, inv.Status)
}

func TestCredentialValidator(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.seedInvitation(t, "KEYED", "0000", constants.InviteStatusOnboarded)
	m, err := h.issuance.Approve(ctx, ApproveInput{InvitationCode: "KEYED"})
	require.NoError(t, err)

	_, err = h.memRepo.Create(ctx, entities.Membership{
		InvitationCode: "OLD",
		MembershipCode: "MEMBER-DEAD00",
		MembershipKey:  "MEMBER-DEAD00-1",
		IssuedTo:       "Revoked",
		Active:         false,
	})
	require.NoError(t, err)

	t.Run("membership code", func(t *testing.T) {
		id, err := h.validator.Validate(ctx, m.MembershipCode)
		require.NoError(t, err)
		assert.Equal(t, "Invitee KEYED", id.UserName)
		assert.Equal(t, "KEYED", id.InvitationCode)
	})
	t.Run("membership key", func(t *testing.T) {
		id, err := h.validator.Validate(ctx, m.MembershipKey)
		require.NoError(t, err)
		assert.Equal(t, m.MembershipCode, id.MembershipCode)
	})
	t.Run("deactivated", func(t *testing.T) {
		_, err := h.validator.Validate(ctx, "MEMBER-DEAD00")
		assert.ErrorIs(t, err, ErrInvalidCredential)
		_, err = h.validator.Validate(ctx, "MEMBER-DEAD00-1")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
	t.Run("unknown", func(t *testing.T) {
		_, err := h.validator.Validate(ctx, "MEMBER-FFFFFF")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := h.validator.Validate(ctx, "  ")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})
}

// duplicatingStore returns every membership match twice, as an inconsistent
// store would.
type duplicatingStore struct {
	*storefake.FakeRecordStore
}

func (d duplicatingStore) Query(ctx context.Context, c constants.Collection, f providers.Filter) ([]providers.Record, error) {
	rows, err := d.FakeRecordStore.Query(ctx, c, f)
	if err != nil || c != constants.CollectionMemberships {
		return rows, err
	}
	return append(rows, rows...), nil
}

func TestCredentialValidator_AmbiguousFailsClosed(t *testing.T) {
	fake := storefake.NewFakeRecordStore()
	h := newHarnessWithStore(t, fake, duplicatingStore{fake}, nil)
	_, err := h.memRepo.Create(context.Background(), entities.Membership{
		InvitationCode: "AMB",
		MembershipCode: "MEMBER-ABCDEF",
		MembershipKey:  "MEMBER-ABCDEF-1",
		Active:         true,
	})
	require.NoError(t, err)

	id, err := h.validator.Validate(context.Background(), "MEMBER-ABCDEF")

	assert.Nil(t, id)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestCredentialValidator_StoreFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.store.FailOn("query", constants.CollectionMemberships, &providers.StoreError{Code: constants.ErrCodeStoreNetwork, Message: "down"})

	_, err := h.validator.Validate(context.Background(), "MEMBER-ABCDEF")

	assert.False(t, errors.Is(err, ErrInvalidCredential))
	assert.True(t, IsStoreFailure(err))
}

// gatedStore holds membership queries until release is closed, honouring the
// query's context while it waits.
type gatedStore struct {
	*storefake.FakeRecordStore
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	queries int
}

func (g *gatedStore) Query(ctx context.Context, c constants.Collection, f providers.Filter) ([]providers.Record, error) {
	if c != constants.CollectionMemberships {
		return g.FakeRecordStore.Query(ctx, c, f)
	}
	g.mu.Lock()
	g.queries++
	g.mu.Unlock()
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.FakeRecordStore.Query(ctx, c, f)
}

func TestCredentialValidator_CancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	fake := storefake.NewFakeRecordStore()
	gated := &gatedStore{
		FakeRecordStore: fake,
		entered:         make(chan struct{}, 1),
		release:         make(chan struct{}),
	}
	h := newHarnessWithStore(t, fake, gated, nil)
	_, err := repositories.NewMembershipRepository(fake).Create(context.Background(), entities.Membership{
		InvitationCode: "SHARED",
		MembershipCode: "MEMBER-ABCDEF",
		MembershipKey:  "MEMBER-ABCDEF-1",
		IssuedTo:       "Shared",
		Active:         true,
	})
	require.NoError(t, err)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := h.validator.Validate(ctxA, "MEMBER-ABCDEF")
		errA <- err
	}()

	select {
	case <-gated.entered:
	case <-time.After(time.Second):
		t.Fatal("first lookup never reached the store")
	}

	type outcome struct {
		id  *entities.Identity
		err error
	}
	resB := make(chan outcome, 1)
	go func() {
		id, err := h.validator.Validate(context.Background(), "MEMBER-ABCDEF")
		resB <- outcome{id, err}
	}()
	// let the second caller join the in-flight lookup
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsStoreFailure(err))
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(gated.release)
	select {
	case out := <-resB:
		require.NoError(t, out.err)
		require.NotNil(t, out.id)
		assert.Equal(t, "Shared", out.id.UserName)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}

	gated.mu.Lock()
	defer gated.mu.Unlock()
	assert.Equal(t, 1, gated.queries, "callers should share one lookup")
}

func TestCannedResponder(t *testing.T) {
	r := &CannedResponder{pick: func(int) int { return 0 }}

	anon, err := r.Generate(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, anonymousReplies[0], anon)

	named, err := r.Generate(context.Background(), "hi", &entities.Identity{UserName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, I'm SpaceWH AI. How can I assist you today?", named)
}
