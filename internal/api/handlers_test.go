package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacewh/mis/internal/auth"
	"spacewh/mis/internal/common"
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/metrics"
	"spacewh/mis/internal/models/entities"
	"spacewh/mis/internal/providers/storefake"
	"spacewh/mis/internal/services"
)

var membershipKeyPattern = regexp.MustCompile(`^MEMBER-[0-9A-F]{6}-\d+$`)

func newTestDeps(t *testing.T) (*Dependencies, *storefake.FakeRecordStore) {
	t.Helper()
	store := storefake.NewFakeRecordStore()
	return InitDependencies(store, common.NewMemoryLocker(), metrics.NewMetricsRegistry()), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, ctx ...context.Context) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if len(ctx) > 0 {
		req = req.WithContext(ctx[0])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

// onboard creates an invitation and submits onboarding for it.
func onboard(t *testing.T, deps *Dependencies, name string) string {
	t.Helper()
	ctx := context.Background()
	inv, err := deps.Services.Invitations.Create(ctx, name)
	require.NoError(t, err)
	_, err = deps.Services.Invitations.SubmitOnboarding(ctx, services.SubmitOnboardingInput{Code: inv.Code})
	require.NoError(t, err)
	return inv.Code
}

func TestRootHandler(t *testing.T) {
	rr, body := doJSON(t, RootHandler(), http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "SpaceWH Membership Initiation API is running.", body["message"])
}

func TestHealthCheckHandler(t *testing.T) {
	deps, store := newTestDeps(t)
	h := HealthCheckHandler(deps.Store, deps.StartedAt)

	rr, body := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database"])
	assert.NotEmpty(t, body["timestamp"])

	store.FailOn("ping", "", errors.New("connection refused"))
	rr, body = doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Contains(t, body["error"], "connection refused")
}

func TestMembershipLifecycle(t *testing.T) {
	deps, _ := newTestDeps(t)
	svc := deps.Services

	rr, created := doJSON(t, CreateInvitationHandler(svc.Invitations), http.MethodPost, "/admin/create-invitation",
		map[string]any{"invited_name": "Ada Lovelace"})
	require.Equal(t, http.StatusOK, rr.Code)
	code := created["code"].(string)
	pin := created["pin"].(string)
	assert.Len(t, code, 18)
	assert.Len(t, pin, 4)
	assert.Equal(t, "Ada Lovelace", created["invited_name"])

	rr, body := doJSON(t, ValidateInvitationHandler(svc.Invitations), http.MethodPost, "/validate-invitation",
		map[string]any{"code": code, "pin": pin})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, code, body["code"])

	// approving before onboarding is a precondition failure
	approve := ApproveMembershipHandler(svc.Issuance)
	rr, body = doJSON(t, approve, http.MethodPost, "/admin/approve-membership", map[string]any{"invitation_code": code})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, constants.MsgNotOnboarded, body["message"])

	rr, body = doJSON(t, SubmitOnboardingHandler(svc.Invitations), http.MethodPost, "/submit-onboarding",
		map[string]any{"code": code, "voice_consent": true, "responses": map[string]any{"why": "stars"}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "submitted", body["status"])
	assert.Equal(t, code, body["code"])

	rr, body = doJSON(t, approve, http.MethodPost, "/admin/approve-membership", map[string]any{"invitation_code": code})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, constants.MsgMembershipApproved, body["message"])
	key := body["membership_key"].(string)
	assert.Regexp(t, membershipKeyPattern, key)
	assert.True(t, strings.HasPrefix(key, body["membership_code"].(string)+"-"))

	// replay
	rr, body = doJSON(t, approve, http.MethodPost, "/admin/approve-membership", map[string]any{"invitation_code": code})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, constants.MsgMembershipExists, body["message"])

	rr, body = doJSON(t, ValidateKeyHandler(svc.Validator), http.MethodPost, "/validate-key", map[string]any{"key": key})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, key, body["key"])

	rr, body = doJSON(t, ListMembershipsHandler(svc.Issuance), http.MethodGet, "/admin/memberships", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	data := body["data"].([]any)
	require.Len(t, data, 1)
	listed := data[0].(map[string]any)
	assert.Equal(t, "Ada Lovelace", listed["issued_to"])
	assert.NotContains(t, listed, "membership_key")

	rr, body = doJSON(t, ListInvitationsHandler(svc.Invitations), http.MethodGet, "/admin/invitations", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	invitations := body["data"].([]any)
	require.Len(t, invitations, 1)
	assert.Equal(t, string(constants.InviteStatusApproved), invitations[0].(map[string]any)["status"])
}

func TestCreateInvitationHandler_RequiresName(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := CreateInvitationHandler(deps.Services.Invitations)

	rr, _ := doJSON(t, h, http.MethodPost, "/admin/create-invitation", map[string]any{"invited_name": "  "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body := doJSON(t, h, http.MethodPost, "/admin/create-invitation", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, constants.MsgInvalidRequestBody, body["message"])
	assert.Equal(t, "error", body["status"])
	assert.NotEmpty(t, body["response_time"])
}

func TestValidateInvitationHandler_WrongPin(t *testing.T) {
	deps, _ := newTestDeps(t)
	inv, err := deps.Services.Invitations.Create(context.Background(), "Grace")
	require.NoError(t, err)

	wrong := "0000"
	if inv.Pin == wrong {
		wrong = "1111"
	}
	rr, body := doJSON(t, ValidateInvitationHandler(deps.Services.Invitations), http.MethodPost, "/validate-invitation",
		map[string]any{"code": inv.Code, "pin": wrong})

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, constants.MsgInvalidInvitation, body["message"])
}

func TestSubmitOnboardingHandler(t *testing.T) {
	deps, store := newTestDeps(t)
	h := SubmitOnboardingHandler(deps.Services.Invitations)

	rr, body := doJSON(t, h, http.MethodPost, "/submit-onboarding", map[string]any{"code": "NOPE"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, constants.MsgInvitationNotFound, body["message"])

	code := onboard(t, deps, "Grace")
	rr, body = doJSON(t, h, http.MethodPost, "/submit-onboarding", map[string]any{"code": code})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, constants.MsgOnboardingSubmitted, body["message"])

	inv, err := deps.Services.Invitations.Create(context.Background(), "Linus")
	require.NoError(t, err)
	store.FailOn("create", constants.CollectionOnboarding, errors.New("disk full"))
	rr, _ = doJSON(t, h, http.MethodPost, "/submit-onboarding", map[string]any{"code": inv.Code})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestApproveMembershipHandler_Errors(t *testing.T) {
	t.Run("unknown invitation", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		rr, body := doJSON(t, ApproveMembershipHandler(deps.Services.Issuance), http.MethodPost, "/admin/approve-membership",
			map[string]any{"invitation_code": "MISSING"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, constants.MsgInvitationNotFound, body["message"])
	})

	t.Run("missing code", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		rr, _ := doJSON(t, ApproveMembershipHandler(deps.Services.Issuance), http.MethodPost, "/admin/approve-membership",
			map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("user name override", func(t *testing.T) {
		deps, _ := newTestDeps(t)
		code := onboard(t, deps, "Grace")
		rr, body := doJSON(t, ApproveMembershipHandler(deps.Services.Issuance), http.MethodPost, "/admin/approve-membership",
			map[string]any{"invitation_code": code, "user_name": "Admiral Hopper"})
		require.Equal(t, http.StatusOK, rr.Code)

		identity, err := deps.Services.Validator.Validate(context.Background(), body["membership_key"].(string))
		require.NoError(t, err)
		assert.Equal(t, "Admiral Hopper", identity.UserName)
	})

	t.Run("commit failure", func(t *testing.T) {
		deps, store := newTestDeps(t)
		code := onboard(t, deps, "Grace")
		store.FailOn("create", constants.CollectionMemberships, errors.New("write timeout"))

		rr, body := doJSON(t, ApproveMembershipHandler(deps.Services.Issuance), http.MethodPost, "/admin/approve-membership",
			map[string]any{"invitation_code": code})
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, constants.MsgMembershipSaveFailed, body["message"])
	})

	t.Run("guard store failure", func(t *testing.T) {
		deps, store := newTestDeps(t)
		code := onboard(t, deps, "Grace")
		store.FailOn("query", constants.CollectionMemberships, errors.New("connection reset"))

		rr, body := doJSON(t, ApproveMembershipHandler(deps.Services.Issuance), http.MethodPost, "/admin/approve-membership",
			map[string]any{"invitation_code": code})
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, constants.MsgStoreFailure, body["message"])
	})

	t.Run("lock unavailable", func(t *testing.T) {
		store := storefake.NewFakeRecordStore()
		deps := InitDependencies(store, busyLocker{}, metrics.NewMetricsRegistry())
		code := onboard(t, deps, "Grace")

		rr, body := doJSON(t, ApproveMembershipHandler(deps.Services.Issuance), http.MethodPost, "/admin/approve-membership",
			map[string]any{"invitation_code": code})
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, constants.MsgApprovalBusy, body["message"])
	})
}

type busyLocker struct{}

func (busyLocker) Lock(context.Context, string) (func(), error) {
	return nil, common.ErrLockTimeout
}

func TestValidateKeyHandler(t *testing.T) {
	deps, store := newTestDeps(t)
	h := ValidateKeyHandler(deps.Services.Validator)

	rr, body := doJSON(t, h, http.MethodPost, "/validate-key", map[string]any{"key": "MEMBER-ABCDEF-1700000000"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, constants.MsgInvalidMembershipKey, body["message"])

	rr, _ = doJSON(t, h, http.MethodPost, "/validate-key", map[string]any{"key": ""})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	store.FailOn("query", constants.CollectionMemberships, errors.New("connection reset"))
	rr, _ = doJSON(t, h, http.MethodPost, "/validate-key", map[string]any{"key": "MEMBER-ABCDEF-1700000001"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

type stubResponder struct {
	reply string
	err   error
	seen  *entities.Identity
}

func (s *stubResponder) Generate(_ context.Context, _ string, identity *entities.Identity) (string, error) {
	s.seen = identity
	return s.reply, s.err
}

func TestChatHandler(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		responder := &stubResponder{reply: "hello stranger"}
		rr, body := doJSON(t, ChatHandler(responder), http.MethodPost, "/gpt-chat", map[string]any{"prompt": "hi"})

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "hello stranger", body["response"])
		assert.Nil(t, responder.seen)
	})

	t.Run("member", func(t *testing.T) {
		responder := &stubResponder{reply: "hello Ada"}
		ctx := auth.SetIdentity(context.Background(), &entities.Identity{UserName: "Ada", MembershipCode: "MEMBER-0A1B2C"})
		rr, body := doJSON(t, ChatHandler(responder), http.MethodPost, "/gpt-chat", map[string]any{"prompt": "hi"}, ctx)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "hello Ada", body["response"])
		require.NotNil(t, responder.seen)
		assert.Equal(t, "Ada", responder.seen.UserName)
	})

	t.Run("responder failure", func(t *testing.T) {
		responder := &stubResponder{err: errors.New("model offline")}
		rr, body := doJSON(t, ChatHandler(responder), http.MethodPost, "/gpt-chat", map[string]any{"prompt": "hi"})

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, constants.MsgChatFailed, body["message"])
	})
}

func TestListHandlers_EmptyStoreReturnsEmptyArrays(t *testing.T) {
	deps, _ := newTestDeps(t)

	for path, h := range map[string]http.Handler{
		"/admin/invitations": ListInvitationsHandler(deps.Services.Invitations),
		"/admin/memberships": ListMembershipsHandler(deps.Services.Issuance),
	} {
		rr, body := doJSON(t, h, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, []any{}, body["data"], path)
	}
}
