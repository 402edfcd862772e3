package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"spacewh/mis/internal/auth"
	"spacewh/mis/internal/common"
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/models/dtos"
	"spacewh/mis/internal/models/entities"
	"spacewh/mis/internal/services"
)

// ApproveMembershipHandler handles POST /admin/approve-membership
//
// 409 on replay, 400 when the invitation is not onboarded, 404 when it is
// unknown and 503 when another approval of the same invitation holds the lock.
func ApproveMembershipHandler(svc *services.IssuanceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.ApproveMembershipReq
		if !decodeBody(w, r, initTime, &req) {
			return
		}
		req.InvitationCode = strings.TrimSpace(req.InvitationCode)
		if req.InvitationCode == "" {
			common.RespondError(w, initTime, nil, "invitation_code is required", http.StatusBadRequest)
			return
		}

		membership, err := svc.Approve(r.Context(), services.ApproveInput{
			InvitationCode: req.InvitationCode,
			UserName:       req.UserName,
			Actor:          auth.GetAdminUser(r.Context()),
		})
		if err != nil {
			respondServiceError(w, initTime, err, errorMessages{
				services.ErrConflict:        constants.MsgMembershipExists,
				services.ErrInvalidState:    constants.MsgNotOnboarded,
				services.ErrNotFound:        constants.MsgInvitationNotFound,
				services.ErrLockUnavailable: constants.MsgApprovalBusy,
				services.ErrPersistence:     constants.MsgMembershipSaveFailed,
			})
			return
		}

		common.RespondJSON(w, dtos.ApproveMembershipResp{
			Success:        true,
			Message:        constants.MsgMembershipApproved,
			MembershipKey:  membership.MembershipKey,
			MembershipCode: membership.MembershipCode,
		})
	}
}

// ValidateKeyHandler handles POST /validate-key
func ValidateKeyHandler(validator services.Validator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.ValidateKeyReq
		if !decodeBody(w, r, initTime, &req) {
			return
		}

		if _, err := validator.Validate(r.Context(), req.Key); err != nil {
			if errors.Is(err, services.ErrInvalidCredential) {
				common.RespondError(w, initTime, nil, constants.MsgInvalidMembershipKey, http.StatusNotFound)
				return
			}
			common.RespondError(w, initTime, err, constants.MsgStoreFailure, http.StatusInternalServerError)
			return
		}

		common.RespondJSON(w, dtos.ValidateKeyResp{Valid: true, Key: req.Key})
	}
}

// ListMembershipsHandler handles GET /admin/memberships. Keys are never listed.
func ListMembershipsHandler(svc *services.IssuanceService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		memberships, err := svc.ListMemberships(r.Context())
		if err != nil {
			common.RespondError(w, initTime, err, constants.MsgStoreFailure, http.StatusInternalServerError)
			return
		}
		if memberships == nil {
			memberships = []entities.Membership{}
		}

		common.RespondJSON(w, dtos.ListingResp[entities.Membership]{Success: true, Data: memberships})
	}
}
