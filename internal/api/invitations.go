package api

import (
	"net/http"
	"strings"
	"time"

	"spacewh/mis/internal/common"
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/models/dtos"
	"spacewh/mis/internal/models/entities"
	"spacewh/mis/internal/services"
)

// CreateInvitationHandler handles POST /admin/create-invitation
func CreateInvitationHandler(svc *services.InvitationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.CreateInvitationReq
		if !decodeBody(w, r, initTime, &req) {
			return
		}
		req.InvitedName = strings.TrimSpace(req.InvitedName)
		if req.InvitedName == "" {
			common.RespondError(w, initTime, nil, "invited_name is required", http.StatusBadRequest)
			return
		}

		inv, err := svc.Create(r.Context(), req.InvitedName)
		if err != nil {
			common.RespondError(w, initTime, err, "Error creating invitation", http.StatusInternalServerError)
			return
		}

		common.RespondJSON(w, dtos.InvitationResp{
			Code:        inv.Code,
			Pin:         inv.Pin,
			InvitedName: inv.InvitedName,
		})
	}
}

// ValidateInvitationHandler handles POST /validate-invitation
func ValidateInvitationHandler(svc *services.InvitationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.ValidateInvitationReq
		if !decodeBody(w, r, initTime, &req) {
			return
		}

		inv, err := svc.Validate(r.Context(), req.Code, req.Pin)
		if err != nil {
			respondServiceError(w, initTime, err, errorMessages{
				services.ErrNotFound: constants.MsgInvalidInvitation,
			})
			return
		}

		common.RespondJSON(w, dtos.ValidateInvitationResp{Valid: true, Code: inv.Code})
	}
}

// SubmitOnboardingHandler handles POST /submit-onboarding
func SubmitOnboardingHandler(svc *services.InvitationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.SubmitOnboardingReq
		if !decodeBody(w, r, initTime, &req) {
			return
		}
		if req.Code == "" {
			common.RespondError(w, initTime, nil, "code is required", http.StatusBadRequest)
			return
		}

		_, err := svc.SubmitOnboarding(r.Context(), services.SubmitOnboardingInput{
			Code:         req.Code,
			VoiceConsent: req.VoiceConsent,
			Responses:    req.Responses,
		})
		if err != nil {
			respondServiceError(w, initTime, err, errorMessages{
				services.ErrNotFound:    constants.MsgInvitationNotFound,
				services.ErrConflict:    constants.MsgOnboardingSubmitted,
				services.ErrPersistence: "Error saving onboarding record.",
			})
			return
		}

		common.RespondJSON(w, dtos.OnboardingResp{Status: "submitted", Code: req.Code})
	}
}

// ListInvitationsHandler handles GET /admin/invitations
func ListInvitationsHandler(svc *services.InvitationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		invitations, err := svc.List(r.Context())
		if err != nil {
			common.RespondError(w, initTime, err, constants.MsgStoreFailure, http.StatusInternalServerError)
			return
		}
		if invitations == nil {
			invitations = []entities.Invitation{}
		}

		common.RespondJSON(w, dtos.ListingResp[entities.Invitation]{Success: true, Data: invitations})
	}
}
