package api

import (
	"net/http"
	"time"

	"spacewh/mis/internal/auth"
	"spacewh/mis/internal/common"
	"spacewh/mis/internal/constants"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/models/dtos"
	"spacewh/mis/internal/services"
)

// ChatHandler handles POST /gpt-chat. The bearer middleware has already
// resolved the caller; nil identity means anonymous.
func ChatHandler(responder services.Responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initTime := time.Now()

		var req dtos.ChatReq
		if !decodeBody(w, r, initTime, &req) {
			return
		}

		identity := auth.GetIdentity(r.Context())
		reply, err := responder.Generate(r.Context(), req.Prompt, identity)
		if err != nil {
			common.RespondError(w, initTime, err, constants.MsgChatFailed, http.StatusInternalServerError)
			return
		}

		if identity != nil {
			logging.Debug("Chat reply generated", "membership_code", common.MaskCredential(identity.MembershipCode))
		}
		common.RespondJSON(w, dtos.ChatResp{Response: reply})
	}
}
