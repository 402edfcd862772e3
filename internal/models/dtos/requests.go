package dtos

type CreateInvitationReq struct {
	InvitedName string `json:"invited_name"`
}

type ValidateInvitationReq struct {
	Code string `json:"code"`
	Pin  string `json:"pin"`
}

type SubmitOnboardingReq struct {
	Code         string         `json:"code"`
	VoiceConsent bool           `json:"voice_consent"`
	Responses    map[string]any `json:"responses"`
}

type ApproveMembershipReq struct {
	InvitationCode string  `json:"invitation_code"`
	UserName       *string `json:"user_name,omitempty"`
}

type ValidateKeyReq struct {
	Key string `json:"key"`
}

type ChatReq struct {
	Prompt string `json:"prompt"`
}
