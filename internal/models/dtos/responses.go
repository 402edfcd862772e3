package dtos

// APIResponse is the error envelope shared by every REST handler.
type APIResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ResponseTime string `json:"response_time"`
	Data         any    `json:"data,omitempty"`
}

type InvitationResp struct {
	Code        string `json:"code"`
	Pin         string `json:"pin"`
	InvitedName string `json:"invited_name"`
}

type ValidateInvitationResp struct {
	Valid bool   `json:"valid"`
	Code  string `json:"code"`
}

type OnboardingResp struct {
	Status string `json:"status"`
	Code   string `json:"code"`
}

type ApproveMembershipResp struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	MembershipKey  string `json:"membership_key"`
	MembershipCode string `json:"membership_code"`
}

type ValidateKeyResp struct {
	Valid bool   `json:"valid"`
	Key   string `json:"key"`
}

type ChatResp struct {
	Response string `json:"response"`
}

type ListingResp[T any] struct {
	Success bool `json:"success"`
	Data    []T  `json:"data"`
}

type MessageResp struct {
	Message string `json:"message"`
}
