package entities

import (
	"spacewh/mis/internal/constants"
)

// Invitation is an admission ticket identified by a code and PIN pair.
type Invitation struct {
	Code        string                 `json:"code"`
	Pin         string                 `json:"pin"`
	InvitedName string                 `json:"invited_name"`
	Status      constants.InviteStatus `json:"status"`
	CreatedAt   *StoreTime             `json:"created_at,omitempty"`
}

// OnboardingRecord holds the invitee's answers. Immutable once stored.
type OnboardingRecord struct {
	InvitationCode string         `json:"invitation_code"`
	VoiceConsent   bool           `json:"voice_consent"`
	Responses      map[string]any `json:"responses"`
	SubmittedAt    *StoreTime     `json:"submitted_at,omitempty"`
}

// Membership is the issued, revocable access credential bound to one invitation.
type Membership struct {
	InvitationCode string    `json:"invitation_code"`
	MembershipCode string    `json:"membership_code"`
	MembershipKey  string    `json:"membership_key,omitempty"`
	IssuedTo       string    `json:"issued_to"`
	Active         bool      `json:"active"`
	IssuedAt       StoreTime `json:"issued_at"`
}

// Redacted returns a copy without the bearer secret, for listings.
func (m Membership) Redacted() Membership {
	m.MembershipKey = ""
	return m
}

// Identity is what a valid membership key resolves to.
type Identity struct {
	UserName       string    `json:"user_name"`
	MembershipCode string    `json:"membership_code"`
	InvitationCode string    `json:"invitation_code"`
	IssuedAt       StoreTime `json:"issued_at"`
}

// InvitationState is the explicit issuance state of an invitation.
type InvitationState string

const (
	StatePending   InvitationState = "pending"
	StateOnboarded InvitationState = "onboarded"
	StateApproved  InvitationState = "approved"
)
