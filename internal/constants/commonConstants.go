package constants

type (
	APIStatus    string
	InviteStatus string
	Collection   string
)

const (
	APIStatusOk    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// Invitation lifecycle. Approved is recorded once a membership is issued.
const (
	InviteStatusPending   InviteStatus = "pending"
	InviteStatusOnboarded InviteStatus = "onboarded"
	InviteStatusApproved  InviteStatus = "approved"
)

func (s InviteStatus) String() string { return string(s) }

// Record store collections.
const (
	CollectionInvitations Collection = "invitations"
	CollectionOnboarding  Collection = "onboarding"
	CollectionMemberships Collection = "memberships"
)

func (c Collection) String() string { return string(c) }

// Credential formats.
const (
	InvitationCodeLength  = 18
	InvitationPinLength   = 4
	MembershipCodePrefix  = "MEMBER-"
	MembershipCodeRandLen = 3 // bytes, rendered as 6 hex characters
)
