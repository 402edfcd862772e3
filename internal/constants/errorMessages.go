package constants

const (
	MsgInvalidInvitation    = "Invalid or expired invitation"
	MsgInvitationNotFound   = "Invitation not found."
	MsgNotOnboarded         = "Invitation not onboarded yet."
	MsgMembershipExists     = "Membership already exists for this invitation code."
	MsgOnboardingSubmitted  = "Onboarding already submitted for this invitation."
	MsgMembershipApproved   = "Membership approved."
	MsgMembershipSaveFailed = "Error saving membership record."
	MsgInvalidMembershipKey = "Invalid membership key"
	MsgApprovalBusy         = "Approval already in progress for this invitation, retry shortly."
	MsgBadCredentials       = "Incorrect username or password"
	MsgStoreFailure         = "Record store request failed"
	MsgInvalidRequestBody   = "Invalid request body"
	MsgChatFailed           = "Failed to generate chat response"
)

// Store error codes carried by providers.StoreError.
const (
	ErrCodeStoreNetwork      = "STORE_NETWORK_ERROR"
	ErrCodeStoreUnauthorized = "STORE_UNAUTHORIZED"
	ErrCodeStoreNotFound     = "STORE_RESOURCE_NOT_FOUND"
	ErrCodeStoreConflict     = "STORE_CONFLICT"
	ErrCodeStoreBadRequest   = "STORE_BAD_REQUEST"
	ErrCodeStoreDecode       = "STORE_DECODE_ERROR"
	ErrCodeStoreInternal     = "STORE_INTERNAL_ERROR"
	ErrCodeStoreUnknownTable = "STORE_UNKNOWN_COLLECTION"
)

var StoreErrorMessages = map[string]string{
	ErrCodeStoreNetwork:      "Unable to reach the record store",
	ErrCodeStoreUnauthorized: "The record store rejected the service credentials",
	ErrCodeStoreNotFound:     "The record store resource does not exist",
	ErrCodeStoreConflict:     "The record conflicts with an existing record",
	ErrCodeStoreBadRequest:   "The record store rejected the request",
	ErrCodeStoreDecode:       "Unable to decode the record store response",
	ErrCodeStoreInternal:     "The record store failed to process the request",
	ErrCodeStoreUnknownTable: "Unknown record collection",
}

// GetErrorMessage returns the human-readable message for an error code
func GetErrorMessage(code string) string {
	if msg, exists := StoreErrorMessages[code]; exists {
		return msg
	}
	return "An unknown error occurred"
}
