package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"spacewh/mis/internal/constants"
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	digits       = "0123456789"
)

// GenerateInvitationCode returns a random 18-character alphanumeric code.
func GenerateInvitationCode() (string, error) {
	return randomString(alphanumeric, constants.InvitationCodeLength)
}

// GeneratePin returns a random 4-digit PIN, leading zeros allowed.
func GeneratePin() (string, error) {
	return randomString(digits, constants.InvitationPinLength)
}

// GenerateMembershipCode returns "MEMBER-" followed by 6 uppercase hex digits.
func GenerateMembershipCode() (string, error) {
	buf := make([]byte, constants.MembershipCodeRandLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return constants.MembershipCodePrefix + strings.ToUpper(hex.EncodeToString(buf)), nil
}

// MembershipKey joins a membership code with the issuance time in unix seconds.
func MembershipKey(membershipCode string, issuedAt time.Time) string {
	return membershipCode + "-" + strconv.FormatInt(issuedAt.Unix(), 10)
}

func randomString(alphabet string, n int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	var sb strings.Builder
	sb.Grow(n)
	for range n {
		i, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("read random index: %w", err)
		}
		sb.WriteByte(alphabet[i.Int64()])
	}
	return sb.String(), nil
}

// MaskCredential hides all but the last two characters of a membership code
// or key for logging, keeping the MEMBER- prefix when present.
func MaskCredential(s string) string {
	prefix := ""
	if strings.HasPrefix(s, constants.MembershipCodePrefix) {
		prefix, s = constants.MembershipCodePrefix, strings.TrimPrefix(s, constants.MembershipCodePrefix)
	}
	if len(s) <= 2 {
		return prefix + strings.Repeat("*", len(s))
	}
	return prefix + strings.Repeat("*", len(s)-2) + s[len(s)-2:]
}
