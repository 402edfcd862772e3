package services

import (
	"context"
	"fmt"
	"math/rand/v2"

	"spacewh/mis/internal/models/entities"
)

// Responder produces the text of a chat reply. identity is nil for
// anonymous callers.
type Responder interface {
	Generate(ctx context.Context, prompt string, identity *entities.Identity) (string, error)
}

var anonymousReplies = []string{
	"I'm SpaceWH AI. How can I assist you today?",
	"That's an interesting question. Let me think about it...",
	"Based on my knowledge, I would recommend the following approach...",
	"I don't have enough information to answer that fully. Can you provide more details?",
	"That's beyond my current capabilities, but I'm constantly learning.",
}

var memberReplies = []string{
	"Hello %s, I'm SpaceWH AI. How can I assist you today?",
	"Thanks for your question, %s. Let me think about it...",
	"Based on my knowledge, %s, I would recommend the following approach...",
	"I'd need more information to answer that fully, %s. Can you provide more details?",
	"That's an interesting query, %s, but it's beyond my current capabilities.",
}

// CannedResponder picks a stock reply, addressed by name when the caller is
// a member.
type CannedResponder struct {
	pick func(n int) int
}

var _ Responder = (*CannedResponder)(nil)

func NewCannedResponder() *CannedResponder {
	return &CannedResponder{pick: rand.IntN}
}

func (r *CannedResponder) Generate(ctx context.Context, prompt string, identity *entities.Identity) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if identity == nil || identity.UserName == "" {
		return anonymousReplies[r.pick(len(anonymousReplies))], nil
	}
	return fmt.Sprintf(memberReplies[r.pick(len(memberReplies))], identity.UserName), nil
}
