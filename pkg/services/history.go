package services

import (
	"fmt"

	"ChatHub/pkg/errs"
)

// Provider-side roles. Gemini names the assistant "model"; the OpenAI
// provider maps it back to "assistant" when building its request.
const (
	TurnUser  = "user"
	TurnModel = "model"
)

// ChatMessage is one entry of a client-supplied chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is a history entry in provider terms.
type Turn struct {
	Role    string
	Content string
}

// BuildHistory splits messages into the prior turns and the current turn.
// Only "assistant" becomes a model turn; any other role, including unknown
// ones, is treated as the user.
func BuildHistory(msgs []ChatMessage) ([]Turn, string, error) {
	if len(msgs) == 0 {
		return nil, "", fmt.Errorf("%w: messages must not be empty", errs.ErrValidation)
	}
	prior := make([]Turn, 0, len(msgs)-1)
	for _, m := range msgs[:len(msgs)-1] {
		prior = append(prior, Turn{Role: providerRole(m.Role), Content: m.Content})
	}
	return prior, msgs[len(msgs)-1].Content, nil
}

func providerRole(role string) string {
	if role == "assistant" {
		return TurnModel
	}
	return TurnUser
}
