package ai

import (
	"context"
	"errors"
)

// ErrBackend marks every failure of a generative backend call: transport
// errors, non-success statuses and unusable payloads alike.
var ErrBackend = errors.New("generative backend failure")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message of the conversation.
type Turn struct {
	Role Role
	Text string
}

// Request is a single exchange: a system instruction, the prior turns and
// the new user message.
type Request struct {
	Instruction string
	History     []Turn
	Message     string
}

// Generator produces one reply for a request. Failures wrap ErrBackend.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}
