package conversation

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrChatNotFound    = errors.New("chat not found")
)
