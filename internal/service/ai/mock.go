package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
)

// MockCompleter answers locally without a remote model. Used for development
// when no API key is at hand.
type MockCompleter struct{}

func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

func (m *MockCompleter) Complete(ctx context.Context, history []chat.Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return mockReply(history), nil
}

func (m *MockCompleter) Stream(ctx context.Context, history []chat.Turn, onDelta func(string)) (string, error) {
	reply := mockReply(history)
	words := strings.SplitAfter(reply, " ")
	for _, word := range words {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if onDelta != nil {
			onDelta(word)
		}
	}
	return reply, nil
}

func mockReply(history []chat.Turn) string {
	question := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == chat.RoleUser {
			question = history[i].Text
			break
		}
	}
	return fmt.Sprintf("%s adalah topik medis yang perlu dikonsultasikan dengan dokter.", strings.TrimSpace(question))
}
