package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modelchat "github.com/zhouzirui/diagnosa/backend/internal/model/chat"
	"github.com/zhouzirui/diagnosa/backend/internal/service/ai"
	"github.com/zhouzirui/diagnosa/backend/internal/service/chat"
)

func TestRunSessionPrintsPrimingAndReplies(t *testing.T) {
	svc := chat.NewService(ai.NewMockCompleter(), chat.Options{Priming: modelchat.DefaultPriming()})

	var out bytes.Buffer
	err := runSession(context.Background(), svc, strings.NewReader("diabetes\n/history\nexit\n"), &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Asisten: "+modelchat.DefaultPriming().Acknowledgment)
	assert.Contains(t, text, "Sedang memproses...")
	assert.Equal(t, 1, strings.Count(text, "Anda: diabetes"))
	assert.Equal(t, 2, strings.Count(text, "Asisten: diabetes adalah"))
}

func TestRunSessionStopsAtEOF(t *testing.T) {
	svc := chat.NewService(ai.NewMockCompleter(), chat.Options{})

	var out bytes.Buffer
	require.NoError(t, runSession(context.Background(), svc, strings.NewReader("asma"), &out))
	assert.Contains(t, out.String(), "Asisten: asma adalah")
}
