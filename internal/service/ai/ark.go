package ai

import (
	"context"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/diagnosa/backend/internal/config"
	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
)

// ArkCompleter runs the transcript through an eino chain backed by an Ark chat model.
type ArkCompleter struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkCompleter creates the Ark chat model and compiles the chain around it.
func NewArkCompleter(ctx context.Context, cfg config.AIConfig) (*ArkCompleter, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat model")
	}
	return newArkCompleter(ctx, chatModel)
}

func newArkCompleter(ctx context.Context, chatModel model.BaseChatModel) (*ArkCompleter, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile chat chain")
	}

	return &ArkCompleter{chain: runnable}, nil
}

func (a *ArkCompleter) Complete(ctx context.Context, history []chat.Turn) (string, error) {
	input, err := chainInput(history)
	if err != nil {
		return "", err
	}

	response, err := a.chain.Invoke(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, "failed to run chat chain")
	}

	log.Debug().Int("turns", len(history)).Int("length", len(response.Content)).Msg("ark reply")
	return response.Content, nil
}

func (a *ArkCompleter) Stream(ctx context.Context, history []chat.Turn, onDelta func(string)) (string, error) {
	input, err := chainInput(history)
	if err != nil {
		return "", err
	}

	stream, err := a.chain.Stream(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, "failed to stream chat chain output")
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", errors.Wrap(recvErr, "chat stream recv")
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" && onDelta != nil {
			onDelta(chunk.Content)
		}
	}

	if len(chunks) == 0 {
		return "", nil
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", errors.Wrap(err, "concat chat chunks")
	}
	return merged.Content, nil
}

func chainInput(history []chat.Turn) (map[string]any, error) {
	messages, err := toSchemaMessages(history)
	if err != nil {
		return nil, err
	}
	return map[string]any{"history": messages}, nil
}

func toSchemaMessages(history []chat.Turn) ([]*schema.Message, error) {
	messages := make([]*schema.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Role {
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Text))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Text, nil))
		default:
			return nil, errors.Errorf("unsupported role %q", turn.Role)
		}
	}
	return messages, nil
}
