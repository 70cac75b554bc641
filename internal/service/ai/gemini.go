package ai

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/zhouzirui/diagnosa/backend/internal/config"
	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
)

// GeminiCompleter talks to the Gemini API with an API key.
type GeminiCompleter struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiCompleter creates a Gemini client for the configured model.
func NewGeminiCompleter(ctx context.Context, cfg config.AIConfig) (*GeminiCompleter, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}

	return &GeminiCompleter{
		client: client,
		model:  cfg.Model,
		config: generationConfig(cfg),
	}, nil
}

func generationConfig(cfg config.AIConfig) *genai.GenerateContentConfig {
	gen := &genai.GenerateContentConfig{}
	if cfg.Temperature != nil {
		temp := float32(*cfg.Temperature)
		gen.Temperature = &temp
	}
	if cfg.MaxTokens != nil {
		gen.MaxOutputTokens = int32(*cfg.MaxTokens)
	}
	return gen
}

// Verify looks the model up so a bad model name or key fails at startup.
func (g *GeminiCompleter) Verify(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model, nil); err != nil {
		return errors.Wrapf(err, "gemini model %s unavailable", g.model)
	}
	return nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, history []chat.Turn) (string, error) {
	contents, err := toGeminiContents(history)
	if err != nil {
		return "", err
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return "", errors.Wrap(err, "gemini generate content")
	}

	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	log.Debug().Str("model", g.model).Int("turns", len(history)).Int("length", len(text)).Msg("gemini reply")
	return text, nil
}

func (g *GeminiCompleter) Stream(ctx context.Context, history []chat.Turn, onDelta func(string)) (string, error) {
	contents, err := toGeminiContents(history)
	if err != nil {
		return "", err
	}

	var full []byte
	for res, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, g.config) {
		if err != nil {
			return "", errors.Wrap(err, "gemini stream")
		}
		chunk := res.Text()
		if chunk == "" {
			continue
		}
		full = append(full, chunk...)
		if onDelta != nil {
			onDelta(chunk)
		}
	}
	if strings.TrimSpace(string(full)) == "" {
		return "", ErrEmptyReply
	}
	return string(full), nil
}

// geminiRole maps transcript roles onto the Gemini vocabulary, which names the
// assistant "model".
func geminiRole(role chat.Role) (genai.Role, error) {
	switch role {
	case chat.RoleUser:
		return genai.RoleUser, nil
	case chat.RoleAssistant:
		return genai.RoleModel, nil
	default:
		return "", errors.Errorf("unsupported role %q", role)
	}
}

func toGeminiContents(history []chat.Turn) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role, err := geminiRole(turn.Role)
		if err != nil {
			return nil, err
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	return contents, nil
}
