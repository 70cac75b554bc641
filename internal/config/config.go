package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
)

// Supported remote completion providers.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
	ProviderMock   = "mock"
)

var (
	ErrMissingAPIKey   = errors.New("api key is not configured")
	ErrMissingModel    = errors.New("model name is not configured")
	ErrUnknownProvider = errors.New("unknown llm provider")
)

const (
	defaultLLMTimeout  = 60 * time.Second
	defaultSessionTTL  = 2 * time.Hour
	defaultTemperature = 0.4
	defaultMaxTokens   = 500
	defaultGeminiModel = "gemini-1.5-flash"
	defaultArkBaseURL  = "https://ark.cn-beijing.volces.com/api/v3"
	defaultArkRegion   = "cn-beijing"

	// configFileEnv names an optional YAML/JSON/TOML file layered under the environment.
	configFileEnv = "DIAGNOSA_CONFIG"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Chat   ChatConfig
	Log    LogConfig
}

// Load 从环境变量（以及可选的配置文件）加载配置。
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	chatCfg, err := loadChatConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		AI:     ai,
		Chat:   chatCfg,
		Log:    loadLogConfig(v),
	}, nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("LLM_PROVIDER", ProviderGemini)
	v.SetDefault("GEMINI_MODEL", defaultGeminiModel)
	v.SetDefault("ARK_BASE_URL", defaultArkBaseURL)
	v.SetDefault("ARK_REGION", defaultArkRegion)
	v.SetDefault("LLM_STREAM", true)
	v.SetDefault("LLM_VERIFY_MODEL", false)
	v.SetDefault("CHAT_PRIMING_ENABLED", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	if path := strings.TrimSpace(os.Getenv(configFileEnv)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}
	return v, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := strings.TrimSpace(v.GetString("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, errors.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider       string
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	MaxTokens      *int
	Timeout        time.Duration
	StreamResponse bool
	VerifyModel    bool
}

// Validate reports whether the selected provider has the credentials it needs.
func (c AIConfig) Validate() error {
	switch c.Provider {
	case ProviderMock:
		return nil
	case ProviderGemini:
		if c.APIKey == "" {
			return errors.Wrap(ErrMissingAPIKey, "GEMINI_API_KEY")
		}
	case ProviderArk:
		if c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "") {
			return errors.Wrap(ErrMissingAPIKey, "ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
		}
	default:
		return errors.Wrapf(ErrUnknownProvider, "%q", c.Provider)
	}

	if c.Model == "" {
		return ErrMissingModel
	}
	return nil
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	var timeout *time.Duration
	if c.Timeout > 0 {
		val := c.Timeout
		timeout = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Timeout:     timeout,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	temperature, err := parseOptionalFloat(v, "LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		val := float64(defaultTemperature)
		temperature = &val
	}

	maxTokens, err := parseOptionalInt(v, "LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		val := defaultMaxTokens
		maxTokens = &val
	}

	timeout, err := parseTimeout(v, "LLM_TIMEOUT", defaultLLMTimeout)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:       strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER"))),
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		Timeout:        timeout,
		StreamResponse: v.GetBool("LLM_STREAM"),
		VerifyModel:    v.GetBool("LLM_VERIFY_MODEL"),
	}

	switch cfg.Provider {
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(v.GetString("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(v.GetString("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(v.GetString("ARK_SECRET_KEY"))
		cfg.Model = strings.TrimSpace(v.GetString("ARK_MODEL"))
		cfg.BaseURL = strings.TrimSpace(v.GetString("ARK_BASE_URL"))
		cfg.Region = strings.TrimSpace(v.GetString("ARK_REGION"))
	case ProviderMock:
		cfg.Model = "mock"
	default:
		cfg.APIKey = strings.TrimSpace(v.GetString("GEMINI_API_KEY"))
		cfg.Model = strings.TrimSpace(v.GetString("GEMINI_MODEL"))
		cfg.BaseURL = strings.TrimSpace(v.GetString("GEMINI_BASE_URL"))
	}

	return cfg, nil
}

// ChatConfig 描述会话初始化相关配置。
type ChatConfig struct {
	Priming chat.Priming
	// SessionTTL drops sessions idle for longer than this. Zero keeps them forever.
	SessionTTL time.Duration
}

func loadChatConfig(v *viper.Viper) (ChatConfig, error) {
	ttl, err := parseTimeout(v, "CHAT_SESSION_TTL", defaultSessionTTL)
	if err != nil {
		return ChatConfig{}, err
	}

	cfg := ChatConfig{SessionTTL: ttl}
	if !v.GetBool("CHAT_PRIMING_ENABLED") {
		return cfg, nil
	}

	priming := chat.DefaultPriming()
	if instruction := strings.TrimSpace(v.GetString("CHAT_PRIMING_INSTRUCTION")); instruction != "" {
		priming.Instruction = instruction
	}
	if ack := strings.TrimSpace(v.GetString("CHAT_PRIMING_ACKNOWLEDGMENT")); ack != "" {
		priming.Acknowledgment = ack
	}
	cfg.Priming = priming
	return cfg, nil
}

// LogConfig controls the global zerolog logger.
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig(v *viper.Viper) LogConfig {
	return LogConfig{
		Level:  strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		Format: strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
	}
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	return &val, nil
}

// parseTimeout accepts either whole seconds ("60") or a Go duration ("45s").
func parseTimeout(v *viper.Viper, key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(v.GetString(key))
	if value == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, errors.Errorf("invalid %s value %q: must not be negative", key, value)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s value %q", key, value)
	}
	if d < 0 {
		return 0, errors.Errorf("invalid %s value %q: must not be negative", key, value)
	}
	return d, nil
}
