package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every subsystem's settings.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Context ContextConfig
	Engage  EngageConfig
	Wallet  WalletConfig
	Log     LogConfig
}

// Load reads the full configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	engage, err := loadEngageConfig()
	if err != nil {
		return nil, err
	}

	wallet, err := loadWalletConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Context: loadContextConfig(),
		Engage:  engage,
		Wallet:  wallet,
		Log:     LogConfig{Dir: getEnvOrDefault("CONVERSATION_LOG_DIR", "conversation_logs")},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" verbatim.
		return ServerConfig{Addr: port}, nil
	}
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the chat model credentials and limits.
type AIConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
	MaxTokens int
}

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds the ark chat model from this configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: set ARK_API_KEY + Model, or the AK/SK pair")
	}

	maxTokens := c.MaxTokens
	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
		MaxTokens: &maxTokens,
	}
	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	maxTokens := 1024
	if override, err := parseOptionalIntEnv("ARK_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("ARK_MAX_TOKENS must be positive, got %d", *override)
		}
		maxTokens = *override
	}

	return AIConfig{
		APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:     strings.TrimSpace(os.Getenv("Model")),
		BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		MaxTokens: maxTokens,
	}, nil
}

// ContextConfig names the static context documents assembled into the system
// prompt. Missing files read as empty, never as errors.
type ContextConfig struct {
	SystemPromptFile string
	BackgroundFile   string
	ContextFile      string
}

func loadContextConfig() ContextConfig {
	return ContextConfig{
		SystemPromptFile: getEnvOrDefault("SYSTEM_PROMPT_FILE", "system_prompt.txt"),
		BackgroundFile:   getEnvOrDefault("BACKGROUND_FILE", "background_context.txt"),
		ContextFile:      getEnvOrDefault("CONTEXT_FILE", "user_context.txt"),
	}
}

// EngageConfig carries the group engagement thresholds.
type EngageConfig struct {
	RelevanceThreshold  float64
	ContinuityThreshold float64
	Window              time.Duration
	Capacity            int
	ContinuityDepth     int
}

func loadEngageConfig() (EngageConfig, error) {
	cfg := EngageConfig{
		RelevanceThreshold:  0.7,
		ContinuityThreshold: 0.6,
		Window:              5 * time.Minute,
		Capacity:            10,
		ContinuityDepth:     3,
	}

	if v, err := parseOptionalFloatEnv("RELEVANCE_THRESHOLD"); err != nil {
		return EngageConfig{}, err
	} else if v != nil {
		cfg.RelevanceThreshold = *v
	}
	if v, err := parseOptionalFloatEnv("CONTINUITY_THRESHOLD"); err != nil {
		return EngageConfig{}, err
	} else if v != nil {
		cfg.ContinuityThreshold = *v
	}
	if v, err := parseOptionalIntEnv("ACTIVITY_WINDOW_SECONDS"); err != nil {
		return EngageConfig{}, err
	} else if v != nil {
		if *v < 1 {
			return EngageConfig{}, fmt.Errorf("ACTIVITY_WINDOW_SECONDS must be positive, got %d", *v)
		}
		cfg.Window = time.Duration(*v) * time.Second
	}
	if v, err := parseOptionalIntEnv("ACTIVITY_CAPACITY"); err != nil {
		return EngageConfig{}, err
	} else if v != nil {
		if *v < 1 {
			return EngageConfig{}, fmt.Errorf("ACTIVITY_CAPACITY must be positive, got %d", *v)
		}
		cfg.Capacity = *v
	}
	if v, err := parseOptionalIntEnv("CONTINUITY_DEPTH"); err != nil {
		return EngageConfig{}, err
	} else if v != nil {
		if *v < 1 {
			return EngageConfig{}, fmt.Errorf("CONTINUITY_DEPTH must be positive, got %d", *v)
		}
		cfg.ContinuityDepth = *v
	}
	return cfg, nil
}

// WalletConfig describes the Base USDC wallet. The wallet as a whole is
// optional, but enabling it with a malformed remainder is a startup error.
type WalletConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string
}

// Enabled reports whether wallet-backed functions should be registered.
func (c WalletConfig) Enabled() bool {
	return c.PrivateKey != ""
}

func loadWalletConfig() (WalletConfig, error) {
	cfg := WalletConfig{
		RPCURL:          getEnvOrDefault("BASE_RPC_URL", "https://mainnet.base.org"),
		ContractAddress: getEnvOrDefault("USDC_CONTRACT_ADDRESS", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		PrivateKey:      strings.TrimSpace(os.Getenv("BOT_PRIVATE_KEY")),
	}
	if cfg.Enabled() && !strings.HasPrefix(cfg.ContractAddress, "0x") {
		return WalletConfig{}, fmt.Errorf("USDC_CONTRACT_ADDRESS must be a 0x address, got %q", cfg.ContractAddress)
	}
	return cfg, nil
}

// LogConfig describes the conversation log location.
type LogConfig struct {
	Dir string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
