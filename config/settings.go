// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Settings holds all application configuration.
type Settings struct {
	LLM     LLMConfig
	Run     RunConfig
	Content ContentConfig
	Storage StorageConfig
	Log     LogConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
}

// RunConfig holds turn scheduler configuration.
type RunConfig struct {
	MaxTurns         uint32
	ReviewFrequency  uint32
	MaxParallelTools int
	ToolTimeoutSecs  uint64
	MaxToolAttempts  uint32
}

// ContentConfig bounds retrieved content and the reasoning stream.
type ContentConfig struct {
	ChunkBudget   int
	MaxDocuments  int
	FetchChunkCap int
	MaxImages     int
	RecentImages  int
	StreamStepCap int
}

// StorageConfig selects the persistence backend and external servers file.
type StorageConfig struct {
	// DBPath is the SQLite file. Empty means in-memory stores.
	DBPath string
	// MCPServersFile is the JSON config of MCP servers. Empty disables them.
	MCPServersFile string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// New creates settings for the specified provider, loading values from environment variables.
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	maxTurns, err := getEnvUint32("THESEUS_MAX_TURNS", 8)
	if err != nil {
		return Settings{}, err
	}

	reviewFrequency, err := getEnvUint32("THESEUS_REVIEW_FREQUENCY", 2)
	if err != nil {
		return Settings{}, err
	}

	maxParallel, err := getEnvInt("THESEUS_MAX_PARALLEL_TOOLS", 4)
	if err != nil {
		return Settings{}, err
	}

	toolTimeout, err := getEnvUint64("THESEUS_TOOL_TIMEOUT_SECS", 30)
	if err != nil {
		return Settings{}, err
	}

	toolAttempts, err := getEnvUint32("THESEUS_TOOL_MAX_ATTEMPTS", 2)
	if err != nil {
		return Settings{}, err
	}

	chunkBudget, err := getEnvInt("THESEUS_CHUNK_BUDGET", 10)
	if err != nil {
		return Settings{}, err
	}

	maxDocuments, err := getEnvInt("THESEUS_MAX_DOCUMENTS", 5)
	if err != nil {
		return Settings{}, err
	}

	fetchChunkCap, err := getEnvInt("THESEUS_FETCH_CHUNK_CAP", 20)
	if err != nil {
		return Settings{}, err
	}

	maxImages, err := getEnvInt("THESEUS_MAX_IMAGES", 8)
	if err != nil {
		return Settings{}, err
	}

	recentImages, err := getEnvInt("THESEUS_RECENT_IMAGES", 20)
	if err != nil {
		return Settings{}, err
	}

	streamStepCap, err := getEnvInt("THESEUS_STREAM_STEP_CAP", 5)
	if err != nil {
		return Settings{}, err
	}

	// Get model from environment or use default
	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}

	logLevel := os.Getenv("THESEUS_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Run: RunConfig{
			MaxTurns:         maxTurns,
			ReviewFrequency:  reviewFrequency,
			MaxParallelTools: maxParallel,
			ToolTimeoutSecs:  toolTimeout,
			MaxToolAttempts:  toolAttempts,
		},
		Content: ContentConfig{
			ChunkBudget:   chunkBudget,
			MaxDocuments:  maxDocuments,
			FetchChunkCap: fetchChunkCap,
			MaxImages:     maxImages,
			RecentImages:  recentImages,
			StreamStepCap: streamStepCap,
		},
		Storage: StorageConfig{
			DBPath:         os.Getenv("THESEUS_DB_PATH"),
			MCPServersFile: os.Getenv("THESEUS_MCP_SERVERS"),
		},
		Log: LogConfig{
			Level: logLevel,
		},
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvUint64(key string, defaultVal uint64) (uint64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
