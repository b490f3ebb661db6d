package config

import (
	"os"
	"testing"
)

func TestNewValidProvider(t *testing.T) {
	settings, err := New("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", settings.LLM.Provider)
	}
}

func TestNewWithAlias(t *testing.T) {
	settings, err := New("claude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("unknown_provider")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNewDefaults(t *testing.T) {
	for _, key := range []string{
		"THESEUS_MAX_TURNS", "THESEUS_REVIEW_FREQUENCY", "THESEUS_MAX_PARALLEL_TOOLS",
		"THESEUS_CHUNK_BUDGET", "THESEUS_MAX_IMAGES", "THESEUS_STREAM_STEP_CAP",
		"THESEUS_DB_PATH", "THESEUS_LOG_LEVEL",
	} {
		original := os.Getenv(key)
		os.Unsetenv(key)
		defer os.Setenv(key, original)
	}

	settings, err := New("anthropic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.Run.MaxTurns != 8 {
		t.Errorf("default MaxTurns = %d, want 8", settings.Run.MaxTurns)
	}
	if settings.Run.ReviewFrequency != 2 {
		t.Errorf("default ReviewFrequency = %d, want 2", settings.Run.ReviewFrequency)
	}
	if settings.Run.MaxParallelTools != 4 {
		t.Errorf("default MaxParallelTools = %d, want 4", settings.Run.MaxParallelTools)
	}
	if settings.Content.ChunkBudget != 10 {
		t.Errorf("default ChunkBudget = %d, want 10", settings.Content.ChunkBudget)
	}
	if settings.Content.MaxImages != 8 {
		t.Errorf("default MaxImages = %d, want 8", settings.Content.MaxImages)
	}
	if settings.Content.StreamStepCap != 5 {
		t.Errorf("default StreamStepCap = %d, want 5", settings.Content.StreamStepCap)
	}
	if settings.Storage.DBPath != "" {
		t.Errorf("default DBPath = %q, want empty (in-memory)", settings.Storage.DBPath)
	}
	if settings.Log.Level != "info" {
		t.Errorf("default log level = %q, want info", settings.Log.Level)
	}
}

func TestNewReadsOverrides(t *testing.T) {
	overrides := map[string]string{
		"THESEUS_MAX_TURNS":        "12",
		"THESEUS_REVIEW_FREQUENCY": "3",
		"THESEUS_DB_PATH":          "/tmp/theseus-test.db",
		"THESEUS_LOG_LEVEL":        "debug",
	}
	for key, val := range overrides {
		original := os.Getenv(key)
		os.Setenv(key, val)
		defer os.Setenv(key, original)
	}

	settings, err := New("anthropic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Run.MaxTurns != 12 {
		t.Errorf("MaxTurns = %d, want 12", settings.Run.MaxTurns)
	}
	if settings.Run.ReviewFrequency != 3 {
		t.Errorf("ReviewFrequency = %d, want 3", settings.Run.ReviewFrequency)
	}
	if settings.Storage.DBPath != "/tmp/theseus-test.db" {
		t.Errorf("DBPath = %q", settings.Storage.DBPath)
	}
	if settings.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", settings.Log.Level)
	}
}

func TestAPIKeyForValidProvider(t *testing.T) {
	original := os.Getenv("OPENAI_API_KEY")
	os.Setenv("OPENAI_API_KEY", "test-key")
	defer os.Setenv("OPENAI_API_KEY", original)

	key, err := APIKeyFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "test-key" {
		t.Errorf("expected 'test-key', got %q", key)
	}
}

func TestAPIKeyForMissing(t *testing.T) {
	original := os.Getenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	defer os.Setenv("OPENAI_API_KEY", original)

	_, err := APIKeyFor("openai")
	if err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestAPIKeyForUnknownProvider(t *testing.T) {
	_, err := APIKeyFor("unknown")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestModelFor(t *testing.T) {
	model, err := ModelFor("openai")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model == "" {
		t.Error("expected non-empty model")
	}
}

func TestNewWithInvalidEnvVar(t *testing.T) {
	original := os.Getenv("THESEUS_MAX_TURNS")
	os.Setenv("THESEUS_MAX_TURNS", "not-a-number")
	defer os.Setenv("THESEUS_MAX_TURNS", original)

	_, err := New("openai")
	if err == nil {
		t.Error("expected error for invalid THESEUS_MAX_TURNS")
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for unknown provider")
		}
	}()
	MustNew("unknown_provider")
}

func TestSupportedProviders(t *testing.T) {
	providers := SupportedProviders()
	if len(providers) == 0 {
		t.Error("expected at least one supported provider")
	}
}
