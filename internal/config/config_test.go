package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/epigraphy")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.QueueName != "epigraphy:runs" {
		t.Errorf("expected default queue name, got %q", cfg.QueueName)
	}
	if cfg.DefaultScript != "Seal Script" {
		t.Errorf("expected default script, got %q", cfg.DefaultScript)
	}
	if cfg.VisionTimeout != 60*time.Second || cfg.TextTimeout != 30*time.Second {
		t.Errorf("unexpected timeouts: vision=%v text=%v", cfg.VisionTimeout, cfg.TextTimeout)
	}
	if len(cfg.TranslationModels) != 2 {
		t.Errorf("expected two default translation models, got %v", cfg.TranslationModels)
	}
	if cfg.AllowSampleFallback {
		t.Error("sample fallback must default to off")
	}
	if cfg.HasOpenAI() || cfg.HasAuxVision() {
		t.Error("backends must be unavailable without credentials")
	}
}

func TestLoadConfigRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error for missing DATABASE_URL")
	}
}

func TestTranslationModelListParsing(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/epigraphy")
	t.Setenv("TRANSLATION_MODELS", " gpt-4o , , gpt-4o-mini ,custom-model")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"gpt-4o", "gpt-4o-mini", "custom-model"}
	if len(cfg.TranslationModels) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.TranslationModels)
	}
	for i, m := range want {
		if cfg.TranslationModels[i] != m {
			t.Errorf("model %d: expected %q, got %q", i, m, cfg.TranslationModels[i])
		}
	}
}

func TestValidateBounds(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/epigraphy")
	t.Setenv("WORKER_CONCURRENCY", "0")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error for zero concurrency")
	}
}
