package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/search-evaluator/internal/evaluation"
	"github.com/spigell/search-evaluator/internal/imagesearch"
	"github.com/spigell/search-evaluator/internal/secrets"
)

func TestNewGeneratorRequiresCredential(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	for _, provider := range []string{"", "gemini", "openai"} {
		t.Run("provider "+provider, func(t *testing.T) {
			gen, err := newGenerator(context.Background(), &AIConfig{
				Provider: provider,
				Gemini:   &GeminiConfig{},
				OpenAI:   &OpenAIConfig{},
			}, zap.NewNop())
			if !errors.Is(err, secrets.ErrNotConfigured) {
				t.Fatalf("expected missing credential error, got %v", err)
			}
			if gen != nil {
				t.Fatalf("expected no generator, got %T", gen)
			}
		})
	}
}

func TestNewGeneratorUnsupportedProvider(t *testing.T) {
	_, err := newGenerator(context.Background(), &AIConfig{Provider: "llama"}, zap.NewNop())
	if err == nil || !strings.Contains(err.Error(), "unsupported ai provider") {
		t.Fatalf("expected unsupported provider error, got %v", err)
	}
}

func TestNewGeneratorFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	gen, err := newGenerator(context.Background(), &AIConfig{
		Provider: "OpenAI",
		OpenAI:   &OpenAIConfig{Model: "gpt-test"},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Model() != "gpt-test" {
		t.Fatalf("expected model gpt-test, got %q", gen.Model())
	}
}

func TestNewGeneratorFromKeyFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	keyFile := filepath.Join(t.TempDir(), "gemini.key")
	if err := os.WriteFile(keyFile, []byte("test-key\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	gen, err := newGenerator(context.Background(), &AIConfig{
		Gemini: &GeminiConfig{APIKeyFile: keyFile},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Model() == "" {
		t.Fatal("expected default model to be set")
	}
}

func TestNewImageServiceWithoutKey(t *testing.T) {
	t.Setenv("UNSPLASH_ACCESS_KEY", "")

	service, err := newImageService(&ImageConfig{
		FallbackURL: "https://images.example.com/?q={keyword}",
	}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := service.ImageFor(context.Background(), imagesearch.Request{Query: "desk lamp"})
	if got != "https://images.example.com/?q=desk+lamp" {
		t.Fatalf("expected keyword fallback url, got %q", got)
	}
}

func TestDecodeConfigDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	config, err := decodeConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Server.Address != ":8000" {
		t.Fatalf("unexpected address %q", config.Server.Address)
	}
	if config.AI.Provider != "gemini" {
		t.Fatalf("unexpected provider %q", config.AI.Provider)
	}
	if config.Evaluation.BatchConcurrency != 1 {
		t.Fatalf("unexpected batch concurrency %d", config.Evaluation.BatchConcurrency)
	}
	if config.Image.Timeout != 10*time.Second {
		t.Fatalf("unexpected image timeout %s", config.Image.Timeout)
	}
	if config.Image.PlaceholderURL != imagesearch.DefaultPlaceholderURL {
		t.Fatalf("unexpected placeholder %q", config.Image.PlaceholderURL)
	}
}

func TestDecodeConfigFromYAML(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	yaml := `
server:
  environment: production
  cors-origins: ["https://ui.example.com"]
ai:
  provider: openai
  openai:
    base-url: http://localhost:11434/v1
evaluation:
  batch-concurrency: 4
image:
  timeout: 3s
`
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("read config: %v", err)
	}

	config, err := decodeConfig(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Server.Environment != "production" {
		t.Fatalf("unexpected environment %q", config.Server.Environment)
	}
	if len(config.Server.CORSOrigins) != 1 || config.Server.CORSOrigins[0] != "https://ui.example.com" {
		t.Fatalf("unexpected cors origins %q", config.Server.CORSOrigins)
	}
	if config.AI.Provider != "openai" || config.AI.OpenAI.BaseURL != "http://localhost:11434/v1" {
		t.Fatalf("unexpected ai config %+v", config.AI.OpenAI)
	}
	if config.AI.OpenAI.Model != "gpt-4o-mini" {
		t.Fatalf("expected default openai model, got %q", config.AI.OpenAI.Model)
	}
	if config.Evaluation.BatchConcurrency != 4 {
		t.Fatalf("unexpected batch concurrency %d", config.Evaluation.BatchConcurrency)
	}
	if config.Image.Timeout != 3*time.Second {
		t.Fatalf("unexpected image timeout %s", config.Image.Timeout)
	}
}

func TestReadItem(t *testing.T) {
	item, err := readItem(strings.NewReader(`{"query": "lamp", "item_title": "Desk Lamp", "item_price": 19.5}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Query != "lamp" || item.ItemTitle != "Desk Lamp" {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.ItemPrice == nil || *item.ItemPrice != 19.5 {
		t.Fatalf("unexpected price %v", item.ItemPrice)
	}
	if item.ItemAttributes == nil {
		t.Fatal("expected attributes to default to an empty map")
	}

	for _, body := range []string{`{"item_title": "x"}`, `not json`} {
		if _, err := readItem(strings.NewReader(body)); !evaluation.IsKind(err, evaluation.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %q, got %v", body, err)
		}
	}
}

func TestParseAttributes(t *testing.T) {
	attrs, err := parseAttributes(" color = blue, size=M ,, ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(attrs) != 2 || attrs["color"] != "blue" || attrs["size"] != "M" {
		t.Fatalf("unexpected attributes %v", attrs)
	}

	if _, err := parseAttributes("color"); err == nil {
		t.Fatal("expected error for attribute without value")
	}
}

func TestParsePrice(t *testing.T) {
	price, err := parsePrice("  ")
	if err != nil || price != nil {
		t.Fatalf("expected no price, got %v, %v", price, err)
	}

	price, err = parsePrice("12.25")
	if err != nil || price == nil || *price != 12.25 {
		t.Fatalf("unexpected price %v, %v", price, err)
	}

	if _, err := parsePrice("cheap"); err == nil {
		t.Fatal("expected error for invalid price")
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	result := &evaluation.Result{RelevanceScore: 7, ReasonCode: "Good", Confidence: 0.85, AIReasoning: "Good match"}

	if err := printJSON(&buf, result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded evaluation.Result
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	if decoded != *result {
		t.Fatalf("expected %+v, got %+v", *result, decoded)
	}
}
