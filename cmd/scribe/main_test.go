package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/batch"
	"github.com/MikeSquared-Agency/scribe/internal/config"
)

func TestReadPayload(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	payload, ref, err := readPayload(nil, generateFlags{dir: dir})
	if err != nil {
		t.Fatalf("dir: %v", err)
	}
	if payload != "// File: main.go\npackage main\n" || ref != dir {
		t.Errorf("unexpected dir payload %q (%s)", payload, ref)
	}

	payload, ref, err = readPayload(strings.NewReader("from stdin"), generateFlags{file: "-"})
	if err != nil || payload != "from stdin" || ref != "stdin" {
		t.Errorf("unexpected stdin payload %q %q %v", payload, ref, err)
	}

	file := filepath.Join(dir, "dump.txt")
	os.WriteFile(file, []byte("dump"), 0o644)
	payload, _, err = readPayload(nil, generateFlags{file: file})
	if err != nil || payload != "dump" {
		t.Errorf("unexpected file payload %q %v", payload, err)
	}

	if _, _, err := readPayload(nil, generateFlags{}); err == nil {
		t.Error("expected error without --dir or --file")
	}
}

func TestApplyOverrides(t *testing.T) {
	t.Setenv("SCRIBE_MODEL", "")
	cfg := config.Config{Provider: "openai", Model: "gpt-4o", Concurrency: 3, MaxChunkChars: 50000}

	got := applyOverrides(cfg, generateFlags{provider: "Anthropic", concurrency: 5, maxChunkChars: 20000})
	if got.Provider != config.ProviderAnthropic || got.Model != "claude-sonnet-4-20250514" {
		t.Errorf("expected provider default model, got %s/%s", got.Provider, got.Model)
	}
	if got.Concurrency != 5 || got.MaxChunkChars != 20000 {
		t.Errorf("unexpected overrides %+v", got)
	}

	got = applyOverrides(cfg, generateFlags{model: "gpt-4.1"})
	if got.Model != "gpt-4.1" || got.Provider != "openai" {
		t.Errorf("unexpected model override %s/%s", got.Provider, got.Model)
	}
}

func TestNewGenerator_RejectsBadConfig(t *testing.T) {
	cfg := config.Config{
		Provider:        "openai",
		MaxOutputTokens: 4000,
		DirectThreshold: 100000,
		MaxChunkChars:   50000,
		Concurrency:     3,
		ChunkTimeout:    time.Second,
		BatchTimeout:    time.Second,
	}
	if _, err := newGenerator(cfg, nil); !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration without a key, got %v", err)
	}

	cfg.OpenAIAPIKey = "sk-test"
	if _, err := newGenerator(cfg, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWriteArtifact(t *testing.T) {
	var sb strings.Builder
	if err := writeArtifact(&sb, "", "# Doc"); err != nil {
		t.Fatal(err)
	}
	if sb.String() != "# Doc\n" {
		t.Errorf("unexpected stdout %q", sb.String())
	}

	path := filepath.Join(t.TempDir(), "out.md")
	if err := writeArtifact(nil, path, "# Doc\n"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "# Doc\n" {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestGeneratorOptions_RetryBudget(t *testing.T) {
	cfg := config.Config{MaxRetries: 4, CollapseTitles: true}
	opts := generatorOptions(cfg, nil)
	if opts.Batch.MaxRetries != 4 || !opts.Batch.CollapseTitles {
		t.Errorf("unexpected batch options %+v", opts.Batch)
	}

	cfg.MaxRetries = 0
	if got := generatorOptions(cfg, nil).Batch.MaxRetries; got != batch.NoRetries {
		t.Errorf("SCRIBE_MAX_RETRIES=0 should disable retries, got %d", got)
	}
}
