package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write secret file: %v", err)
	}
	return path
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("TEST_SECRET_ENV", " from-env ")
	file := writeSecret(t, "from-file\n")

	tests := []struct {
		name string
		src  Source
		want string
	}{
		{name: "file wins", src: Source{File: file, Value: "inline", Env: "TEST_SECRET_ENV"}, want: "from-file"},
		{name: "value over env", src: Source{Value: "  inline ", Env: "TEST_SECRET_ENV"}, want: "inline"},
		{name: "env fallback", src: Source{Env: "TEST_SECRET_ENV"}, want: "from-env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("TEST_SECRET_EMPTY", "   ")

	_, err := Load(Source{Name: "gemini api key", Env: "TEST_SECRET_EMPTY", Hint: "set GEMINI_API_KEY"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if !strings.Contains(err.Error(), "gemini api key") || !strings.Contains(err.Error(), "set GEMINI_API_KEY") {
		t.Fatalf("expected name and hint in error, got %q", err)
	}

	_, err = Load(Source{File: writeSecret(t, " \n")})
	if err == nil || errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected empty file error, got %v", err)
	}

	_, err = Load(Source{File: filepath.Join(t.TempDir(), "missing")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	got, err := LoadOptional(Source{Name: "image api key"})
	if err != nil || got != "" {
		t.Fatalf("expected empty secret without error, got %q, %v", got, err)
	}

	got, err = LoadOptional(Source{Value: "abc"})
	if err != nil || got != "abc" {
		t.Fatalf("expected abc, got %q, %v", got, err)
	}

	if _, err := LoadOptional(Source{File: writeSecret(t, "")}); err == nil {
		t.Fatal("expected error for empty secret file")
	}
}
