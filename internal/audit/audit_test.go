package audit

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"github.com/54b3r/docrag-go/internal/logging"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("OPENAI_API_KEY", "sk-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("OPENAI_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("MODEL_PROVIDER", "azure"); got != "azure" {
		t.Errorf("expected 'azure', got %q", got)
	}
	if got := SanitiseKey("MODEL_PROVIDER", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestPresence(t *testing.T) {
	t.Parallel()
	if got := presence("something"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := presence(""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.docrag/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.docrag/config.yaml" {
			t.Errorf("expected '~/.docrag/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("DOCSTORE_TOKEN", "super-secret-token")
	t.Setenv("DOCRAG_API_KEY", "")
	t.Setenv("VECTOR_BACKEND", "qdrant")

	var buf bytes.Buffer
	LogCommandStart(context.Background(), logging.NewWriter(&buf, "info", "json"), "serve", "")

	out := buf.String()
	if strings.Contains(out, "super-secret-token") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}
	for _, want := range []string{`"DOCSTORE_TOKEN":"set"`, `"DOCRAG_API_KEY":"unset"`, `"VECTOR_BACKEND":"qdrant"`, `"command":"serve"`, `"config_file":"none"`} {
		if !strings.Contains(out, want) {
			t.Errorf("audit log missing %s: %s", want, out)
		}
	}
}

func TestSecretKeysAreRedactedInAuditList(t *testing.T) {
	t.Parallel()
	for _, e := range auditKeys {
		if secretEnvKeys[e.key] && !e.secret {
			t.Errorf("%s is a secret but logged in clear", e.key)
		}
	}
}
