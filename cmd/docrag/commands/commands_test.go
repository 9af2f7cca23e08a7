package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/docrag-go/internal/lifecycle"
)

// setupEnv points every command at a throwaway local store.
func setupEnv(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOCRAG_CONFIG", "")
	t.Setenv("VECTOR_BACKEND", "local")
	t.Setenv("DOCRAG_DATA_DIR", dataDir)
	t.Setenv("DOCRAG_DEFAULT_STORE", "")
	t.Setenv("EMBEDDING_PROVIDER", "local")
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	t.Setenv("EMBEDDING_SERIALIZE", "")
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("CHUNK_OVERLAP", "")
	t.Setenv("LOG_LEVEL", "error")
	return dataDir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIndexThenAsk(t *testing.T) {
	dataDir := setupEnv(t)
	doc := writeDoc(t, "berlin.txt", "Hotel Adlon Berlin: 420 EUR per night for three nights.")

	out, err := run(t, "index", "--store", "trip", doc)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if !strings.Contains(out, "into trip") {
		t.Errorf("unexpected index output %q", out)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "trip")); err != nil {
		t.Errorf("store directory not created: %v", err)
	}

	out, err = run(t, "ask", "--store", "trip", "--chunks-only", "how much was the hotel?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, "Hotel Adlon") || !strings.Contains(out, "berlin.txt_0") {
		t.Errorf("expected the indexed chunk in output, got %q", out)
	}
}

func TestAsk_IndexModeThenReuseStore(t *testing.T) {
	dataDir := setupEnv(t)
	docs := t.TempDir()
	t.Setenv("DOCSTORE_DIR", docs)
	bucket := filepath.Join(docs, "data-storage")
	if err := os.MkdirAll(bucket, 0o755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(bucket, "paris.txt")
	if err := os.WriteFile(src, []byte("Train Paris to Lyon: 64 EUR second class."), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "ask", "--bucket", "data-storage", "--doc", "paris.txt", "--chunks-only", "train fare?")
	if err != nil {
		t.Fatalf("ask index mode: %v", err)
	}
	if !strings.Contains(out, "64 EUR") {
		t.Errorf("expected the fetched chunk in output, got %q", out)
	}

	var storeID string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "indexed paris.txt into store ") {
			storeID = strings.TrimPrefix(line, "indexed paris.txt into store ")
		}
	}
	if !strings.HasPrefix(storeID, "vdb_paris_txt_") {
		t.Fatalf("new store id not reported, output %q", out)
	}

	// The follow-up must be served from the store alone.
	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "ask", "--store", storeID, "--chunks-only", "train fare?")
	if err != nil {
		t.Fatalf("ask query mode: %v", err)
	}
	if !strings.Contains(out, "64 EUR") || strings.Contains(out, "indexed ") {
		t.Errorf("follow-up should reuse %s without indexing, got %q", storeID, out)
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != storeID {
		t.Errorf("want exactly the one ephemeral store on disk, got %v", entries)
	}
}

func TestAsk_MissingStoreReportsNoContext(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "ask", "--store", "nothing-here", "--chunks-only", "anything?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, `No relevant information found in store "nothing-here".`) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestAsk_RejectsInvalidStore(t *testing.T) {
	setupEnv(t)

	if _, err := run(t, "ask", "--store", "../etc", "q"); err == nil {
		t.Error("want error for invalid store id")
	}
}

func TestIndex_UnsupportedFormat(t *testing.T) {
	setupEnv(t)
	doc := writeDoc(t, "scan.bmp", "BM....")

	if _, err := run(t, "index", doc); err == nil {
		t.Error("want error for unsupported format")
	}
}

func TestDelete(t *testing.T) {
	dataDir := setupEnv(t)
	doc := writeDoc(t, "notes.md", "Taxi to the airport: 35 EUR.")

	if _, err := run(t, "index", "--store", "scratch", doc); err != nil {
		t.Fatalf("index: %v", err)
	}

	out, err := run(t, "delete", "scratch")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	var outcome lifecycle.Outcome
	if err := json.Unmarshal([]byte(out), &outcome); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !outcome.Requested || !outcome.ImmediateSuccess {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "scratch")); !os.IsNotExist(err) {
		t.Errorf("store directory should be gone, stat err = %v", err)
	}
}

func TestVersion(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "docrag ") {
		t.Errorf("unexpected version output %q", out)
	}
}
