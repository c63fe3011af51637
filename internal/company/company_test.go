package company

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_NoCompanyDir(t *testing.T) {
	_, err := NewLoader(nil).Load(t.TempDir())
	if !errors.Is(err, ErrNoCompanyDir) {
		t.Fatalf("expected ErrNoCompanyDir, got %v", err)
	}
}

func TestLoad_MissingDocumentsAreNull(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, CompanyDir, "org_chart.json"), `{"people": [{"name": "Ada"}]}`)

	data, err := NewLoader(nil).Load(repo)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	out, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"company_config", "engagement_registry", "engagement_map", "file_index"} {
		v, ok := decoded[key]
		if !ok {
			t.Errorf("missing key %s", key)
		} else if v != nil {
			t.Errorf("expected %s to be null, got %v", key, v)
		}
	}
	if decoded["org_chart"] == nil {
		t.Error("expected org_chart to be loaded")
	}
	knowledge, ok := decoded["knowledge"].([]any)
	if !ok || len(knowledge) != 0 {
		t.Errorf("expected empty knowledge array, got %v", decoded["knowledge"])
	}
}

func TestLoad_InvalidDocumentFails(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, CompanyDir, "file_index.json"), `{not json`)

	_, err := NewLoader(nil).Load(repo)
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_Knowledge(t *testing.T) {
	repo := t.TempDir()
	writeFile(t, filepath.Join(repo, CompanyDir, "company_config.json"), `{}`)

	// An engagement with two workstreams, one of which has no log.
	writeFile(t, filepath.Join(repo, "acme", EngagementMarker), `{}`)
	writeFile(t, filepath.Join(repo, "acme", "infra", KnowledgeLogName),
		"## 2025-03-01\n### [DECISION] Move to k8s\n- **Detail**: approved\n")
	writeFile(t, filepath.Join(repo, "acme", "people", "notes.md"), "nothing here")

	// A directory without the engagement marker is ignored.
	writeFile(t, filepath.Join(repo, "scratch", "ws", KnowledgeLogName), "### [X] ignored\n")

	// A log path that is a directory cannot be read and is skipped.
	if err := os.MkdirAll(filepath.Join(repo, "acme", "broken", KnowledgeLogName), 0o755); err != nil {
		t.Fatal(err)
	}

	data, err := NewLoader(nil).Load(repo)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(data.Knowledge) != 1 {
		t.Fatalf("expected 1 knowledge entry, got %d: %+v", len(data.Knowledge), data.Knowledge)
	}
	want := Entry{
		Engagement: "acme", Workstream: "infra", Date: "2025-03-01",
		Type: "DECISION", Summary: "Move to k8s", Detail: "approved",
	}
	if data.Knowledge[0] != want {
		t.Errorf("got %+v, want %+v", data.Knowledge[0], want)
	}
}

func TestDocumentNames(t *testing.T) {
	names := DocumentNames()
	if len(names) != 5 {
		t.Fatalf("expected 5 documents, got %d", len(names))
	}
	if names[0] != "org_chart.json" || names[4] != "file_index.json" {
		t.Errorf("unexpected order: %v", names)
	}
}

func TestReadLocalJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "settings.json"), `{
	// where the repos live
	"repos": ["/a", "/b",],
}`)

	raw, err := ReadLocalJSON(dir, "settings.json")
	if err != nil {
		t.Fatalf("ReadLocalJSON failed: %v", err)
	}

	var v struct {
		Repos []string `json:"repos"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if len(v.Repos) != 2 || v.Repos[1] != "/b" {
		t.Errorf("unexpected repos %v", v.Repos)
	}
}

func TestReadLocalJSON_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.json"), `{"a":`)

	if _, err := ReadLocalJSON(dir, "missing.json"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if _, err := ReadLocalJSON(dir, "bad.json"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := ReadLocalJSON(dir, "../escape.json"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}
