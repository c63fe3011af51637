// Package company reads the organizational data a repository keeps under
// _company/ and the knowledge logs kept by each engagement's workstreams.
package company

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// CompanyDir holds the company-wide JSON documents.
	CompanyDir = "_company"
	// EngagementMarker identifies an engagement directory at the repo root.
	EngagementMarker = "engagement_config.json"
)

// ErrNoCompanyDir is returned when a repository has no _company directory.
var ErrNoCompanyDir = errors.New("no _company directory")

// Data is everything the viewer shows for one repository. Documents are
// passed through as raw JSON; an absent document is null.
type Data struct {
	OrgChart           json.RawMessage `json:"org_chart"`
	CompanyConfig      json.RawMessage `json:"company_config"`
	EngagementRegistry json.RawMessage `json:"engagement_registry"`
	EngagementMap      json.RawMessage `json:"engagement_map"`
	FileIndex          json.RawMessage `json:"file_index"`
	Knowledge          []Entry         `json:"knowledge"`
}

// documents maps each company document to its field in d.
func (d *Data) documents() []struct {
	file string
	dst  *json.RawMessage
} {
	return []struct {
		file string
		dst  *json.RawMessage
	}{
		{"org_chart.json", &d.OrgChart},
		{"company_config.json", &d.CompanyConfig},
		{"engagement_registry.json", &d.EngagementRegistry},
		{"engagement_map.json", &d.EngagementMap},
		{"file_index.json", &d.FileIndex},
	}
}

// DocumentNames lists the company document file names in load order.
func DocumentNames() []string {
	var d Data
	docs := d.documents()
	names := make([]string, len(docs))
	for i, doc := range docs {
		names[i] = doc.file
	}
	return names
}

// Loader reads company data from repositories.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader. A nil logger discards log output.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{logger: logger}
}

// Load reads the company documents and all knowledge logs of repoPath.
// Missing documents load as null; a document that exists but cannot be read
// or parsed fails the load. Knowledge logs never fail the load.
func (l *Loader) Load(repoPath string) (*Data, error) {
	companyDir := filepath.Join(repoPath, CompanyDir)
	info, err := os.Stat(companyDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w found at %s", ErrNoCompanyDir, repoPath)
	}

	data := &Data{Knowledge: []Entry{}}
	for _, doc := range data.documents() {
		raw, err := readDocument(filepath.Join(companyDir, doc.file))
		if err != nil {
			return nil, err
		}
		*doc.dst = raw
	}

	data.Knowledge = append(data.Knowledge, l.scanKnowledge(repoPath)...)
	l.logger.Debug("company data loaded", "repo", repoPath, "knowledge", len(data.Knowledge))
	return data, nil
}

// readDocument returns nil for a missing file.
func readDocument(path string) (json.RawMessage, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	var probe any
	if err := json.Unmarshal(content, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return json.RawMessage(content), nil
}

// scanKnowledge collects entries from <repo>/<engagement>/<workstream>/KNOWLEDGE_LOG.md
// for every engagement directory. Unreadable directories and files are skipped.
func (l *Loader) scanKnowledge(repoPath string) []Entry {
	engagements, err := os.ReadDir(repoPath)
	if err != nil {
		l.logger.Debug("skipping knowledge scan", "repo", repoPath, "error", err)
		return nil
	}

	var entries []Entry
	for _, eng := range engagements {
		if !eng.IsDir() {
			continue
		}
		engDir := filepath.Join(repoPath, eng.Name())
		if _, err := os.Stat(filepath.Join(engDir, EngagementMarker)); err != nil {
			continue
		}

		workstreams, err := os.ReadDir(engDir)
		if err != nil {
			l.logger.Debug("skipping engagement", "dir", engDir, "error", err)
			continue
		}
		for _, ws := range workstreams {
			if !ws.IsDir() {
				continue
			}
			logPath := filepath.Join(engDir, ws.Name(), KnowledgeLogName)
			content, err := os.ReadFile(logPath)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					l.logger.Debug("skipping knowledge log", "path", logPath, "error", err)
				}
				continue
			}
			entries = append(entries, ParseKnowledgeLog(string(content), eng.Name(), ws.Name())...)
		}
	}
	return entries
}
