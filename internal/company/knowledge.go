package company

import (
	"strings"
)

// KnowledgeLogName is the file each workstream keeps its knowledge log in.
const KnowledgeLogName = "KNOWLEDGE_LOG.md"

// Entry is one knowledge log record.
type Entry struct {
	Engagement string `json:"engagement"`
	Workstream string `json:"workstream"`
	Date       string `json:"date"`
	Type       string `json:"type"`
	Summary    string `json:"summary"`
	Detail     string `json:"detail"`
	Source     string `json:"source"`
}

type scanState int

const (
	noEntry scanState = iota
	inEntry
)

const (
	dateHeading  = "## "
	entryHeading = "### "
	bulletPrefix = "- "
	detailPrefix = "**Detail**:"
	sourcePrefix = "**Source**:"
)

// knowledgeScanner turns knowledge log lines into entries. "## " lines set
// the current date, "### " lines open an entry, and Detail/Source
// annotations fill in the open entry. An entry is emitted when the next
// heading arrives or the input ends.
type knowledgeScanner struct {
	state   scanState
	date    string
	current Entry
	entries []Entry

	engagement string
	workstream string
}

// ParseKnowledgeLog extracts entries from the content of a knowledge log.
// Malformed lines never fail the parse; missing fields are left empty.
func ParseKnowledgeLog(content, engagement, workstream string) []Entry {
	s := &knowledgeScanner{engagement: engagement, workstream: workstream}
	for _, line := range strings.Split(content, "\n") {
		s.line(strings.TrimSuffix(line, "\r"))
	}
	s.flush()
	return s.entries
}

func (s *knowledgeScanner) line(line string) {
	switch {
	case strings.HasPrefix(line, entryHeading):
		s.flush()
		s.current = s.openEntry(strings.TrimSpace(trimAllPrefix(line, entryHeading)))
		s.state = inEntry

	case strings.HasPrefix(line, dateHeading):
		s.flush()
		s.date = strings.TrimSpace(trimAllPrefix(line, dateHeading))

	case s.state == inEntry:
		annotation := trimAllPrefix(line, bulletPrefix)
		if rest, ok := strings.CutPrefix(annotation, detailPrefix); ok {
			s.current.Detail = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(annotation, sourcePrefix); ok {
			s.current.Source = strings.TrimSpace(rest)
		}
	}
}

// openEntry parses "[TYPE] summary". A header without a closed bracket is
// kept whole as the summary with no type.
func (s *knowledgeScanner) openEntry(header string) Entry {
	e := Entry{
		Engagement: s.engagement,
		Workstream: s.workstream,
		Date:       s.date,
		Summary:    header,
	}
	if rest, ok := strings.CutPrefix(header, "["); ok {
		if end := strings.Index(rest, "]"); end >= 0 {
			e.Type = strings.ToUpper(rest[:end])
			e.Summary = strings.TrimSpace(rest[end+1:])
		}
	}
	return e
}

func (s *knowledgeScanner) flush() {
	if s.state == inEntry {
		s.entries = append(s.entries, s.current)
	}
	s.current = Entry{}
	s.state = noEntry
}

func trimAllPrefix(s, prefix string) string {
	for strings.HasPrefix(s, prefix) {
		s = s[len(prefix):]
	}
	return s
}
