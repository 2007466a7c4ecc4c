package internal

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Note entry wire format: a yaml front-matter header between "---" fences,
// followed by the markdown body. Multiple entries under one
// (namespace, commit) anchor are joined by the git scissors line, so a note
// always grows by append and never loses an earlier body.
const (
	frontMatterFence = "---"
	entrySeparator   = "------------------------ >8 ------------------------"
)

type noteHeader struct {
	ID        string    `yaml:"id"`
	Commit    string    `yaml:"commit"`
	Summary   string    `yaml:"summary"`
	Spec      string    `yaml:"spec,omitempty"`
	Phase     string    `yaml:"phase,omitempty"`
	Tags      []string  `yaml:"tags,omitempty"`
	Status    string    `yaml:"status,omitempty"`
	Timestamp time.Time `yaml:"timestamp"`
}

// EncodeEntry serializes one memory as a front-matter entry.
func EncodeEntry(m *Memory) (string, error) {
	header := noteHeader{
		ID:        m.ID,
		Commit:    m.CommitRef,
		Summary:   m.Summary,
		Spec:      m.Spec,
		Phase:     m.Phase,
		Tags:      m.SortedTags(),
		Status:    m.Status,
		Timestamp: m.Timestamp.UTC(),
	}

	data, err := yaml.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("marshal note header: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(frontMatterFence)
	sb.WriteString("\n")
	sb.Write(data)
	sb.WriteString(frontMatterFence)
	sb.WriteString("\n")
	sb.WriteString(m.Content)
	if !strings.HasSuffix(m.Content, "\n") {
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// AppendEntry merges a new serialized entry into existing note content.
func AppendEntry(existing, entry string) string {
	if strings.TrimSpace(existing) == "" {
		return entry
	}
	if !strings.HasSuffix(existing, "\n") {
		existing += "\n"
	}
	return existing + entrySeparator + "\n" + entry
}

// ParseEntry parses a single front-matter entry back into a Memory.
func ParseEntry(raw string) (Memory, error) {
	trimmed := strings.TrimLeft(raw, "\n")
	if !strings.HasPrefix(trimmed, frontMatterFence+"\n") {
		return Memory{}, &ParseError{What: "note entry", Detail: "missing front-matter fence"}
	}

	rest := trimmed[len(frontMatterFence)+1:]
	terminator := "\n" + frontMatterFence
	idx := strings.Index(rest, terminator)
	if idx < 0 {
		return Memory{}, &ParseError{What: "note entry", Detail: "unterminated front-matter"}
	}

	headerRaw := rest[:idx]
	body := strings.TrimPrefix(rest[idx+len(terminator):], "\n")

	var header noteHeader
	if err := yaml.Unmarshal([]byte(headerRaw), &header); err != nil {
		return Memory{}, &ParseError{What: "note header", Detail: err.Error()}
	}
	if header.ID == "" {
		return Memory{}, &ParseError{What: "note header", Detail: "missing id"}
	}

	ns, _, _, err := ParseMemoryID(header.ID)
	if err != nil {
		return Memory{}, err
	}

	return Memory{
		ID:        header.ID,
		CommitRef: header.Commit,
		Namespace: ns,
		Spec:      header.Spec,
		Phase:     header.Phase,
		Summary:   header.Summary,
		Content:   strings.TrimRight(body, "\n"),
		Tags:      header.Tags,
		Timestamp: header.Timestamp.UTC(),
		Status:    header.Status,
	}, nil
}

// ParseEntries splits note content on the scissors separator and parses each
// entry. Malformed entries are skipped and counted so a single corrupted
// append cannot hide the rest of the note.
func ParseEntries(content string) ([]Memory, int) {
	if strings.TrimSpace(content) == "" {
		return nil, 0
	}

	chunks := strings.Split(content, entrySeparator)
	memories := make([]Memory, 0, len(chunks))
	malformed := 0

	for _, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		mem, err := ParseEntry(chunk)
		if err != nil {
			malformed++
			continue
		}
		memories = append(memories, mem)
	}

	return memories, malformed
}
