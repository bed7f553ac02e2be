// Package skills owns the skill library: markdown files with YAML metadata,
// a confidence weight per skill, and the update rules that tie downstream
// engagement back into prompt composition.
package skills

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/contentpipe/internal/pipeline"
)

const delimiter = "---\n"

// fileMeta is the YAML metadata block at the top of a skill file. The
// markdown body below it is the skill content itself.
type fileMeta struct {
	Name            string     `yaml:"name"`
	Category        string     `yaml:"category"`
	Platform        string     `yaml:"platform,omitempty"`
	Confidence      float64    `yaml:"confidence"`
	Status          string     `yaml:"status"`
	Version         int        `yaml:"version"`
	Tags            []string   `yaml:"tags,omitempty"`
	ChangeReason    string     `yaml:"change_reason,omitempty"`
	TotalUses       int        `yaml:"total_uses"`
	SuccessCount    int        `yaml:"success_count"`
	FailureStreak   int        `yaml:"failure_streak"`
	LastUsedAt      *time.Time `yaml:"last_used_at,omitempty"`
	LastValidatedAt *time.Time `yaml:"last_validated_at,omitempty"`
	CreatedAt       time.Time  `yaml:"created_at,omitempty"`
	UpdatedAt       time.Time  `yaml:"updated_at,omitempty"`
}

// ParseSkillFile decodes one skill file. fallbackName is used when the
// metadata omits a name, typically the file's stem.
func ParseSkillFile(data []byte, fallbackName string) (*pipeline.Skill, error) {
	meta, body, err := splitSkillFile(data)
	if err != nil {
		return nil, err
	}

	var m fileMeta
	if len(meta) > 0 {
		if err := yaml.Unmarshal(meta, &m); err != nil {
			return nil, fmt.Errorf("parse skill metadata: %w", err)
		}
	}

	name := m.Name
	if name == "" {
		name = fallbackName
	}
	if name == "" {
		return nil, fmt.Errorf("skill file has no name")
	}

	sk := &pipeline.Skill{
		Name:            name,
		Category:        m.Category,
		Platform:        m.Platform,
		Confidence:      m.Confidence,
		Status:          pipeline.SkillStatus(m.Status),
		Version:         m.Version,
		Content:         strings.TrimSpace(string(body)),
		Tags:            m.Tags,
		ChangeReason:    m.ChangeReason,
		TotalUses:       m.TotalUses,
		SuccessCount:    m.SuccessCount,
		FailureStreak:   m.FailureStreak,
		LastUsedAt:      m.LastUsedAt,
		LastValidatedAt: m.LastValidatedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if sk.Status == "" {
		sk.Status = pipeline.SkillActive
	}
	if sk.Version == 0 {
		sk.Version = 1
	}
	if sk.Confidence == 0 {
		sk.Confidence = 0.50
	}
	return sk, nil
}

// EncodeSkillFile renders a skill back into its on-disk form: YAML metadata
// between --- delimiters followed by the markdown body.
func EncodeSkillFile(sk *pipeline.Skill) ([]byte, error) {
	m := fileMeta{
		Name:            sk.Name,
		Category:        sk.Category,
		Platform:        sk.Platform,
		Confidence:      sk.Confidence,
		Status:          string(sk.Status),
		Version:         sk.Version,
		Tags:            sk.Tags,
		ChangeReason:    sk.ChangeReason,
		TotalUses:       sk.TotalUses,
		SuccessCount:    sk.SuccessCount,
		FailureStreak:   sk.FailureStreak,
		LastUsedAt:      sk.LastUsedAt,
		LastValidatedAt: sk.LastValidatedAt,
		CreatedAt:       sk.CreatedAt,
		UpdatedAt:       sk.UpdatedAt,
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&m); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("encode skill metadata: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close skill metadata encoder: %w", err)
	}
	buf.WriteString(delimiter)
	buf.WriteString(sk.Content)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// splitSkillFile separates the metadata block from the body. A file without
// a leading delimiter is all body.
func splitSkillFile(data []byte) (meta, body []byte, err error) {
	open := []byte(delimiter)
	if !bytes.HasPrefix(data, open) {
		return nil, data, nil
	}

	rest := data[len(open):]
	closeSeq := []byte("\n" + delimiter)
	if bytes.HasPrefix(rest, open) {
		// Empty metadata block.
		return nil, rest[len(open):], nil
	}
	idx := bytes.Index(rest, closeSeq)
	if idx < 0 {
		return nil, nil, fmt.Errorf("skill metadata block is not terminated")
	}
	return rest[:idx+1], rest[idx+len(closeSeq):], nil
}
