package llm

import (
	"strings"

	pipeerrors "git.home.luguber.info/inful/contentpipe/internal/errors"
)

// ExtractJSON pulls the JSON document out of a model reply. Models wrap JSON
// in markdown fences or prose despite instructions, so this trims fences and
// slices from the first opening bracket to its matching closer.
func ExtractJSON(s string) ([]byte, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	objStart := strings.IndexAny(s, "{[")
	if objStart < 0 {
		return nil, pipeerrors.New(pipeerrors.CategoryProvider, pipeerrors.SeverityError, "reply contains no JSON")
	}

	var closer byte
	if s[objStart] == '{' {
		closer = '}'
	} else {
		closer = ']'
	}
	objEnd := strings.LastIndexByte(s, closer)
	if objEnd < objStart {
		return nil, pipeerrors.New(pipeerrors.CategoryProvider, pipeerrors.SeverityError, "reply JSON is not terminated")
	}

	return []byte(s[objStart : objEnd+1]), nil
}
