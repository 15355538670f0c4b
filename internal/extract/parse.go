package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError indicates a completion that could not be parsed into candidates.
// It is treated like a transient provider failure: the task is retried, since
// a fresh completion usually yields well-formed output.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse completion: %v (raw: %s)", e.Err, truncate(e.Raw, 200))
}

func (e *ParseError) Unwrap() error { return e.Err }

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func stripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type candidateJSON struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

const defaultConfidence = 0.7

// parseCandidates decodes a completion into (label, confidence) pairs.
// The primary format is an array of {"name","confidence"} objects; a bare
// array of strings is accepted with a default confidence, since models
// sometimes fall back to it.
func parseCandidates(raw string) ([]candidateJSON, error) {
	text := stripCodeBlock(raw)

	var objs []candidateJSON
	if err := json.Unmarshal([]byte(text), &objs); err == nil {
		for i := range objs {
			if objs[i].Confidence <= 0 || objs[i].Confidence > 1 {
				objs[i].Confidence = defaultConfidence
			}
		}
		return objs, nil
	}

	var names []string
	if err := json.Unmarshal([]byte(text), &names); err == nil {
		out := make([]candidateJSON, 0, len(names))
		for _, n := range names {
			out = append(out, candidateJSON{Name: n, Confidence: defaultConfidence})
		}
		return out, nil
	}

	return nil, &ParseError{Raw: raw, Err: fmt.Errorf("not a JSON candidate array")}
}

var (
	markupChars      = regexp.MustCompile("[`*_#]")
	injectionPattern = regexp.MustCompile(
		`(?i)(ignore\s+(previous|all|above)|system\s*prompt|you\s+are\s+now|` +
			`act\s+as\s+|pretend\s+|forget\s+(everything|all)|override|` +
			`new\s+instructions)`,
	)
)

const maxLabelLen = 200

// CleanLabel normalizes an extracted concept label. It returns "" for labels
// that should be discarded: empty after cleanup, absurdly long, or carrying
// prompt-injection content echoed back from the source document.
func CleanLabel(s string) string {
	s = markupChars.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" || len(s) > maxLabelLen {
		return ""
	}
	if injectionPattern.MatchString(s) {
		return ""
	}
	return s
}
