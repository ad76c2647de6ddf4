// Package conform implements the conformance normalizer: it takes
// the JSONL event log produced by the logging package and reduces it to a
// form that can be diffed meaningfully across runs (and, ultimately,
// against a reference trace) despite timestamps, generated IDs, and
// host/process identity varying between runs. Grounded on
// internal/logging's JSONL shape and internal/observability's host/pid
// tagging, with the diffing itself delegated to
// github.com/pmezard/go-difflib the way testify's own assertion failures
// render diffs.
package conform

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Record is one parsed line of the runtime's JSONL event log, matching the
// shape logging.Default() writes.
type Record struct {
	Schema      string          `json:"schema"`
	TS          string          `json:"ts"`
	Level       string          `json:"level"`
	Event       string          `json:"event"`
	Message     string          `json:"message"`
	Correlation json.RawMessage `json:"correlation"`
	Source      json.RawMessage `json:"source"`
	Data        json.RawMessage `json:"data"`
}

const (
	tsPlaceholder  = "<ts>"
	idPlaceholder  = "<id>"
	cwdPlaceholder = "<cwd>"
)

// dynamicCorrelationKeys are replaced with a fixed placeholder; every other
// key in the correlation object is preserved verbatim.
var dynamicCorrelationKeys = map[string]bool{
	"session_id":  true,
	"run_id":      true,
	"artifact_id": true,
	"trace_id":    true,
	"span_id":     true,
}

// ansiCSI matches ANSI CSI escape sequences ("ESC [ ... letter").
var ansiCSI = regexp.MustCompile("\x1b\\[[0-9;]*[A-Za-z]")

// Normalizer applies the canonicalization rules to raw JSONL lines.
type Normalizer struct {
	// CWD is the working-directory prefix to fold to "<cwd>", in both
	// forward- and backward-slash forms.
	CWD string
}

// Normalize parses one JSONL line and returns its canonicalized JSON bytes,
// or an error if the line is not valid JSON.
func (n Normalizer) Normalize(line []byte) ([]byte, error) {
	var rec map[string]any
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}
	rec["ts"] = tsPlaceholder

	if corr, ok := rec["correlation"].(map[string]any); ok {
		for k := range corr {
			if dynamicCorrelationKeys[k] {
				corr[k] = idPlaceholder
			}
		}
	}

	if src, ok := rec["source"].(map[string]any); ok {
		if _, ok := src["host"]; ok {
			src["host"] = "<host>"
		}
		if _, ok := src["pid"]; ok {
			src["pid"] = 0
		}
	}

	n.stripAndFold(rec)

	canon := sortKeysDeep(rec)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // keep "<ts>"/"<id>"/"<cwd>" placeholders literal
	if err := enc.Encode(canon); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// stripAndFold walks the record recursively, stripping ANSI CSI sequences
// and folding the configured cwd prefix out of every string value.
func (n Normalizer) stripAndFold(v any) {
	switch val := v.(type) {
	case map[string]any:
		for k, sub := range val {
			val[k] = n.foldValue(sub)
		}
	case []any:
		for i, sub := range val {
			val[i] = n.foldValue(sub)
		}
	}
}

func (n Normalizer) foldValue(v any) any {
	switch val := v.(type) {
	case string:
		return n.foldString(val)
	case map[string]any:
		n.stripAndFold(val)
		return val
	case []any:
		n.stripAndFold(val)
		return val
	default:
		return val
	}
}

func (n Normalizer) foldString(s string) string {
	s = ansiCSI.ReplaceAllString(s, "")
	if n.CWD == "" {
		return s
	}
	fwd := n.CWD
	back := strings.ReplaceAll(n.CWD, "/", "\\")
	s = strings.ReplaceAll(s, fwd, cwdPlaceholder)
	s = strings.ReplaceAll(s, back, cwdPlaceholder)
	return s
}

// sortKeysDeep recursively re-keys maps so json.Marshal emits ascending key
// order (Go's encoding/json already sorts map[string]any keys, but this
// makes the canonicalization explicit and independent of that fact holding
// across future encoders).
func sortKeysDeep(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[k] = sortKeysDeep(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = sortKeysDeep(sub)
		}
		return out
	default:
		return val
	}
}
