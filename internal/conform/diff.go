package conform

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// diffKeyFields is the fallback chain used to derive a diff group key: the
// first non-empty of these correlation fields becomes the key's "kind:id"
// component.
var diffKeyFields = []string{
	"tool_call_id", "slash_command_id", "event_id", "host_call_id", "rpc_id", "scenario_id",
}

// DiffKey derives the grouping key for one normalized record: "<event>::<kind>:<id>".
func DiffKey(rec map[string]any) string {
	event, _ := rec["event"].(string)
	corr, _ := rec["correlation"].(map[string]any)

	for _, field := range diffKeyFields {
		if corr == nil {
			break
		}
		if id, ok := corr[field].(string); ok && id != "" {
			return fmt.Sprintf("%s::%s:%s", event, field, id)
		}
	}
	return fmt.Sprintf("%s::id:<missing>", event)
}

// ParseRecords normalizes every line in raw and returns the decoded records
// alongside their canonical JSON text, in file order.
func ParseRecords(n Normalizer, raw []byte) ([]map[string]any, []string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	var records []map[string]any
	var lines []string
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		canon, err := n.Normalize(line)
		if err != nil {
			return nil, nil, fmt.Errorf("conform: parse line: %w", err)
		}
		var rec map[string]any
		if err := json.Unmarshal(canon, &rec); err != nil {
			return nil, nil, fmt.Errorf("conform: decode normalized line: %w", err)
		}
		records = append(records, rec)
		lines = append(lines, string(canon))
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("conform: scan: %w", err)
	}
	return records, lines, nil
}

// groupBy buckets normalized lines by their diff key, preserving arrival
// order within each bucket.
func groupBy(records []map[string]any, lines []string) map[string][]string {
	groups := make(map[string][]string)
	for i, rec := range records {
		key := DiffKey(rec)
		groups[key] = append(groups[key], lines[i])
	}
	return groups
}

// GroupDiff is one divergent group's unified diff.
type GroupDiff struct {
	Key  string
	Diff string
}

// Result is the outcome of comparing an expected trace against an actual
// one. Clean is true iff every group's lines match
// exactly, including count and order.
type Result struct {
	Clean bool
	Diffs []GroupDiff
}

// Compare normalizes and groups both traces, then produces a unified diff
// per group whose expected and actual lines do not match exactly.
func Compare(n Normalizer, expectedRaw, actualRaw []byte) (Result, error) {
	expRecords, expLines, err := ParseRecords(n, expectedRaw)
	if err != nil {
		return Result{}, fmt.Errorf("conform: parse expected: %w", err)
	}
	actRecords, actLines, err := ParseRecords(n, actualRaw)
	if err != nil {
		return Result{}, fmt.Errorf("conform: parse actual: %w", err)
	}

	expGroups := groupBy(expRecords, expLines)
	actGroups := groupBy(actRecords, actLines)

	keys := make(map[string]bool)
	for k := range expGroups {
		keys[k] = true
	}
	for k := range actGroups {
		keys[k] = true
	}

	result := Result{Clean: true}
	for key := range keys {
		exp := expGroups[key]
		act := actGroups[key]
		if linesEqual(exp, act) {
			continue
		}
		result.Clean = false
		diffText, err := unifiedDiff(key, exp, act)
		if err != nil {
			return Result{}, fmt.Errorf("conform: diff group %s: %w", key, err)
		}
		result.Diffs = append(result.Diffs, GroupDiff{Key: key, Diff: diffText})
	}
	return result, nil
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func unifiedDiff(key string, expected, actual []string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        withTrailingNewlines(expected),
		B:        withTrailingNewlines(actual),
		FromFile: "expected/" + key,
		ToFile:   "actual/" + key,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(text, "\n"), nil
}

func withTrailingNewlines(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
