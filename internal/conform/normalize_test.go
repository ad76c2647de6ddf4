package conform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeReplacesTimestampAndDynamicIDs(t *testing.T) {
	line := []byte(`{"schema":"v1","ts":"2026-07-30T10:00:00Z","level":"info","event":"tool_call","message":"ran","correlation":{"session_id":"sess-123","tool_call_id":"call-1"},"source":{"host":"box1","pid":4242}}`)

	out, err := (Normalizer{}).Normalize(line)
	require.NoError(t, err)
	require.Contains(t, string(out), `"ts":"<ts>"`)
	require.Contains(t, string(out), `"session_id":"<id>"`)
	require.Contains(t, string(out), `"tool_call_id":"call-1"`)
	require.Contains(t, string(out), `"host":"<host>"`)
	require.Contains(t, string(out), `"pid":0`)
}

func TestNormalizeStripsANSIAndFoldsCWD(t *testing.T) {
	line := []byte("{\"schema\":\"v1\",\"ts\":\"x\",\"level\":\"info\",\"event\":\"e\",\"message\":\"\\u001b[31mred /home/user/proj/file.go\\u001b[0m\",\"correlation\":{}}")
	out, err := (Normalizer{CWD: "/home/user/proj"}).Normalize(line)
	require.NoError(t, err)
	require.Contains(t, string(out), "red <cwd>/file.go")
	require.NotContains(t, string(out), "\x1b[")
}

func TestDiffKeyPrefersToolCallID(t *testing.T) {
	rec := map[string]any{
		"event":       "tool_call",
		"correlation": map[string]any{"tool_call_id": "call-1", "scenario_id": "scn-1"},
	}
	require.Equal(t, "tool_call::tool_call_id:call-1", DiffKey(rec))
}

func TestDiffKeyFallsBackToMissing(t *testing.T) {
	rec := map[string]any{"event": "startup"}
	require.Equal(t, "startup::id:<missing>", DiffKey(rec))
}

func TestCompareCleanWhenIdentical(t *testing.T) {
	trace := []byte(`{"schema":"v1","ts":"t1","level":"info","event":"startup","message":"m","correlation":{}}` + "\n")
	result, err := Compare(Normalizer{}, trace, trace)
	require.NoError(t, err)
	require.True(t, result.Clean)
	require.Empty(t, result.Diffs)
}

func TestCompareReportsDivergentGroup(t *testing.T) {
	expected := []byte(`{"schema":"v1","ts":"t1","level":"info","event":"tool_call","message":"a","correlation":{"tool_call_id":"c1"}}` + "\n")
	actual := []byte(`{"schema":"v1","ts":"t1","level":"info","event":"tool_call","message":"b","correlation":{"tool_call_id":"c1"}}` + "\n")
	result, err := Compare(Normalizer{}, expected, actual)
	require.NoError(t, err)
	require.False(t, result.Clean)
	require.Len(t, result.Diffs, 1)
	require.Equal(t, "tool_call::tool_call_id:c1", result.Diffs[0].Key)
	require.Contains(t, result.Diffs[0].Diff, "-")
	require.Contains(t, result.Diffs[0].Diff, "+")
}
