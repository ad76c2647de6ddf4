package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordHostcallTracksTotalsAndByOp(t *testing.T) {
	m := &Metrics{}
	m.RecordHostcall("events.sendMessage", false)
	m.RecordHostcall("events.sendMessage", true)
	m.RecordHostcall("session.appendEntry", false)

	require.EqualValues(t, 3, m.HostcallsTotal.Load())
	require.EqualValues(t, 1, m.HostcallsFailed.Load())

	snap := m.Snapshot()
	byOp := snap["hostcalls"].(map[string]interface{})["by_op"].(map[string]interface{})
	sendMsg := byOp["events.sendMessage"].(map[string]interface{})
	require.EqualValues(t, 2, sendMsg["total"])
	require.EqualValues(t, 1, sendMsg["failed"])
}

func TestRecordEventDispatchTracksLatency(t *testing.T) {
	m := &Metrics{}
	m.DispatchLatencyMinMs.Store(int64(^uint64(0) >> 1))

	m.RecordEventDispatch("message", 10)
	m.RecordEventDispatch("message", 20)
	m.RecordEventDispatch("tool_call", 5)

	require.EqualValues(t, 3, m.EventsDispatched.Load())
	require.EqualValues(t, 5, m.DispatchLatencyMinMs.Load())
	require.EqualValues(t, 20, m.DispatchLatencyMaxMs.Load())

	snap := m.Snapshot()
	byName := snap["events"].(map[string]interface{})["by_name"].(map[string]int64)
	require.EqualValues(t, 2, byName["message"])
	require.EqualValues(t, 1, byName["tool_call"])
}

func TestRecordVFSOpAndSessionAppend(t *testing.T) {
	m := &Metrics{}
	m.RecordVFSOp("read")
	m.RecordVFSOp("read")
	m.RecordVFSOp("write")
	m.RecordSessionAppend(128)
	m.RecordSessionAppend(256)

	require.EqualValues(t, 3, m.VFSOpsTotal.Load())
	require.EqualValues(t, 2, m.SessionAppends.Load())
	require.EqualValues(t, 384, m.SessionAppendBytes.Load())

	snap := m.Snapshot()
	vfsByKind := snap["vfs"].(map[string]interface{})["by_kind"].(map[string]int64)
	require.EqualValues(t, 2, vfsByKind["read"])
	require.EqualValues(t, 1, vfsByKind["write"])
}
