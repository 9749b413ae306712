package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLogger_WritesHeaderAndMessages(t *testing.T) {
	dir := t.TempDir()

	sl, err := StartSessionLogging(dir, "sess-42")
	require.NoError(t, err)

	sl.Log("comparing %d objects", 7)
	sl.LogConflict("cf-1", "data_type_change", "high", "column amount type changed")
	sl.LogResolution("cf-1", "auto-type-conversion", "source_wins")
	sl.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, "Session ID: sess-42")
	assert.Contains(t, text, "comparing 7 objects")
	assert.Contains(t, text, "CONFLICT cf-1 [data_type_change/high]")
	assert.Contains(t, text, "RESOLUTION for cf-1: strategy=auto-type-conversion decision=source_wins")
	assert.Contains(t, text, "Session logging completed")
}

func TestSessionLogger_ScriptFraming(t *testing.T) {
	dir := t.TempDir()

	sl, err := StartSessionLogging(dir, "sess-script")
	require.NoError(t, err)

	sl.LogScript("ALTER TABLE public.orders ALTER COLUMN amount TYPE numeric(12,2);")
	sl.Close()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, "GENERATED SCRIPT")
	assert.Contains(t, text, "ALTER TABLE public.orders ALTER COLUMN amount TYPE numeric(12,2);")
	assert.Contains(t, text, "--- SCRIPT END ---")
}

type captureSink struct {
	levels   []string
	messages []string
}

func (c *captureSink) Emit(sessionID, level, message string) {
	c.levels = append(c.levels, level)
	c.messages = append(c.messages, message)
}

func TestSessionLogger_EventSink(t *testing.T) {
	sl, err := StartSessionLogging(t.TempDir(), "sess-sink")
	require.NoError(t, err)
	defer sl.Close()

	sink := &captureSink{}
	sl.SetEventSink(sink)

	sl.Log("resolving conflicts")
	sl.LogError("auto-resolve", assert.AnError)

	require.Len(t, sink.messages, 2)
	assert.Equal(t, "info", sink.levels[0])
	assert.Equal(t, "error", sink.levels[1])
}

func TestSessionLogger_NilSafe(t *testing.T) {
	var sl *SessionLogger
	sl.Log("should not panic")
	sl.LogSection("noop")
	sl.Close()
}
