package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomhv/usagegraph/internal/model"
	"github.com/tomhv/usagegraph/internal/pricing"
)

const sampleJSONL = `{"type":"assistant","sessionId":"abc-123","timestamp":"2024-06-01T12:30:00Z","message":{"model":"claude-3-5-sonnet-20241022","usage":{"input_tokens":1000,"output_tokens":500,"cache_creation_input_tokens":100,"cache_read_input_tokens":2000}}}
{"type":"user","sessionId":"abc-123","timestamp":"2024-06-01T12:30:05Z"}
not json at all
{"type":"assistant","sessionId":"abc-123","timestamp":"2024-06-01T12:31:00Z","message":{"model":"claude-3-5-sonnet-20241022","usage":{"input_tokens":0,"output_tokens":0}}}
{"type":"assistant","sessionId":"abc-123","timestamp":"bad-timestamp","message":{"model":"claude-3-5-sonnet-20241022","usage":{"input_tokens":10,"output_tokens":5}}}
{"type":"assistant","sessionId":"def-456","timestamp":"2024-06-02T01:00:00Z","message":{"model":"unknown-model-xyzzy","usage":{"input_tokens":42,"output_tokens":7}}}
`

func testCatalog() *pricing.Catalog {
	return pricing.New(map[string]model.ModelPricing{
		"claude-3-5-sonnet-20241022": {
			InputCostPerToken:         3e-06,
			OutputCostPerToken:        1.5e-05,
			CacheReadCostPerToken:     3e-07,
			CacheCreationCostPerToken: 3.75e-06,
		},
	})
}

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "session.jsonl", sampleJSONL)

	messages, err := ParseFile(path, testCatalog())
	require.NoError(t, err)

	// Non-assistant, malformed, zero-usage and bad-timestamp lines are skipped.
	require.Len(t, messages, 2)

	first := messages[0]
	assert.Equal(t, "claude-code", first.Source)
	assert.Equal(t, "anthropic", first.ProviderID)
	assert.Equal(t, "abc-123", first.SessionID)
	assert.Equal(t, "claude-3-5-sonnet-20241022", first.ModelID)
	assert.Equal(t, "2024-06-01", first.Date)
	assert.Equal(t, int64(1717245000000), first.Timestamp)
	assert.Equal(t, model.TokenBreakdown{Input: 1000, Output: 500, CacheRead: 2000, CacheWrite: 100}, first.Tokens)
	assert.InDelta(t, 0.011475, first.Cost, 1e-6)

	// Unknown model soft-fails to zero cost but keeps the usage event.
	assert.Equal(t, "unknown-model-xyzzy", messages[1].ModelID)
	assert.Zero(t, messages[1].Cost)
}

func TestParseFilesConcurrent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "proj-a"), 0o755))
	writeLog(t, filepath.Join(dir, "proj-a"), "one.jsonl", sampleJSONL)
	writeLog(t, dir, "two.jsonl", sampleJSONL)
	writeLog(t, dir, "ignored.txt", "nope")

	files, err := findUsageFilesIn(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	messages, err := parseFiles(files, testCatalog())
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}
