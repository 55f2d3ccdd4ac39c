// Package parser loads Claude Code session logs and converts them into
// unified usage messages with costs attached from a pricing catalog.
package parser

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/tomhv/usagegraph/internal/model"
	"github.com/tomhv/usagegraph/internal/pricing"
	"golang.org/x/sync/errgroup"
)

const sourceName = "claude-code"

// rawMessage represents the raw JSON structure from Claude Code JSONL files
type rawMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		Model string `json:"model"`
		Usage struct {
			InputTokens              int64 `json:"input_tokens"`
			OutputTokens             int64 `json:"output_tokens"`
			CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
			CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// FindUsageFiles finds all JSONL files in the Claude projects directory.
func FindUsageFiles() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return findUsageFilesIn(filepath.Join(homeDir, ".claude", "projects"))
}

func findUsageFilesIn(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && filepath.Ext(path) == ".jsonl" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// ParseFile parses a single JSONL file into unified messages. Malformed lines
// are skipped; partial lines are expected in live session logs.
func ParseFile(path string, catalog *pricing.Catalog) ([]model.UnifiedMessage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var messages []model.UnifiedMessage
	scanner := bufio.NewScanner(file)

	// Increase buffer size for large lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw rawMessage
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}

		// Only assistant messages carry usage data.
		if raw.Type != "assistant" || raw.Message.Model == "" {
			continue
		}

		usage := raw.Message.Usage
		if usage.InputTokens == 0 && usage.OutputTokens == 0 {
			continue
		}

		ts, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			continue
		}
		utc := ts.UTC()

		tokens := model.TokenBreakdown{
			Input:      usage.InputTokens,
			Output:     usage.OutputTokens,
			CacheRead:  usage.CacheReadInputTokens,
			CacheWrite: usage.CacheCreationInputTokens,
		}

		messages = append(messages, model.UnifiedMessage{
			Source:     sourceName,
			ModelID:    raw.Message.Model,
			ProviderID: "anthropic",
			SessionID:  raw.SessionID,
			Timestamp:  utc.UnixMilli(),
			Date:       utc.Format("2006-01-02"),
			Tokens:     tokens,
			Cost:       catalog.CalculateCost(raw.Message.Model, tokens),
		})
	}

	return messages, scanner.Err()
}

// ParseAll parses every Claude Code JSONL file, fanning file parsing out over
// a bounded worker group. Per-file results land in fixed slots, so output is
// deterministic; file-level errors are skipped the way single bad lines are.
func ParseAll(catalog *pricing.Catalog) ([]model.UnifiedMessage, error) {
	files, err := FindUsageFiles()
	if err != nil {
		return nil, err
	}
	return parseFiles(files, catalog)
}

func parseFiles(files []string, catalog *pricing.Catalog) ([]model.UnifiedMessage, error) {
	results := make([][]model.UnifiedMessage, len(files))

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, path := range files {
		g.Go(func() error {
			messages, err := ParseFile(path, catalog)
			if err != nil {
				// Unreadable files don't abort the whole scan.
				return nil
			}
			results[i] = messages
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []model.UnifiedMessage
	for _, messages := range results {
		all = append(all, messages...)
	}
	return all, nil
}
