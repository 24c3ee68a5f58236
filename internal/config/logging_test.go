package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLog(t *testing.T) {
	// Just verify it doesn't panic
	s := &Settings{
		Transport: "sse",
		Host:      "localhost",
		Port:      8080,
	}
	Log(s) // Should not panic
}

func TestLogWithLogger_StdioTransport(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := &Settings{
		Transport: "stdio",
		Host:      "localhost",
		Port:      8080,
		Corpus:    CorpusSettings{Path: "snippets.jsonl"},
	}

	LogWithLogger(s, logger)

	output := buf.String()
	if !strings.Contains(output, "transport") {
		t.Error("Expected 'transport' in log output")
	}
	if !strings.Contains(output, "snippets.jsonl") {
		t.Error("Expected corpus path in log output")
	}
	// stdio transport should not log host/port
	if strings.Contains(output, "host") {
		t.Error("Expected no 'host' in log output for stdio transport")
	}
}

func TestLogWithLogger_SSETransport(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := &Settings{
		Transport: "sse",
		Host:      "localhost",
		Port:      8080,
	}

	LogWithLogger(s, logger)

	output := buf.String()
	if !strings.Contains(output, "host") {
		t.Error("Expected 'host' in log output for SSE transport")
	}
	if !strings.Contains(output, "port") {
		t.Error("Expected 'port' in log output for SSE transport")
	}
}

func TestLogWithLogger_ExplainKeyMasked(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := &Settings{
		Transport: "stdio",
		Explain: ExplainSettings{
			APIKey:  "sk-secret",
			BaseURL: "https://example.test/v1",
			Model:   "some-model",
		},
	}

	LogWithLogger(s, logger)

	output := buf.String()
	if !strings.Contains(output, "****") {
		t.Error("Expected masked API key in log output")
	}
	if strings.Contains(output, "sk-secret") {
		t.Error("API key should be masked, not shown in plain text")
	}
	if !strings.Contains(output, "some-model") {
		t.Error("Expected explain model in log output")
	}
}

func TestLogWithLogger_ExplainDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LogWithLogger(&Settings{Transport: "stdio", Explain: ExplainSettings{Model: "hidden-model"}}, logger)

	output := buf.String()
	if !strings.Contains(output, `explain.enabled" value=false`) {
		t.Errorf("Expected explain disabled in log output, got: %s", output)
	}
	if strings.Contains(output, "hidden-model") {
		t.Error("Explain details should not be logged when disabled")
	}
}

func TestSettingsLogValue(t *testing.T) {
	s := Settings{
		Transport: "sse",
		Host:      "localhost",
		Port:      8080,
		Explain:   ExplainSettings{APIKey: "sk-secret"},
	}

	val := SettingsLogValue(s)
	if val.Kind() != slog.KindGroup {
		t.Errorf("Expected group kind, got %v", val.Kind())
	}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("settings", "settings", val)
	if strings.Contains(buf.String(), "sk-secret") {
		t.Error("API key should be masked")
	}
}

func TestExplainSettingsLogValue(t *testing.T) {
	val := ExplainSettingsLogValue(ExplainSettings{})
	if val.Kind() != slog.KindGroup {
		t.Errorf("Expected group kind, got %v", val.Kind())
	}
	for _, attr := range val.Group() {
		if attr.Key == "api_key" && attr.Value.String() != "" {
			t.Errorf("Expected empty api_key for unset key, got %q", attr.Value.String())
		}
	}
}
