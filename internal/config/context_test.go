package config

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestCorrelationIdContext(t *testing.T) {

	var TestCases = []struct {
		description string
		value       string
	}{
		{
			description: "test set and get id",
			value:       "abc-123456-123456",
		},
		{
			description: "test route value",
			value:       "POST /api/data",
		},
	}

	for _, tc := range TestCases {

		ctx := SetContextCorrelationId(context.Background(), tc.value)
		result := GetContextCorrelationId(ctx)

		if !strings.HasSuffix(result, "-"+tc.value) {
			t.Error(tc.description)
		}
		if len(result) != 8+1+len(tc.value) {
			t.Errorf("%s: unexpected id length %q", tc.description, result)
		}
	}
}

func TestAppendToCid(t *testing.T) {

	ctx := SetContextCorrelationId(context.Background(), "testId")
	if !strings.Contains(GetContextCorrelationId(ctx), "testId") {
		t.Error("initial cid")
	}

	ctx = AppendToContextCorrelationId(ctx, "someText")
	if !strings.Contains(GetContextCorrelationId(ctx), "testId-someText") {
		t.Error("appended cid")
	}
}

func TestNoCorrelationId(t *testing.T) {
	if got := GetContextCorrelationId(context.Background()); got != "no-id" {
		t.Errorf("expected no-id, got %q", got)
	}
	if got := GetContextTimeCreated(context.Background()); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func TestLoggerWritesSeverityAndCid(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	ctx := SetContextCorrelationId(context.Background(), "test")
	logger.Info(ctx, "hello")
	logger.Warn(ctx, "careful")
	logger.Error(ctx, "broken")

	out := buf.String()
	for _, want := range []string{"INFO", "WARN", "ERROR", "hello", "careful", "broken", GetContextCorrelationId(ctx)} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestLoggerDebugGated(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	logger.Debug(SetContextDebug(context.Background(), false), "hidden")
	if buf.Len() != 0 {
		t.Errorf("debug written with debug off: %q", buf.String())
	}

	logger.Debug(SetContextDebug(context.Background(), true), "shown")
	if !strings.Contains(buf.String(), "DEBUG") {
		t.Errorf("debug missing with debug on: %q", buf.String())
	}
}

func TestLogCollection(t *testing.T) {
	logger := NewLogger(nil)

	ctx := EnableLogCollection(SetContextCorrelationId(context.Background(), "collect"))
	logger.Info(ctx, "first")
	logger.Warn(ctx, "second")

	logs := CollectedLogs(ctx)
	if len(logs) != 2 {
		t.Fatalf("expected 2 collected logs, got %d", len(logs))
	}
	if logs[0].Severity != "INFO" || logs[1].Message != "second" {
		t.Errorf("unexpected collected logs: %+v", logs)
	}

	if logs := CollectedLogs(context.Background()); logs != nil {
		t.Errorf("expected no logs without collection, got %+v", logs)
	}
}
