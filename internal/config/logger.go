package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger writes severity-tagged lines carrying the context correlation
// id. Handlers receive one at construction; nothing writes to a
// hardcoded destination.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
}

// NewLogger returns a Logger writing to out. A nil out discards.
func NewLogger(out io.Writer) *Logger {
	if out == nil {
		out = io.Discard
	}
	return &Logger{out: out}
}

var std = NewLogger(os.Stdout)

// Default returns the process-wide logger used at startup.
func Default() *Logger {
	return std
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.write(ctx, "INFO", msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	l.write(ctx, "WARN", msg)
}

func (l *Logger) Error(ctx context.Context, msg string) {
	l.write(ctx, "ERROR", msg)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	if GetContextDebug(ctx) {
		l.write(ctx, "DEBUG", msg)
	}
}

// Public methods
func LogInfo(ctx context.Context, msg string) {
	std.Info(ctx, msg)
}

func LogDebug(ctx context.Context, msg string) {
	std.Debug(ctx, msg)
}

// Private methods
func (l *Logger) write(ctx context.Context, severity string, msg string) {

	l.mu.Lock()
	fmt.Fprintf(l.out, "%s (monitor) %s +%s [%s] %s\n",
		time.Now().UTC().Format("2006/01/02 15:04:05"),
		severity,
		sinceCreated(ctx),
		GetContextCorrelationId(ctx),
		msg)
	l.mu.Unlock()

	// Additionally collect if enabled
	if IsLogCollectionEnabled(ctx) {
		collect(ctx, CollectedLog{
			Timestamp: time.Now().UTC(),
			Severity:  severity,
			Message:   msg,
			CID:       GetContextCorrelationId(ctx),
			ElapsedMs: elapsedMs(ctx),
		})
	}
}

func elapsedMs(ctx context.Context) float64 {
	created := GetContextTimeCreated(ctx)
	if created == -1 {
		return 0
	}
	return float64(time.Now().UnixMilli() - created)
}

func sinceCreated(ctx context.Context) string {
	return fmt.Sprintf("%.1fs", elapsedMs(ctx)/1000)
}
