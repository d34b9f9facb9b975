package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type (
	CorrelationContextKey   string
	DebugContextKey         string
	TimeCreatedContextKey   string
	LogCollectionContextKey string
	CollectedLogsContextKey string
)

type CollectedLog struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	CID       string    `json:"correlation_id"`
	ElapsedMs float64   `json:"elapsed_ms"`
}

// collectedLogs is shared by every context derived from the one passed
// to EnableLogCollection. Handlers may log from more than one goroutine.
type collectedLogs struct {
	mu   sync.Mutex
	logs []CollectedLog
}

// SetContextCorrelationId stamps ctx with a fresh correlation id of the
// form <8 chars>-<value>.
func SetContextCorrelationId(ctx context.Context, value string) context.Context {

	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	newctx := context.WithValue(ctx, CorrelationContextKey("cid"), fmt.Sprintf("%s-%s", id, value))

	// if the created time is unset then set it. test for -1 as 0 could be
	// a symptom of a default unset value
	t := GetContextTimeCreated(ctx)
	if t == -1 {
		newctx = context.WithValue(
			newctx,
			TimeCreatedContextKey("timeCreated"),
			time.Now().UnixMilli())
	}

	newctx = context.WithValue(newctx, DebugContextKey("debug"), BoolValue("MONITOR_DEBUG"))

	return newctx
}

// GetContextTimeCreated returns the creation time in unix milliseconds,
// or -1 when unset.
func GetContextTimeCreated(ctx context.Context) int64 {

	key := TimeCreatedContextKey("timeCreated")

	if v := ctx.Value(key); v != nil {
		return v.(int64)
	}
	return -1
}

func AppendToContextCorrelationId(ctx context.Context, value string) context.Context {
	key := CorrelationContextKey("cid")
	id := GetContextCorrelationId(ctx)
	newctx := context.WithValue(ctx, key, id+"-"+value)
	return newctx
}

func GetContextCorrelationId(ctx context.Context) string {

	key := CorrelationContextKey("cid")

	if v := ctx.Value(key); v != nil {
		return v.(string)
	}

	return "no-id"
}

func GetContextDebug(ctx context.Context) bool {

	key := DebugContextKey("debug")

	if v := ctx.Value(key); v != nil {
		return v.(bool)
	}

	return false
}

// SetContextDebug forces debug logging on or off for ctx.
func SetContextDebug(ctx context.Context, debug bool) context.Context {
	return context.WithValue(ctx, DebugContextKey("debug"), debug)
}

// Log Collection Functions
func EnableLogCollection(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, LogCollectionContextKey("collect"), true)
	ctx = context.WithValue(ctx, CollectedLogsContextKey("logs"), &collectedLogs{})
	return ctx
}

func IsLogCollectionEnabled(ctx context.Context) bool {
	if v := ctx.Value(LogCollectionContextKey("collect")); v != nil {
		return v.(bool)
	}
	return false
}

// CollectedLogs returns a copy of the entries collected so far.
func CollectedLogs(ctx context.Context) []CollectedLog {
	if v := ctx.Value(CollectedLogsContextKey("logs")); v != nil {
		c := v.(*collectedLogs)
		c.mu.Lock()
		defer c.mu.Unlock()
		return append([]CollectedLog(nil), c.logs...)
	}
	return nil
}

func collect(ctx context.Context, entry CollectedLog) {
	if v := ctx.Value(CollectedLogsContextKey("logs")); v != nil {
		c := v.(*collectedLogs)
		c.mu.Lock()
		c.logs = append(c.logs, entry)
		c.mu.Unlock()
	}
}
