package syscall

import (
	"encoding/base64"
	"strings"
	"sync"
)

// MaxLogBytes bounds the total size of a transaction's log. Once reached a
// single truncation marker is recorded and further lines are dropped.
const MaxLogBytes = 10_000

const logTruncatedMarker = "Log truncated"

// LogCollector accumulates the log lines of one transaction.
type LogCollector struct {
	mu        sync.Mutex
	lines     []string
	bytes     int
	truncated bool
}

// NewLogCollector creates an empty collector.
func NewLogCollector() *LogCollector {
	return &LogCollector{lines: make([]string, 0, 32)}
}

// Append records a line unless the byte limit has been reached.
func (c *LogCollector) Append(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.truncated {
		return
	}
	if c.bytes+len(line) > MaxLogBytes {
		c.truncated = true
		c.lines = append(c.lines, logTruncatedMarker)
		return
	}
	c.bytes += len(line)
	c.lines = append(c.lines, line)
}

// Lines returns a copy of the recorded lines.
func (c *LogCollector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Truncated reports whether lines were dropped.
func (c *LogCollector) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}

// LogData records binary event payloads as a "Program data:" line with
// base64 encoded fields, the format indexers already understand.
func (ctx *ExecutionContext) LogData(fields ...[]byte) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = base64.StdEncoding.EncodeToString(f)
	}
	ctx.AddLog("Program data: " + strings.Join(parts, " "))
}
