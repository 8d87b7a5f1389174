package daemon

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func parseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// LevelVar is a log threshold shared by every component so a config reload can change it
// while the control loop runs.
type LevelVar struct {
	v atomic.Int32
}

func NewLevelVar(l LogLevel) *LevelVar {
	lv := &LevelVar{}
	lv.Set(l)
	return lv
}

func (lv *LevelVar) Level() LogLevel { return LogLevel(lv.v.Load()) }

func (lv *LevelVar) Set(l LogLevel) { lv.v.Store(int32(l)) }

// logLine writes one "RFC3339 LEVEL component: message" line when level passes threshold.
func logLine(logger *log.Logger, threshold *LevelVar, level LogLevel, component, format string, args ...any) {
	if logger == nil || level < threshold.Level() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	logger.Printf("%s %s %s: %s", time.Now().Format(time.RFC3339), level, component, msg)
}
