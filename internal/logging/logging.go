// Package logging is the process-wide leveled logger. Messages go to stderr
// and, when configured, to a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level gates which messages are emitted.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu     sync.Mutex
	level  = LevelInfo
	logger = log.New(os.Stderr, "", log.LstdFlags)
	file   *lumberjack.Logger
)

// SetLevel adjusts the minimum emitted level.
func SetLevel(l Level) {
	mu.Lock()
	level = l
	mu.Unlock()
}

// SetVerbose is shorthand for enabling debug output.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(LevelDebug)
	} else {
		SetLevel(LevelInfo)
	}
}

// SetFile mirrors output into a rotated log file alongside stderr.
func SetFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	file = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, file))
}

// SetOutput replaces the destination entirely. Tests use this to capture
// output.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger.SetOutput(w)
	mu.Unlock()
}

func emit(l Level, prefix, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}
	logger.Printf("%s%s", prefix, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) { emit(LevelDebug, "DEBUG: ", format, args...) }
func Infof(format string, args ...any)  { emit(LevelInfo, "", format, args...) }
func Warnf(format string, args ...any)  { emit(LevelWarn, "WARN: ", format, args...) }
func Errorf(format string, args ...any) { emit(LevelError, "ERROR: ", format, args...) }
