// Package logging routes the standard logger to a rotating file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup sends log output to path, rotated by size, and also to stderr.
// With an empty path the standard logger is left alone. The returned
// closer flushes the file.
func Setup(path string) io.Closer {
	if path == "" {
		return io.NopCloser(nil)
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator
}
