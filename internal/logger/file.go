package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultLogPath   = "logs/email-queue.log"
	defaultMaxSizeMB = 100
	defaultMaxFiles  = 5
)

// FileConfig configures the rotating log file.
type FileConfig struct {
	Path      string
	MaxSizeMB int
	// MaxFiles is the number of rotated files kept, compressed.
	MaxFiles int
}

// NewFileWriter returns a size-rotated log file writer. Zero fields take
// the defaults: logs/email-queue.log, 100 MB, 5 files.
func NewFileWriter(cfg FileConfig) io.Writer {
	if cfg.Path == "" {
		cfg.Path = defaultLogPath
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultMaxFiles
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   true,
	}
}
