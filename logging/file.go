package logging

import (
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileAppender writes console formatted log lines to a size-rotated file.
type FileAppender struct {
	*ConsoleAppender
	file *lumberjack.Logger
}

// NewFileAppender creates an appender writing to path. The file is rotated once it reaches
// maxSizeMB megabytes and the two most recent backups are kept compressed.
func NewFileAppender(path string, maxSizeMB int) *FileAppender {
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 2,
		Compress:   true,
	}
	return &FileAppender{ConsoleAppender: NewWriterAppender(file), file: file}
}

// Sync is a noop; lumberjack does not buffer.
func (fa *FileAppender) Sync() error {
	return nil
}

// Close closes the current log file.
func (fa *FileAppender) Close() error {
	return fa.file.Close()
}
