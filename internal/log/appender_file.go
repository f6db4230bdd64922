package log

import (
	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/netcarve/internal/config"
)

// AddFileAppender appends a size-rotated log file.
func (m *MultiWriter) AddFileAppender(opt config.FileOutputConfig) *MultiWriter {
	writer := &lumberjack.Logger{
		Filename:   opt.Path,
		MaxSize:    opt.Rotation.MaxSizeMB,  // megabytes
		MaxBackups: opt.Rotation.MaxBackups, // number of backups
		MaxAge:     opt.Rotation.MaxAgeDays, // days
		Compress:   opt.Rotation.Compress,   // compress the backups
	}
	m.writers = append(m.writers, writer)
	m.closers = append(m.closers, writer)
	return m
}
