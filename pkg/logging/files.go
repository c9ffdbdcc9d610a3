/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: files.go
Description: Log file management for akaylee-logcat. Names timestamped log files, rotates
the active file once it exceeds the size limit, optionally gzips rotated files and prunes
the oldest files beyond the retention count.
*/

package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogManager applies naming, rotation and retention to a log directory
type LogManager struct {
	logDir   string
	maxFiles int
	maxSize  int64
	compress bool

	mu     sync.Mutex
	stamp  string
	seq    int
	active string
}

// NewLogManager creates a new log manager
func NewLogManager(logDir string, maxFiles int, maxSize int64, compress bool) *LogManager {
	return &LogManager{
		logDir:   logDir,
		maxFiles: maxFiles,
		maxSize:  maxSize,
		compress: compress,
		stamp:    time.Now().Format("2006-01-02_15-04-05"),
	}
}

// files returns every log file in the directory, oldest first. Names embed
// their creation time and sequence so lexical order is chronological.
func (lm *LogManager) files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(lm.logDir, filePrefix+"_*.log*"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// nextPath returns a path for a new log file and marks it active. The
// sequence only moves forward, so a name freed by retention is never reused.
func (lm *LogManager) nextPath() string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for {
		path := filepath.Join(lm.logDir, fmt.Sprintf("%s_%s_%06d.log", filePrefix, lm.stamp, lm.seq))
		lm.seq++
		if exists(path) || exists(path+".gz") {
			continue
		}
		lm.active = path
		return path
	}
}

// release clears the active path once its file is closed
func (lm *LogManager) release(path string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.active == path {
		lm.active = ""
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// archive finalises a rotated file, compressing it when enabled
func (lm *LogManager) archive(path string) error {
	if !lm.compress {
		return nil
	}
	return lm.compressFile(path)
}

// compressFile compresses a log file using gzip and removes the original
func (lm *LogManager) compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	compressed, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer compressed.Close()

	gzipWriter := gzip.NewWriter(compressed)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		gzipWriter.Close()
		return err
	}
	if err := gzipWriter.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// CleanupOldLogs removes the oldest files beyond the retention count. The
// file currently being written is never removed.
func (lm *LogManager) CleanupOldLogs() error {
	files, err := lm.files()
	if err != nil {
		return err
	}

	lm.mu.Lock()
	active := lm.active
	lm.mu.Unlock()

	excess := len(files) - lm.maxFiles
	for _, file := range files {
		if excess <= 0 {
			break
		}
		if file == active {
			continue
		}
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to remove file %s: %w", file, err)
		}
		excess--
	}
	return nil
}

// GetLogStats returns statistics about log files
func (lm *LogManager) GetLogStats() (*LogStats, error) {
	files, err := lm.files()
	if err != nil {
		return nil, err
	}

	stats := &LogStats{TotalFiles: len(files)}
	for _, file := range files {
		stat, err := os.Stat(file)
		if err != nil {
			continue
		}

		stats.TotalSize += stat.Size()
		if stats.OldestFile.IsZero() || stat.ModTime().Before(stats.OldestFile) {
			stats.OldestFile = stat.ModTime()
		}
		if stat.ModTime().After(stats.NewestFile) {
			stats.NewestFile = stat.ModTime()
		}

		if strings.HasSuffix(file, ".gz") {
			stats.CompressedFiles++
		} else {
			stats.UncompressedFiles++
		}
	}

	return stats, nil
}

// LogStats holds statistics about log files
type LogStats struct {
	TotalFiles        int       `json:"total_files"`
	TotalSize         int64     `json:"total_size"`
	CompressedFiles   int       `json:"compressed_files"`
	UncompressedFiles int       `json:"uncompressed_files"`
	OldestFile        time.Time `json:"oldest_file"`
	NewestFile        time.Time `json:"newest_file"`
}

// rotatingFile is the active log file. A write that would push it past the
// size limit first moves output to a fresh file.
type rotatingFile struct {
	mu      sync.Mutex
	manager *LogManager
	file    *os.File
	path    string
	size    int64
}

func openRotatingFile(manager *LogManager) (*rotatingFile, error) {
	if err := os.MkdirAll(manager.logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	r := &rotatingFile{manager: manager}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	file, path, err := r.create()
	if err != nil {
		return err
	}
	r.file = file
	r.path = path
	r.size = 0
	return nil
}

func (r *rotatingFile) create() (*os.File, string, error) {
	path := r.manager.nextPath()
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		r.manager.release(path)
		return nil, "", fmt.Errorf("failed to open log file: %w", err)
	}
	return file, path, nil
}

// rotate switches output to a fresh file before touching the old one, so a
// failed archive or cleanup never leaves the writer without a file
func (r *rotatingFile) rotate() error {
	file, path, err := r.create()
	if err != nil {
		return err
	}
	old, oldPath := r.file, r.path
	r.file, r.path, r.size = file, path, 0

	if err := old.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", oldPath, err)
	}
	if err := r.manager.archive(oldPath); err != nil {
		return fmt.Errorf("failed to archive %s: %w", oldPath, err)
	}
	return r.manager.CleanupOldLogs()
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, os.ErrClosed
	}
	var rotateErr error
	if r.size > 0 && r.size+int64(len(p)) > r.manager.maxSize {
		rotateErr = r.rotate()
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	if err != nil {
		return n, err
	}
	return n, rotateErr
}

// Path returns the active file's path
func (r *rotatingFile) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.manager.release(r.path)
	return err
}
