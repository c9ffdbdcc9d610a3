/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: stats_writer.go
Description: Writes end-of-session statistics to the stats directory as indented JSON,
one file per session, named by time, device serial and session id.
*/

package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kleascm/akaylee-logcat/pkg/logcat"
)

// WriteSessionStats writes stats under dir/sessions and returns the file path
func WriteSessionStats(dir string, stats logcat.SessionStats) (string, error) {
	statsDir := filepath.Join(dir, "sessions")
	if err := os.MkdirAll(statsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create stats directory: %w", err)
	}

	// 2024-06-11_01-30-00_emulator-5554_0f4c1a52.json
	ended := stats.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	id := stats.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	filename := fmt.Sprintf("%s_%s_%s.json", ended.Format("2006-01-02_15-04-05"), SafeName(stats.Serial), id)
	filePath := filepath.Join(statsDir, filename)

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write stats file: %w", err)
	}

	return filePath, nil
}

// SafeName maps a device serial to a file-name-safe string. Network serials
// such as 192.168.1.20:5555 contain characters some filesystems reject.
func SafeName(serial string) string {
	if serial == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, serial)
}
