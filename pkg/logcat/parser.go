/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: parser.go
Description: Parser for `logcat -v threadtime` lines. Extracts timestamp, pid, tid,
level, tag and message with a single compiled pattern; lines that do not match the
grammar are reported as not parsed and never as an error.
*/

package logcat

import (
	"regexp"
	"strings"
)

// Level is a logcat priority letter
type Level string

const (
	LevelVerbose Level = "V"
	LevelDebug   Level = "D"
	LevelInfo    Level = "I"
	LevelWarn    Level = "W"
	LevelError   Level = "E"
	LevelFatal   Level = "F"
)

// String returns the level's long name
func (l Level) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// threadtime: "MM-DD HH:MM:SS.mmm  PID  TID L TAG: message"
// The tag may be right-padded before its colon; a tag containing ':' keeps
// everything up to the last colon before whitespace.
var threadtimePattern = regexp.MustCompile(
	`^\s*(\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}\.\d{3})\s+(\d+)\s+(\d+)\s+([VDIWEF])\s+(\S+)\s*:\s?(.*)$`,
)

// Entry is one parsed logcat line
type Entry struct {
	Timestamp string `json:"timestamp"`
	PID       string `json:"pid"`
	TID       string `json:"tid"`
	Level     Level  `json:"level"`
	Tag       string `json:"tag"`
	Message   string `json:"message"`
}

// Parse extracts the six threadtime fields from line. It returns false for
// anything that does not match the grammar.
func Parse(line string) (Entry, bool) {
	line = strings.TrimRight(line, "\r\n")
	m := threadtimePattern.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	return Entry{
		Timestamp: m[1],
		PID:       m[2],
		TID:       m[3],
		Level:     Level(m[4]),
		Tag:       m[5],
		Message:   m[6],
	}, true
}
