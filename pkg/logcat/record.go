/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: record.go
Description: Enriched records and the consumer-facing events that carry them.
*/

package logcat

import "time"

// Record is a parsed entry joined with the package owning its PID.
// Package is empty when the PID could not be resolved.
type Record struct {
	Entry
	Serial  string `json:"serial"`
	Package string `json:"package"`
}

// Enrich joins an entry with its resolved package
func Enrich(serial string, entry Entry, pkg string) Record {
	return Record{Entry: entry, Serial: serial, Package: pkg}
}

// EventName is the consumer-facing channel an event is published on
type EventName string

const (
	// EventLogLine carries one enriched record
	EventLogLine EventName = "log-line"
	// EventLogError carries a fatal, human-readable session error
	EventLogError EventName = "log-error"
)

// Event is a single emission from a session
type Event struct {
	Name      EventName `json:"event"`
	SessionID string    `json:"session_id"`
	Serial    string    `json:"serial"`
	Time      time.Time `json:"time"`
	Record    *Record   `json:"record,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// IsError reports whether the event is a terminal error
func (e Event) IsError() bool { return e.Name == EventLogError }
