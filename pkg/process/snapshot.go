/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: snapshot.go
Description: Process table snapshots taken with `adb shell ps`. Parses the columnar
listing (USER PID PPID VSZ RSS WCHAN ADDR S NAME) into a PID to package-name table.
*/

package process

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/kleascm/akaylee-logcat/pkg/adb"
)

const (
	minFields = 9
	pidField  = 1
	nameField = 8

	// maxLineSize caps a single ps row
	maxLineSize = 1024 * 1024
)

// Table maps a PID to the package (process) name owning it
type Table map[string]string

// Lookup returns the package for pid and whether it was present
func (t Table) Lookup(pid string) (string, bool) {
	pkg, ok := t[pid]
	return pkg, ok
}

// Source produces fresh process tables for a device
type Source interface {
	Snapshot(ctx context.Context, serial string) (Table, error)
}

// Snapshotter takes process tables with `adb -s <serial> shell ps`
type Snapshotter struct {
	runner adb.Runner
	psArgs []string
}

// NewSnapshotter creates a snapshotter. psArgs are appended to ps.
func NewSnapshotter(runner adb.Runner, psArgs ...string) *Snapshotter {
	return &Snapshotter{runner: runner, psArgs: psArgs}
}

// Snapshot runs ps on serial and parses the result. There is no cached
// fallback here; a failing tool is the caller's problem.
func (s *Snapshotter) Snapshot(ctx context.Context, serial string) (Table, error) {
	output, err := s.runner.Run(ctx, adb.PSArgs(serial, s.psArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", serial, err)
	}
	table, err := ParseTable(string(output))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", serial, err)
	}
	return table, nil
}

// ParseTable parses ps output. The first line is the header; rows with fewer
// than nine fields are skipped. A row too long to scan fails the whole table
// rather than returning a truncated one.
func ParseTable(output string) (Table, error) {
	table := make(Table)
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < minFields {
			continue
		}
		table[fields[pidField]] = fields[nameField]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse ps output: %w", err)
	}
	return table, nil
}
