/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: enumerator.go
Description: Device enumeration over adb. Lists attached devices, then queries model,
OS version and SDK version for each serial. Property failures are tolerated per field
and replaced by a sentinel so one flaky query never hides a device.
*/

package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kleascm/akaylee-logcat/pkg/adb"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/iter"
)

// Unknown is substituted for any property that could not be read
const Unknown = "Unknown"

const headerPrefix = "List of devices"

// maxLineSize caps a single line of `adb devices` output
const maxLineSize = 64 * 1024

// Descriptor describes one attached device
type Descriptor struct {
	Serial     string `json:"serial"`
	Model      string `json:"model"`
	OSVersion  string `json:"android_version"`
	SDKVersion string `json:"sdk_version"`
}

// Enumerator discovers attached devices
type Enumerator struct {
	runner adb.Runner
	logger *logrus.Logger
}

// NewEnumerator creates an enumerator. A nil logger discards output.
func NewEnumerator(runner adb.Runner, logger *logrus.Logger) *Enumerator {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Enumerator{runner: runner, logger: logger}
}

// ListDevices returns one descriptor per attached device, in the order the
// tool reported them. Only a failure of the listing itself is an error.
func (e *Enumerator) ListDevices(ctx context.Context) ([]Descriptor, error) {
	output, err := e.runner.Run(ctx, adb.DevicesArgs()...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	serials, err := ParseDevices(string(output))
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	e.logger.WithField("count", len(serials)).Debug("Devices listed")

	return iter.Map(serials, func(serial *string) Descriptor {
		return e.Describe(ctx, *serial)
	}), nil
}

// Describe builds the descriptor for a single serial
func (e *Enumerator) Describe(ctx context.Context, serial string) Descriptor {
	return Descriptor{
		Serial:     serial,
		Model:      e.prop(ctx, serial, adb.PropModel),
		OSVersion:  e.prop(ctx, serial, adb.PropOSVersion),
		SDKVersion: e.prop(ctx, serial, adb.PropSDK),
	}
}

// prop reads one property, falling back to Unknown on failure or empty output
func (e *Enumerator) prop(ctx context.Context, serial, key string) string {
	output, err := e.runner.Run(ctx, adb.GetpropArgs(serial, key)...)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"serial": serial,
			"key":    key,
		}).WithError(err).Warn("Property query failed")
		return Unknown
	}
	value := strings.TrimSpace(string(output))
	if value == "" {
		return Unknown
	}
	return value
}

// ParseDevices extracts serials from `adb devices` output. A line qualifies
// when it ends with the literal "device" and is not the header.
func ParseDevices(output string) ([]string, error) {
	var serials []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r \t")
		if strings.HasPrefix(line, headerPrefix) || !strings.HasSuffix(line, "device") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		serials = append(serials, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse devices output: %w", err)
	}
	return serials, nil
}
