/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: devices.go
Description: The devices and ps commands. Lists attached devices with their model and
Android version, and prints a device's PID to package table, as a table or as JSON.
*/

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/kleascm/akaylee-logcat/pkg/device"
	"github.com/kleascm/akaylee-logcat/pkg/process"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00B7F7")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// RunDevices lists attached devices
func RunDevices(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	asJSON, _ := cmd.Flags().GetBool("json")

	enumerator := device.NewEnumerator(newClient(cfg), logger.GetLogger())
	devices, err := enumerator.ListDevices(context.Background())
	if err != nil {
		return err
	}
	for _, d := range devices {
		logger.LogDevice(d.Serial, d.Model, d.OSVersion, d.SDKVersion)
	}

	return printDevices(cmd.OutOrStdout(), devices, asJSON)
}

func printDevices(w io.Writer, devices []device.Descriptor, asJSON bool) error {
	if asJSON {
		if devices == nil {
			devices = []device.Descriptor{}
		}
		return writeJSON(w, devices)
	}
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "No devices attached")
		return err
	}

	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{d.Serial, d.Model, d.OSVersion, d.SDKVersion})
	}
	_, err := fmt.Fprintln(w, renderTable([]string{"SERIAL", "MODEL", "ANDROID", "SDK"}, rows))
	return err
}

// RunPS prints the process table of one device
func RunPS(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	asJSON, _ := cmd.Flags().GetBool("json")
	filter, _ := cmd.Flags().GetString("filter")

	snapshotter := process.NewSnapshotter(newClient(cfg), cfg.Process.PSArgs...)
	procs, err := snapshotter.Snapshot(context.Background(), args[0])
	if err != nil {
		return err
	}
	logger.GetLogger().WithField("serial", args[0]).WithField("entries", len(procs)).Debug("Process table snapshot taken")

	return printProcesses(cmd.OutOrStdout(), filterTable(procs, filter), asJSON)
}

// filterTable keeps entries whose package contains filter
func filterTable(procs process.Table, filter string) process.Table {
	if filter == "" {
		return procs
	}
	out := make(process.Table)
	for pid, pkg := range procs {
		if strings.Contains(pkg, filter) {
			out[pid] = pkg
		}
	}
	return out
}

// sortedPIDs returns the table's PIDs in numeric order
func sortedPIDs(procs process.Table) []string {
	pids := make([]string, 0, len(procs))
	for pid := range procs {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool {
		a, errA := strconv.Atoi(pids[i])
		b, errB := strconv.Atoi(pids[j])
		if errA != nil || errB != nil {
			return pids[i] < pids[j]
		}
		return a < b
	})
	return pids
}

func printProcesses(w io.Writer, procs process.Table, asJSON bool) error {
	if asJSON {
		return writeJSON(w, procs)
	}

	pids := sortedPIDs(procs)
	rows := make([][]string, 0, len(pids))
	for _, pid := range pids {
		rows = append(rows, []string{pid, procs[pid]})
	}
	_, err := fmt.Fprintln(w, renderTable([]string{"PID", "PACKAGE"}, rows))
	return err
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
