/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: check.go
Description: The check command. Runs built-in self-checks (adb on PATH, adb server
reachable, devices attached, output directories writable, configuration valid) and
reports a pass count. Useful before streaming and in CI.
*/

package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/kleascm/akaylee-logcat/pkg/adb"
	"github.com/kleascm/akaylee-logcat/pkg/config"
	"github.com/kleascm/akaylee-logcat/pkg/device"
	"github.com/kleascm/akaylee-logcat/pkg/logging"
	"github.com/spf13/cobra"
)

type selfCheck struct {
	name     string
	function func() error
	// detail, when set, is printed after a passing check
	detail func() string
}

// PerformSelfCheck validates the environment the stream command depends on
func PerformSelfCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	client := newClient(cfg)
	ctx := context.Background()

	checks := []selfCheck{
		{name: "ADB Binary", function: func() error { return checkBinary(client) }},
		{name: "ADB Server", function: func() error { return checkServer(ctx, client) }},
		{name: "Attached Devices", function: func() error { return checkDevices(ctx, device.NewEnumerator(client, logger.GetLogger())) }},
		{name: "Log Directory", function: func() error { return checkWritable(cfg.Log.Dir) }},
		logFilesCheck(cfg),
		{name: "Stats Directory", function: func() error { return checkWritable(cfg.Stats.Dir) }},
		{name: "Configuration Validation", function: func() error { return checkConfiguration(cfg) }},
	}

	return runChecks(cmd.OutOrStdout(), checks)
}

// runChecks runs every check and fails if any of them failed
func runChecks(w io.Writer, checks []selfCheck) error {
	fmt.Fprintln(w, "🔍 akaylee-logcat - System Self-Check")
	fmt.Fprintln(w, "=====================================")
	fmt.Fprintln(w)

	passed := 0
	total := len(checks)

	for _, check := range checks {
		fmt.Fprintf(w, "🔍 %s... ", check.name)
		if err := check.function(); err != nil {
			fmt.Fprintf(w, "❌ FAILED: %v\n", err)
		} else {
			fmt.Fprint(w, "✅ PASSED")
			if check.detail != nil {
				if detail := check.detail(); detail != "" {
					fmt.Fprintf(w, " (%s)", detail)
				}
			}
			fmt.Fprintln(w)
			passed++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "📊 Results: %d/%d checks passed\n", passed, total)

	if passed == total {
		fmt.Fprintln(w, "✨ All checks passed! Ready to stream.")
		return nil
	}
	fmt.Fprintln(w, "⚠️  Some checks failed. Please address the issues before streaming.")
	return fmt.Errorf("%d/%d checks failed", total-passed, total)
}

func checkBinary(client *adb.Client) error {
	_, err := client.Available()
	return err
}

// checkServer asks adb for its version and lists devices, which also starts
// the server if it is not running
func checkServer(ctx context.Context, client adb.Runner) error {
	if _, err := client.Run(ctx, adb.VersionArgs()...); err != nil {
		return err
	}
	_, err := client.Run(ctx, adb.DevicesArgs()...)
	return err
}

func checkDevices(ctx context.Context, enumerator *device.Enumerator) error {
	devices, err := enumerator.ListDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return fmt.Errorf("no devices attached")
	}
	return nil
}

// checkWritable verifies files can be created in dir. An empty dir means the
// output is disabled and passes.
func checkWritable(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	file, err := os.CreateTemp(dir, ".akaylee-logcat-check-*")
	if err != nil {
		return fmt.Errorf("cannot write to %s: %w", dir, err)
	}
	name := file.Name()
	file.Close()
	return os.Remove(name)
}

// logFilesCheck reports what the log directory currently holds
func logFilesCheck(cfg config.Config) selfCheck {
	var stats *logging.LogStats
	return selfCheck{
		name: "Log Files",
		function: func() error {
			if cfg.Log.Dir == "" {
				return nil
			}
			var err error
			stats, err = logging.NewLogManager(cfg.Log.Dir, cfg.Log.MaxFiles, cfg.Log.MaxSize, cfg.Log.Compress).GetLogStats()
			return err
		},
		detail: func() string { return describeLogStats(stats) },
	}
}

func describeLogStats(stats *logging.LogStats) string {
	if stats == nil {
		return "file logging disabled"
	}
	if stats.TotalFiles == 0 {
		return "no log files yet"
	}
	return fmt.Sprintf("%d files, %d bytes, %d compressed, newest %s",
		stats.TotalFiles, stats.TotalSize, stats.CompressedFiles, stats.NewestFile.Format("2006-01-02 15:04:05"))
}

func checkConfiguration(cfg config.Config) error {
	return cfg.Validate()
}
