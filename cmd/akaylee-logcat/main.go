/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Command-line interface for akaylee-logcat. Streams Android device logs over
adb and enriches every line with the package owning its PID. Provides device listing,
process tables, self-checks and configuration management.
*/

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kleascm/akaylee-logcat/cmd/akaylee-logcat/commands"
	"github.com/kleascm/akaylee-logcat/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Configuration
	configFile  string
	logLevel    string
	logFormat   string
	logDir      string
	logCompress bool

	// syslog configuration
	syslogEnabled bool
	syslogNetwork string
	syslogAddress string

	// adb configuration
	adbPath    string
	adbTimeout time.Duration
	psArgs     []string

	// Stream configuration
	renderFormat string
	bufferSize   int
	dropOnFull   bool
	retryAfter   time.Duration
	statsDir     string
)

func main() {
	defaults := config.Defaults()

	rootCmd := &cobra.Command{
		Use:   "akaylee-logcat",
		Short: "Live Android logcat with per-line package names",
		Long: `akaylee-logcat streams the logs of every attached Android device over adb,
parses each threadtime line and tags it with the package owning its process. Sessions
run independently per device and stop cleanly on interrupt.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path (TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", defaults.Log.Level, "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", defaults.Log.Format, "Log format (text, json, custom)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", defaults.Log.Dir, "Log output directory (empty disables log files)")
	rootCmd.PersistentFlags().BoolVar(&logCompress, "log-compress", defaults.Log.Compress, "Gzip rotated log files")
	rootCmd.PersistentFlags().BoolVar(&syslogEnabled, "syslog", defaults.Log.Syslog.Enabled, "Mirror diagnostics to syslog")
	rootCmd.PersistentFlags().StringVar(&syslogNetwork, "syslog-network", defaults.Log.Syslog.Network, "Syslog network (udp, tcp, unix; empty for the local daemon)")
	rootCmd.PersistentFlags().StringVar(&syslogAddress, "syslog-address", defaults.Log.Syslog.Address, "Syslog address, e.g. 127.0.0.1:514")
	rootCmd.PersistentFlags().StringVar(&adbPath, "adb", defaults.ADB.Path, "Path to the adb binary")
	rootCmd.PersistentFlags().DurationVar(&adbTimeout, "adb-timeout", defaults.ADB.Timeout, "Timeout for one-shot adb calls")
	rootCmd.PersistentFlags().StringSliceVar(&psArgs, "ps-args", defaults.Process.PSArgs, "Extra arguments for `adb shell ps` (e.g. -A)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log.dir", rootCmd.PersistentFlags().Lookup("log-dir"))
	viper.BindPFlag("log.compress", rootCmd.PersistentFlags().Lookup("log-compress"))
	viper.BindPFlag("log.syslog.enabled", rootCmd.PersistentFlags().Lookup("syslog"))
	viper.BindPFlag("log.syslog.network", rootCmd.PersistentFlags().Lookup("syslog-network"))
	viper.BindPFlag("log.syslog.address", rootCmd.PersistentFlags().Lookup("syslog-address"))
	viper.BindPFlag("adb.path", rootCmd.PersistentFlags().Lookup("adb"))
	viper.BindPFlag("adb.timeout", rootCmd.PersistentFlags().Lookup("adb-timeout"))
	viper.BindPFlag("process.ps_args", rootCmd.PersistentFlags().Lookup("ps-args"))

	// devices
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List attached devices",
		Long:  `List attached devices with their model, Android version and SDK level.`,
		Args:  cobra.NoArgs,
		RunE:  commands.RunDevices,
	}
	devicesCmd.Flags().Bool("json", false, "Print devices as JSON")
	rootCmd.AddCommand(devicesCmd)

	// ps
	psCmd := &cobra.Command{
		Use:   "ps <serial>",
		Short: "Show the PID to package table of a device",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunPS,
	}
	psCmd.Flags().Bool("json", false, "Print the table as JSON")
	psCmd.Flags().String("filter", "", "Only show packages containing this text")
	rootCmd.AddCommand(psCmd)

	// stream
	streamCmd := &cobra.Command{
		Use:   "stream [serial...]",
		Short: "Stream enriched logs from one or more devices",
		Long: `Stream logcat from the given devices, or from every attached device when none
are named. Each line is printed with its timestamp, pid-tid, tag, package and level.
Press Ctrl-C to stop all sessions.`,
		RunE: commands.RunStream,
	}
	streamCmd.Flags().StringVar(&renderFormat, "format", defaults.Render.Format, "Output format (styled, plain, json)")
	streamCmd.Flags().IntVar(&bufferSize, "buffer", defaults.Stream.Buffer, "Records buffered between sessions and output")
	streamCmd.Flags().BoolVar(&dropOnFull, "drop-on-full", defaults.Stream.DropOnFull, "Drop records instead of stalling when output falls behind")
	streamCmd.Flags().DurationVar(&retryAfter, "retry-after", defaults.Resolver.RetryAfter, "Pause process snapshots for this long after one fails")
	streamCmd.Flags().StringVar(&statsDir, "stats-dir", defaults.Stats.Dir, "Write per-session statistics under this directory")

	viper.BindPFlag("render.format", streamCmd.Flags().Lookup("format"))
	viper.BindPFlag("stream.buffer", streamCmd.Flags().Lookup("buffer"))
	viper.BindPFlag("stream.drop_on_full", streamCmd.Flags().Lookup("drop-on-full"))
	viper.BindPFlag("resolver.retry_after", streamCmd.Flags().Lookup("retry-after"))
	viper.BindPFlag("stats.dir", streamCmd.Flags().Lookup("stats-dir"))
	rootCmd.AddCommand(streamCmd)

	// check
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Perform built-in self-checks",
		Long: `Check that adb is installed and its server answers, that devices are attached,
that log and stats directories are writable and that the configuration is valid.`,
		Args: cobra.NoArgs,
		RunE: commands.PerformSelfCheck,
	})

	// config
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  commands.RunConfigInit,
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  commands.RunConfigShow,
	})
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
