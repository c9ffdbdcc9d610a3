/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared utilities for the akaylee-logcat commands. Provides configuration
loading, logging setup, adb client construction and interrupt handling used across all
command implementations.
*/

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/kleascm/akaylee-logcat/pkg/adb"
	"github.com/kleascm/akaylee-logcat/pkg/config"
	"github.com/kleascm/akaylee-logcat/pkg/logging"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from files, environment and flags
func LoadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SetupLogging creates the diagnostic logger described by cfg. Diagnostics go
// to stderr so stdout carries only command output.
func SetupLogging(cfg config.Config) (*logging.Logger, error) {
	logger, err := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.LogLevel(cfg.Log.Level),
		Format:    logging.LogFormat(cfg.Log.Format),
		OutputDir: cfg.Log.Dir,
		MaxFiles:  cfg.Log.MaxFiles,
		MaxSize:   cfg.Log.MaxSize,
		Compress:  cfg.Log.Compress,
		Timestamp: true,
		Colors:    isTerminal(os.Stderr),
		Console:   os.Stderr,

		SyslogEnabled: cfg.Log.Syslog.Enabled,
		SyslogNetwork: cfg.Log.Syslog.Network,
		SyslogAddress: cfg.Log.Syslog.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	return logger, nil
}

// setup runs LoadConfig and SetupLogging together
func setup() (config.Config, *logging.Logger, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := SetupLogging(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// newClient builds the adb client from cfg
func newClient(cfg config.Config) *adb.Client {
	return adb.NewClient(cfg.ADB.Path, cfg.ADB.Timeout)
}

// interruptContext returns a context cancelled on SIGINT or SIGTERM
func interruptContext(parent context.Context, notice io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			fmt.Fprintln(notice, "\n[!] Interrupt received, stopping sessions...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(f.Fd())
}
