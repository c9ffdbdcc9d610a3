/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: stream.go
Description: The stream command. Starts one live logcat session per device, renders
enriched records to stdout through a buffered emitter and stops every session on
interrupt or once all devices have gone away.
*/

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kleascm/akaylee-logcat/pkg/adb"
	"github.com/kleascm/akaylee-logcat/pkg/config"
	"github.com/kleascm/akaylee-logcat/pkg/device"
	"github.com/kleascm/akaylee-logcat/pkg/logcat"
	"github.com/kleascm/akaylee-logcat/pkg/logging"
	"github.com/kleascm/akaylee-logcat/pkg/process"
	"github.com/kleascm/akaylee-logcat/pkg/render"
	"github.com/kleascm/akaylee-logcat/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RunStream streams the given serials, or every attached device when none are given
func RunStream(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := interruptContext(context.Background(), cmd.ErrOrStderr())
	defer cancel()

	client := newClient(cfg)
	serials := args
	if len(serials) == 0 {
		devices, err := device.NewEnumerator(client, logger.GetLogger()).ListDevices(ctx)
		if err != nil {
			return err
		}
		for _, d := range devices {
			serials = append(serials, d.Serial)
		}
	}
	if len(serials) == 0 {
		return fmt.Errorf("no devices attached")
	}

	formatter, err := render.New(cfg.Render.Format, os.Stdout)
	if err != nil {
		return err
	}

	return runStreams(ctx, streamDeps{
		cfg:       cfg,
		streamer:  client,
		source:    process.NewSnapshotter(client, cfg.Process.PSArgs...),
		formatter: formatter,
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
		logger:    logger,
	}, serials)
}

// streamDeps carries everything runStreams needs
type streamDeps struct {
	cfg       config.Config
	streamer  adb.Streamer
	source    process.Source
	formatter logcat.Formatter
	out       io.Writer
	errOut    io.Writer
	logger    *logging.Logger
}

// runStreams runs one session per serial until ctx is cancelled or every
// session has ended. Sessions that fail to spawn do not affect the others.
func runStreams(ctx context.Context, deps streamDeps, serials []string) error {
	log := deps.logger.GetLogger()

	writer := logcat.NewWriterEmitter(deps.out, deps.errOut, deps.formatter)
	buffer := logcat.NewChannelEmitter(deps.cfg.Stream.Buffer, deps.cfg.Stream.DropOnFull)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for event := range buffer.Events() {
			if err := writer.Emit(event); err != nil {
				log.WithError(err).Debug("Output write failed")
			}
		}
	}()

	registry := logcat.NewRegistry(deps.streamer, deps.source, buffer,
		logcat.WithRegistryLogger(log),
		logcat.WithSessionOptions(
			logcat.WithSessionLogger(log),
			logcat.WithResolverOptions(
				process.WithRetryAfter(deps.cfg.Resolver.RetryAfter),
				process.WithSnapshotHook(func(serial, pid string, entries int, took time.Duration) {
					deps.logger.LogSnapshot(serial, entries, took, map[string]interface{}{"pid": pid})
				}),
			),
		),
		logcat.OnSessionEnd(func(s *logcat.Session) {
			recordSessionEnd(deps, s)
		}),
	)

	started := 0
	for _, serial := range serials {
		session, err := registry.Start(ctx, serial)
		if err != nil {
			deps.logger.LogSpawnFailure(serial, err, nil)
			continue
		}
		started++
		deps.logger.LogSessionState(session.ID(), serial, session.State().String(), nil)
	}

	if started > 0 {
		allEnded := make(chan struct{})
		go func() {
			registry.Wait()
			close(allEnded)
		}()

		select {
		case <-ctx.Done():
		case <-allEnded:
			log.Info("All sessions ended")
		}
	}

	registry.StopAll()
	buffer.Close()
	<-drained

	if dropped := buffer.Dropped(); dropped > 0 {
		log.WithField("dropped", dropped).Warn("Output could not keep up; records were dropped")
	}
	if started == 0 {
		return fmt.Errorf("no session could be started for %d device(s)", len(serials))
	}
	return nil
}

// recordSessionEnd logs a finished session's counters and optionally writes them to disk
func recordSessionEnd(deps streamDeps, s *logcat.Session) {
	stats := s.Stats()
	deps.logger.LogSessionStats(stats.SessionID, stats.Serial, stats.LinesRead, stats.Records, stats.Dropped, map[string]interface{}{
		"state":          stats.State,
		"emit_failures":  stats.EmitFailures,
		"resolve_errors": stats.ResolveErrors,
		"snapshots":      stats.Resolver.Snapshots,
	})

	if deps.cfg.Stats.Dir == "" {
		return
	}
	path, err := utils.WriteSessionStats(deps.cfg.Stats.Dir, stats)
	if err != nil {
		deps.logger.GetLogger().WithError(err).Warn("Failed to write session statistics")
		return
	}
	deps.logger.GetLogger().WithFields(logrus.Fields{
		"serial": stats.Serial,
		"path":   path,
	}).Debug("Session statistics written")
}
