// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/sirseerhq/searchdl/internal/config"
	sderrors "github.com/sirseerhq/searchdl/internal/errors"
	"github.com/sirseerhq/searchdl/internal/metadata"
	"github.com/sirseerhq/searchdl/internal/metrics"
	"github.com/sirseerhq/searchdl/internal/output"
	"github.com/sirseerhq/searchdl/internal/resume"
	"github.com/sirseerhq/searchdl/internal/splunk"
	"github.com/sirseerhq/searchdl/pkg/version"
)

// runEnv holds the process resources a run touches, so tests can replace them.
type runEnv struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	isTerminal func() bool

	// logger overrides the logger built from the configuration.
	logger *zap.Logger
}

func defaultEnv() *runEnv {
	return &runEnv{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// runOptions are the command-line flags.
type runOptions struct {
	configPath  string
	forceNewJob bool
	assumeYes   bool
}

func newRootCommand(env *runEnv) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "searchdl",
		Short: "Download the results of a search job",
		Long: `searchdl submits a search to a Splunk-compatible search API, waits for the
job to finish and downloads its results.

Results are written as CSV or JSON (paged) or as raw events ('log' mode).
Connection settings, the query and the output are read from the configuration
file and SEARCHDL_* environment variables.`,
		Args:          cobra.NoArgs,
		Version:       version.Version,
		SilenceUsage:  true, // Don't show usage on error
		SilenceErrors: true, // We'll handle error printing ourselves
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runFetch(ctx, env, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to the configuration file")
	cmd.Flags().BoolVar(&opts.forceNewJob, "force-new-job", false, "Submit a new job even if a saved one matches")
	cmd.Flags().BoolVarP(&opts.assumeYes, "yes", "y", false, "Do not ask for confirmation in raw mode")

	return cmd
}

// runFetch executes one download run.
func runFetch(ctx context.Context, env *runEnv, opts runOptions) (err error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := env.logger
	if logger == nil {
		logger = newLogger(env.stderr, cfg.Debug)
		defer func() { _ = logger.Sync() }()
	}
	if cfg.Debug {
		logger.Debug("Debug mode enabled")
	}

	format, err := splunk.ParseOutputMode(cfg.OutputMode)
	if err != nil {
		return fmt.Errorf("%v: %w", err, sderrors.ErrInvalidConfig)
	}

	if format == splunk.FormatRaw && splunk.HasExtendedTransformingCommand(cfg.SearchQuery) {
		proceed, err := confirmRawMode(ctx, env, logger, cfg.SearchQuery, opts.assumeYes)
		if err != nil || !proceed {
			return err
		}
	}

	if splunk.HasSort(cfg.SearchQuery) {
		logger.Warn("Using 'sort' in your query caps results to 10,000 events")
	}

	tracker := metadata.New()
	collector := metrics.NewCollector()
	observer := splunk.MultiObserver{tracker, collector}

	if cfg.MetricsFile != "" {
		defer func() {
			collector.Finish(err == nil)
			if werr := collector.WriteTextfile(cfg.MetricsFile); werr != nil {
				logger.Warn("Failed to write metrics", zap.Error(werr))
			}
		}()
	}

	manager := splunk.NewSessionManager(cfg.SplunkURL, splunk.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	}, &splunk.SessionConfig{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RequestTimeout:     cfg.RequestTimeout,
		Logger:             logger,
		Observer:           observer,
	})
	controller := splunk.NewJobController(manager, &splunk.ControllerConfig{
		PollInterval: cfg.PollInterval,
		ReauthPause:  cfg.ReauthPause,
		Logger:       logger,
		Observer:     observer,
	})
	fetcher := splunk.NewFetcher(&splunk.FetcherConfig{
		PageInterval: cfg.PageInterval,
		Logger:       logger,
		Observer:     observer,
	})

	sess, err := manager.Authenticate(ctx)
	if err != nil {
		return err
	}
	logger.Info("Login successful")

	store, closeStore := openResumeStore(ctx, cfg, logger)
	defer closeStore()

	handle, resumed, err := resolveJob(ctx, cfg, opts, logger, controller, sess, store, tracker.RunID())
	if err != nil {
		return err
	}
	tracker.SetJob(handle.SID, resumed)
	logger.Debug("Job status URL", zap.String("url", splunk.JobURL(sess, handle.SID)))

	sess, _, err = controller.PollUntilDone(ctx, sess, handle)
	if err != nil {
		return err
	}

	if err := retrieve(ctx, cfg, format, logger, fetcher, sess, handle, tracker); err != nil {
		return err
	}

	if cfg.MetadataFile != "" {
		md := tracker.GenerateMetadata(version.Version, metadata.RunParams{
			Endpoint:   cfg.SplunkURL,
			Query:      cfg.SearchQuery,
			Earliest:   cfg.Earliest,
			Latest:     cfg.Latest,
			OutputMode: cfg.OutputMode,
			PageSize:   cfg.PageSize,
			OutputFile: cfg.OutputFile,
		})
		if err := metadata.SaveMetadata(md, cfg.MetadataFile); err != nil {
			logger.Warn("Failed to save run metadata", zap.Error(err))
		} else {
			logger.Info("Run metadata saved", zap.String("path", cfg.MetadataFile), zap.String("summary", metadata.Summary(md)))
		}
	}

	return nil
}

// openResumeStore returns the configured store, or nil when resume is off or
// the store cannot be opened. Resume is an aid, never a reason to fail a run.
func openResumeStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (resume.Store, func()) {
	noop := func() {}
	if !cfg.ResumeEnabled() {
		return nil, noop
	}

	if cfg.ResumeRedisURL != "" {
		store, err := resume.OpenRedisStore(ctx, cfg.ResumeRedisURL, cfg.ResumeTTL)
		if err != nil {
			logger.Warn("Resume store unavailable, continuing without it", zap.Error(err))
			return nil, noop
		}
		return store, func() { _ = store.Close() }
	}
	return resume.NewFileStore(cfg.ResumeFile), noop
}

// resolveJob reuses the saved job when it was created for the same query and
// bounds, and submits a new one otherwise. It reports whether the job was
// reused.
func resolveJob(ctx context.Context, cfg *config.Config, opts runOptions, logger *zap.Logger,
	controller *splunk.JobController, sess *splunk.Session, store resume.Store, runID string) (*splunk.JobHandle, bool, error) {
	if store != nil && !opts.forceNewJob {
		rec, err := store.Load(ctx)
		switch {
		case err == nil && rec.Matches(cfg.SearchQuery, cfg.Earliest, cfg.Latest):
			logger.Info("Using saved SID from a previous run", zap.String("sid", rec.SID), zap.Time("saved_at", rec.SavedAt()))
			return &splunk.JobHandle{
				SID:       rec.SID,
				Query:     cfg.SearchQuery,
				Earliest:  cfg.Earliest,
				Latest:    cfg.Latest,
				CreatedAt: rec.SavedAt(),
			}, true, nil
		case err == nil:
			logger.Info("Saved SID doesn't match current search parameters, creating new job")
			if derr := store.Delete(ctx); derr != nil {
				logger.Warn("Failed to delete saved SID", zap.Error(derr))
			}
		case errors.Is(err, resume.ErrNoRecord):
		default:
			logger.Warn("Failed to load saved SID", zap.Error(err))
		}
	}
	if opts.forceNewJob {
		logger.Info("Forcing creation of a new search job")
	}

	handle, err := controller.Submit(ctx, sess, splunk.SubmitRequest{
		Query:    cfg.SearchQuery,
		Earliest: cfg.Earliest,
		Latest:   cfg.Latest,
		App:      cfg.JobApp,
	})
	if err != nil {
		return nil, false, err
	}

	if store != nil {
		rec := resume.NewRecord(handle.SID, handle.Query, handle.Earliest, handle.Latest, runID)
		if err := store.Save(ctx, rec); err != nil {
			logger.Warn("Failed to save SID for reuse", zap.Error(err))
		} else {
			logger.Info("SID saved for future runs", zap.String("sid", handle.SID))
		}
	}
	return handle, false, nil
}

// retrieve downloads the results of a finished job into cfg.OutputFile.
func retrieve(ctx context.Context, cfg *config.Config, format splunk.Format, logger *zap.Logger,
	fetcher *splunk.Fetcher, sess *splunk.Session, handle *splunk.JobHandle, tracker *metadata.Tracker) error {
	total, err := fetcher.GetTotalCount(ctx, sess, handle)
	if err != nil {
		return err
	}
	tracker.SetTotalResults(total)

	if format == splunk.FormatRaw {
		logger.Info("Fetching raw log results using export endpoint")
		raw, err := fetcher.ExportRaw(ctx, sess, handle)
		if err != nil {
			return err
		}
		events := output.CountLines(raw)
		tracker.SetRawEvents(events)
		logger.Info("Downloaded raw log events", zap.Int("events", events))

		if err := output.WriteFileAtomic(cfg.OutputFile, raw); err != nil {
			return err
		}
		logger.Info("Raw log results written", zap.String("path", cfg.OutputFile))
		return nil
	}

	sink, err := output.NewSink(string(format), cfg.OutputFile)
	if err != nil {
		return err
	}
	pages, err := fetcher.FetchPaged(ctx, sess, handle, splunk.OutputSpec{Format: format, PageSize: cfg.PageSize}, total, sink)
	if cerr := sink.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to finish output file: %w", cerr)
	}
	if err != nil {
		return err
	}

	logger.Info("All results written",
		zap.String("format", string(format)),
		zap.String("path", cfg.OutputFile),
		zap.Int("pages", pages),
		zap.Int("total", total))
	return nil
}

// exitInterrupted is the conventional status of a process stopped by SIGINT.
const exitInterrupted = 130

// mapErrorToExitCode maps internal errors to appropriate exit codes
func mapErrorToExitCode(err error) int {
	if err == nil {
		return 0
	}

	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}

	// A transport failure is reported as such, whichever step hit it.
	if errors.Is(err, sderrors.ErrNetworkFailure) {
		return 3
	}

	switch {
	case errors.Is(err, sderrors.ErrAuth):
		return 2
	case errors.Is(err, sderrors.ErrJobFailed), errors.Is(err, sderrors.ErrPoll):
		return 4
	case errors.Is(err, sderrors.ErrExportExhausted):
		return 5
	}

	return 1 // General error
}
