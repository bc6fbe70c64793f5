package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/relay-scrubber/internal/config"
	"github.com/raaihank/relay-scrubber/internal/datascrubbing"
	"github.com/raaihank/relay-scrubber/internal/metrics"
	"github.com/raaihank/relay-scrubber/internal/pii"
	"github.com/raaihank/relay-scrubber/internal/project"
	"github.com/raaihank/relay-scrubber/internal/scrubber"
)

type scrubFlags struct {
	piiConfig     string
	datascrubbing string
	projectID     string
	projectsDir   string
	input         string
	ndjson        bool
	pretty        bool
	follow        bool
	metricsAddr   string
}

func newScrubCmd(a *app) *cobra.Command {
	f := &scrubFlags{}

	cmd := &cobra.Command{
		Use:   "scrub",
		Short: "Scrub events read from a file or stdin",
		Long: `Scrub one JSON event, or one event per line with --ndjson.

The rules come from --pii-config and --datascrubbing, or from a stored
project config with --project. Without any of them the default data
scrubbing settings apply.

	Examples:
	  scrubber scrub --input event.json --pretty
	  scrubber scrub --ndjson --pii-config pii.json < events.ndjson
	  scrubber scrub --ndjson --follow --project 42 --projects-dir ./projects`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrub(cmd, a, f)
		},
	}

	cmd.Flags().StringVar(&f.piiConfig, "pii-config", "", "PII config file")
	cmd.Flags().StringVar(&f.datascrubbing, "datascrubbing", "", "legacy data scrubbing settings file")
	cmd.Flags().StringVar(&f.projectID, "project", "", "project id to load the config for")
	cmd.Flags().StringVar(&f.projectsDir, "projects-dir", "", "directory of <project>.json states, used when redis is disabled")
	cmd.Flags().StringVarP(&f.input, "input", "i", "-", "input file, - for stdin")
	cmd.Flags().BoolVar(&f.ndjson, "ndjson", false, "read one event per line")
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "indent the output of single events")
	cmd.Flags().BoolVar(&f.follow, "follow", false, "keep reading lines and reload the configuration file on change")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func runScrub(cmd *cobra.Command, a *app, f *scrubFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proj, err := loadProject(ctx, a, f)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if a.cfg.Metrics.Enabled || f.metricsAddr != "" {
		m = metrics.New(a.cfg.Metrics.Namespace)
	}
	if f.metricsAddr != "" {
		shutdown := serveMetrics(f.metricsAddr, m, a)
		defer shutdown()
	}

	opts, err := serviceOptions(a.cfg)
	if err != nil {
		return err
	}
	var svc atomic.Pointer[scrubber.Service]
	svc.Store(scrubber.New(opts, a.log, m))

	if f.follow {
		err := config.Watch(a.cfg, func(cfg *config.Config) {
			opts, err := serviceOptions(cfg)
			if err != nil {
				a.log.Warn("Ignoring reloaded configuration", zap.Error(err))
				return
			}
			svc.Store(scrubber.New(opts, a.log, m))
			a.log.Info("Configuration reloaded")
		}, func(err error) {
			a.log.Warn("Configuration reload failed", zap.Error(err))
		})
		if err != nil && !errors.Is(err, config.ErrNoConfigFile) {
			return err
		}
	}

	in := cmd.InOrStdin()
	if f.input != "" && f.input != "-" {
		file, err := os.Open(f.input)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer file.Close()
		in = file
	}
	out := cmd.OutOrStdout()

	switch {
	case f.follow:
		return scrubLines(ctx, &svc, proj, in, out, opts.MaxEventBytes, a)
	case f.ndjson:
		return scrubBatch(ctx, svc.Load(), proj, in, out, opts.MaxEventBytes, a)
	default:
		payload, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		result, _, err := svc.Load().ScrubEvent(ctx, proj, bytes.TrimSpace(payload))
		if err != nil {
			return err
		}
		if f.pretty {
			var buf bytes.Buffer
			if err := json.Indent(&buf, result, "", "  "); err != nil {
				return fmt.Errorf("failed to indent output: %w", err)
			}
			result = buf.Bytes()
		}
		_, err = fmt.Fprintf(out, "%s\n", result)
		return err
	}
}

// loadProject resolves the project config from a store or from local files
func loadProject(ctx context.Context, a *app, f *scrubFlags) (*project.Config, error) {
	if f.projectID != "" {
		if f.piiConfig != "" || f.datascrubbing != "" {
			return nil, errors.New("--project cannot be combined with --pii-config or --datascrubbing")
		}
		store, closeStore, err := openStore(a, f)
		if err != nil {
			return nil, err
		}
		defer closeStore()

		proj, err := store.Get(ctx, f.projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to load project %s: %w", f.projectID, err)
		}
		a.log.WithProject(f.projectID).Debug("Project config loaded")
		return proj, nil
	}

	proj := &project.Config{}
	if f.piiConfig != "" {
		data, err := os.ReadFile(f.piiConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to read PII config: %w", err)
		}
		if proj.PiiConfig, err = pii.ParseConfig(data); err != nil {
			return nil, err
		}
	}
	if f.datascrubbing != "" {
		data, err := os.ReadFile(f.datascrubbing)
		if err != nil {
			return nil, fmt.Errorf("failed to read data scrubbing settings: %w", err)
		}
		settings, err := datascrubbing.ParseConfig(data)
		if err != nil {
			return nil, err
		}
		proj.DataScrubbingSettings = &settings
	}
	if proj.PiiConfig == nil && proj.DataScrubbingSettings == nil {
		settings := datascrubbing.NewDefault()
		proj.DataScrubbingSettings = &settings
	}
	return proj, nil
}

func openStore(a *app, f *scrubFlags) (project.Store, func(), error) {
	if a.cfg.Redis.Enabled {
		store, err := project.NewRedisStore(project.RedisConfig{
			URL:       a.cfg.Redis.URL,
			KeyPrefix: a.cfg.Redis.KeyPrefix,
			Timeout:   a.cfg.Redis.Timeout,
			PoolSize:  a.cfg.Redis.PoolSize,
		}, a.log.Logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	if f.projectsDir == "" {
		return nil, nil, errors.New("--project needs --projects-dir or redis.enabled")
	}
	return project.NewFileStore(f.projectsDir), func() {}, nil
}

func newScanner(in io.Reader, maxBytes int) *bufio.Scanner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBytes+1)
	return scanner
}

// scrubBatch reads every line first and scrubs them concurrently
func scrubBatch(ctx context.Context, svc *scrubber.Service, proj *project.Config, in io.Reader, out io.Writer, maxBytes int, a *app) error {
	var events [][]byte
	scanner := newScanner(in, maxBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		events = append(events, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	results, err := svc.ScrubBatch(ctx, proj, events)
	if err != nil {
		return err
	}

	failed := 0
	for i, r := range results {
		if r.Err != nil {
			failed++
			a.log.Error("Failed to scrub event", zap.Int("line", i+1), zap.Error(r.Err))
			continue
		}
		if _, err := fmt.Fprintf(out, "%s\n", r.Payload); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d events failed", failed, len(events))
	}
	return nil
}

// scrubLines scrubs each line as it arrives with the current service
func scrubLines(ctx context.Context, svc *atomic.Pointer[scrubber.Service], proj *project.Config, in io.Reader, out io.Writer, maxBytes int, a *app) error {
	scanner := newScanner(in, maxBytes)
	line := 0
	for scanner.Scan() {
		line++
		payload := bytes.TrimSpace(scanner.Bytes())
		if len(payload) == 0 {
			continue
		}
		result, _, err := svc.Load().ScrubEvent(ctx, proj, payload)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			a.log.Error("Failed to scrub event", zap.Int("line", line), zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(out, "%s\n", result); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

func serveMetrics(addr string, m *metrics.Metrics, a *app) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.log.Info("Metrics server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
