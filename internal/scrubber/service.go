package scrubber

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/raaihank/relay-scrubber/internal/annotated"
	"github.com/raaihank/relay-scrubber/internal/datascrubbing"
	"github.com/raaihank/relay-scrubber/internal/logger"
	"github.com/raaihank/relay-scrubber/internal/metrics"
	"github.com/raaihank/relay-scrubber/internal/pii"
	"github.com/raaihank/relay-scrubber/internal/processor"
	"github.com/raaihank/relay-scrubber/internal/project"
	"github.com/raaihank/relay-scrubber/internal/protocol"
)

// ErrEventTooLarge is returned for payloads above the configured size limit
var ErrEventTooLarge = errors.New("event exceeds the size limit")

// Options configures a Service
type Options struct {
	Mode          datascrubbing.Mode
	MaxDepth      int
	Workers       int
	Normalize     bool
	MaxEventBytes int
	CacheSize     int
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Mode:          datascrubbing.ModeFineGrained,
		MaxDepth:      processor.DefaultMaxDepth,
		Workers:       4,
		Normalize:     true,
		MaxEventBytes: 1 << 20,
		CacheSize:     pii.DefaultCacheSize,
	}
}

// Stats summarizes what scrubbing did to one event
type Stats struct {
	// Remarks counts remarks by rule id
	Remarks map[string]int
	// Errors counts processing errors recorded in the event
	Errors   int
	Duration time.Duration
}

// RemarkCount returns the total number of remarks
func (s Stats) RemarkCount() int {
	n := 0
	for _, c := range s.Remarks {
		n += c
	}
	return n
}

// Result is the outcome of one event of a batch
type Result struct {
	Payload []byte
	Stats   Stats
	Err     error
}

// Service scrubs events with project configs. It is safe for concurrent use.
type Service struct {
	opts    Options
	schema  *protocol.Field
	cache   *pii.ConfigCache
	logger  *logger.Logger
	metrics *metrics.Metrics

	warnings   *rate.Limiter
	suppressed atomic.Int64
}

// New creates a new scrubbing service. m may be nil.
func New(opts Options, log *logger.Logger, m *metrics.Metrics) *Service {
	defaults := DefaultOptions()
	if opts.Mode == "" {
		opts.Mode = defaults.Mode
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = defaults.MaxDepth
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.MaxEventBytes <= 0 {
		opts.MaxEventBytes = defaults.MaxEventBytes
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Service{
		opts:     opts,
		schema:   protocol.EventSchema(),
		cache:    pii.NewConfigCache(opts.CacheSize),
		logger:   log.WithComponent("scrubber"),
		metrics:  m,
		warnings: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// ScrubEvent decodes an event payload, scrubs it with cfg and encodes the
// result including its metadata.
func (s *Service) ScrubEvent(ctx context.Context, cfg *project.Config, payload []byte) ([]byte, Stats, error) {
	start := time.Now()
	out, stats, err := s.scrubPayload(ctx, cfg, payload)
	stats.Duration = time.Since(start)

	outcome := metrics.OutcomeScrubbed
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailed
	case stats.RemarkCount() == 0:
		outcome = metrics.OutcomeSkipped
	}
	s.metrics.ObserveEvent(outcome, len(payload), stats.Duration.Seconds())
	return out, stats, err
}

func (s *Service) scrubPayload(ctx context.Context, cfg *project.Config, payload []byte) ([]byte, Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}
	if len(payload) > s.opts.MaxEventBytes {
		return nil, Stats{}, fmt.Errorf("%w: %d > %d bytes", ErrEventTooLarge, len(payload), s.opts.MaxEventBytes)
	}

	tree, err := annotated.FromJSON(payload)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to decode event: %w", err)
	}

	stats, err := s.Scrub(ctx, cfg, tree)
	if err != nil {
		return nil, stats, err
	}

	out, err := tree.ToJSON()
	if err != nil {
		return nil, stats, fmt.Errorf("failed to encode event: %w", err)
	}
	return out, stats, nil
}

// Scrub processes a decoded event in place: normalization and schema
// validation first when enabled, then every PII config of cfg in order.
func (s *Service) Scrub(ctx context.Context, cfg *project.Config, event *annotated.Annotated) (Stats, error) {
	start := time.Now()
	if s.opts.Normalize {
		protocol.Normalize(event)
		if err := processor.ProcessValue(event, protocol.NewSchemaProcessor(), s.rootState()); err != nil {
			return Stats{}, err
		}
	}

	for _, piiConfig := range cfg.PiiConfigs(s.opts.Mode) {
		if err := ctx.Err(); err != nil {
			return Stats{}, err
		}
		compiled, hit, err := s.cache.Lookup(piiConfig)
		s.metrics.ConfigCache(hit)
		if err != nil {
			if !hit {
				s.metrics.CompileError()
			}
			s.warn("PII config has errors, applying the valid parts", zap.Error(err))
		}
		if compiled.Len() == 0 {
			continue
		}
		if err := processor.ProcessValue(event, pii.NewProcessor(compiled), s.rootState()); err != nil {
			return Stats{}, err
		}
	}

	stats := collectStats(event)
	for key, n := range stats.byType {
		s.metrics.AddRemarks(key.rule, key.typ, n)
	}

	log := s.logger
	if id := eventID(event); id != "" {
		log = log.WithEventID(id)
	}
	log.LogScrubResult(stats.RemarkCount(), stats.Errors, time.Since(start))
	return stats.Stats, nil
}

func eventID(event *annotated.Annotated) string {
	obj, ok := event.Value.(*annotated.Object)
	if !ok {
		return ""
	}
	item, ok := obj.Get("event_id")
	if !ok {
		return ""
	}
	id, _ := item.Value.(annotated.String)
	return string(id)
}

// ScrubBatch scrubs events concurrently with at most Workers at a time. A
// failing event only fails its own result; the returned error is set when
// ctx ends before the batch completes.
func (s *Service) ScrubBatch(ctx context.Context, cfg *project.Config, events [][]byte) ([]Result, error) {
	results := make([]Result, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, payload := range events {
		g.Go(func() error {
			out, stats, err := s.ScrubEvent(gctx, cfg, payload)
			results[i] = Result{Payload: out, Stats: stats, Err: err}
			if err != nil && !errors.Is(err, context.Canceled) {
				s.warn("Failed to scrub event", zap.Int("index", i), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.logger.Info("Batch scrubbed",
		zap.Int("events", len(events)),
		zap.Int("failed", failed),
		zap.Int64("suppressed_warnings", s.suppressed.Swap(0)))

	return results, ctx.Err()
}

func (s *Service) rootState() *processor.State {
	return processor.NewRootState(processor.WithSchema(s.schema), processor.WithMaxDepth(s.opts.MaxDepth))
}

// warn logs at most a few warnings per second and counts the rest
func (s *Service) warn(msg string, fields ...zap.Field) {
	if !s.warnings.Allow() {
		s.suppressed.Add(1)
		return
	}
	s.logger.Warn(msg, fields...)
}

type remarkKey struct {
	rule string
	typ  string
}

type collected struct {
	Stats
	byType map[remarkKey]int
}

func collectStats(event *annotated.Annotated) collected {
	c := collected{Stats: Stats{Remarks: map[string]int{}}, byType: map[remarkKey]int{}}
	var walk func(a *annotated.Annotated)
	walk = func(a *annotated.Annotated) {
		if a == nil {
			return
		}
		for _, r := range a.Meta.Remarks {
			c.Remarks[r.RuleID]++
			c.byType[remarkKey{rule: r.RuleID, typ: string(r.Type)}]++
		}
		c.Errors += len(a.Meta.Errors)
		switch v := a.Value.(type) {
		case annotated.Array:
			for _, item := range v {
				walk(item)
			}
		case *annotated.Object:
			v.Range(func(_ string, item *annotated.Annotated) bool {
				walk(item)
				return true
			})
		}
	}
	walk(event)
	return c
}
