// Package alert implements notice dispatching to multiple sinks.
package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/baton-ci/baton/internal/metrics"
	"github.com/baton-ci/baton/pkg/types"
)

// Sink is a notice destination.
type Sink interface {
	Send(ctx context.Context, n types.Notice) error
	Name() string
}

// entry pairs a sink with its severity floor.
type entry struct {
	sink Sink
	min  types.NoticeLevel
}

// Dispatcher routes notices to configured sinks, filtering each by the sink's
// minimum level. Sink failures are logged and never interrupt delivery to the
// remaining sinks.
type Dispatcher struct {
	entries []entry
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher from sink configs.
func NewDispatcher(configs []types.AlertConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, cfg := range configs {
		sink, err := newSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.entries = append(d.entries, entry{sink: sink, min: cfg.MinLevel})
	}
	return d, nil
}

// Dispatch sends a notice to every sink whose level floor admits it.
func (d *Dispatcher) Dispatch(ctx context.Context, n types.Notice) {
	for _, e := range d.entries {
		if levelRank(n.Level) < levelRank(e.min) {
			continue
		}
		if err := e.sink.Send(ctx, n); err != nil {
			metrics.NoticesFailed.Add(1)
			d.logger.Error("notice delivery failed", "sink", e.sink.Name(), "error", err)
			continue
		}
		metrics.NoticesDispatched.Add(1)
	}
}

// Func returns a function suitable for use as the orchestrator's notice callback.
func (d *Dispatcher) Func() func(context.Context, types.Notice) {
	return d.Dispatch
}

func newSink(cfg types.AlertConfig) (Sink, error) {
	switch cfg.Type {
	case types.SinkConsole:
		return NewConsoleSink(), nil
	case types.SinkWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.SinkFile:
		if cfg.Path == "" {
			return nil, fmt.Errorf("file path required")
		}
		return NewFileSink(cfg.Path)
	case types.SinkSNS:
		return NewSNSSink(cfg.TopicARN)
	case types.SinkEventBridge:
		return NewEventBridgeSink(cfg.EventBus)
	case types.SinkPubSub:
		return NewPubSubSink(cfg.ProjectID, cfg.TopicID)
	case types.SinkS3:
		return NewS3Sink(cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}

// levelRank orders notice levels for min-level filtering.
func levelRank(l types.NoticeLevel) int {
	switch l {
	case types.NoticeCritical:
		return 2
	case types.NoticeWarning:
		return 1
	default:
		return 0
	}
}
