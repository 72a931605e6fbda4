package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/project-kessel/rolemapper/internal/probe"
	"github.com/project-kessel/rolemapper/internal/service"
)

// NewObserver creates an application observer from configuration.
// This is a convenience wrapper that creates its own logger from cfg.
func NewObserver(cfg *ObservabilityConfig) (service.ApplicationObserver, error) {
	return NewObserverWithLogger(cfg, NewLogger(cfg))
}

// NewObserverWithLogger creates an application observer using the provided logger.
// Use this when you want the observer to share a logger with other components.
func NewObserverWithLogger(cfg *ObservabilityConfig, logger *slog.Logger) (service.ApplicationObserver, error) {
	if cfg == nil {
		// Default to no-op observer if not configured
		return &service.NoOpApplicationObserver{}, nil
	}

	switch cfg.Type {
	case "logging":
		return probe.NewLoggingObserverWithConfig(probe.LoggingObserverConfig{
			Logger: logger,
		}), nil
	case "noop", "":
		return &service.NoOpApplicationObserver{}, nil
	case "composite":
		return newCompositeObserver(cfg)
	default:
		return nil, fmt.Errorf("unknown observability type: %s (supported: logging, noop, composite)", cfg.Type)
	}
}

// NewLogger creates a structured logger from the observability configuration.
// Returns slog.Default() if cfg is nil.
func NewLogger(cfg *ObservabilityConfig) *slog.Logger {
	if cfg == nil {
		return slog.Default()
	}
	return NewLoggerTo(cfg, os.Stdout)
}

// NewLoggerTo is NewLogger writing to w
func NewLoggerTo(cfg *ObservabilityConfig, w io.Writer) *slog.Logger {
	logger, _ := NewReloadableLogger(cfg, w)
	return logger
}

// NewReloadableLogger is NewLoggerTo that also returns the levels the logger
// filters at. LogLevels.Apply changes them for the logger and everything
// derived from it; the format is fixed at creation.
func NewReloadableLogger(cfg *ObservabilityConfig, w io.Writer) (*slog.Logger, *LogLevels) {
	if cfg == nil {
		cfg = &ObservabilityConfig{}
	}
	levels := newLogLevels(cfg)
	return slog.New(createEventFilteringHandler(cfg.LogFormat, levels, w)), levels
}

// LogLevels holds the default and per-event levels shared by a logger's handlers
type LogLevels struct {
	base *slog.LevelVar

	mu     sync.RWMutex
	events map[string]slog.Level
}

func newLogLevels(cfg *ObservabilityConfig) *LogLevels {
	l := &LogLevels{base: new(slog.LevelVar)}
	l.Apply(cfg)
	return l
}

// Apply replaces every level with the ones in cfg
func (l *LogLevels) Apply(cfg *ObservabilityConfig) {
	if cfg == nil {
		cfg = &ObservabilityConfig{}
	}

	events := make(map[string]slog.Level)
	setEventLevel(events, probe.TokenIssuanceEvent, cfg.TokenIssuance)
	setEventLevel(events, probe.RoleAttributesMappingEvent, cfg.RoleAttributesMapping)

	l.mu.Lock()
	l.events = events
	l.mu.Unlock()
	l.base.Set(parseLogLevel(cfg.LogLevel))
}

// Default returns the level applied to records without an event override
func (l *LogLevels) Default() slog.Level {
	return l.base.Level()
}

func (l *LogLevels) event(name string) (slog.Level, bool) {
	if name == "" {
		return 0, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	level, ok := l.events[name]
	return level, ok
}

// newCompositeObserver creates a composite observer that delegates to multiple observers
func newCompositeObserver(cfg *ObservabilityConfig) (service.ApplicationObserver, error) {
	if len(cfg.Observers) == 0 {
		return nil, fmt.Errorf("composite observer requires at least one sub-observer")
	}

	var observers []service.ApplicationObserver
	for i, subCfg := range cfg.Observers {
		observer, err := NewObserver(&subCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create observer %d: %w", i, err)
		}
		observers = append(observers, observer)
	}

	return service.NewCompositeObserver(observers...), nil
}

// createEventFilteringHandler creates a handler that filters log events based on the event attribute
func createEventFilteringHandler(format string, levels *LogLevels, w io.Writer) slog.Handler {
	return &eventFilteringHandler{
		next:   createHandler(format, levels.base, w),
		levels: levels,
	}
}

// disabledLevel is above every level a probe logs at
const disabledLevel = slog.Level(1000)

func setEventLevel(levels map[string]slog.Level, event string, cfg *EventLoggingConfig) {
	if cfg == nil {
		return
	}
	if cfg.Enabled != nil && !*cfg.Enabled {
		levels[event] = disabledLevel
	} else if cfg.LogLevel != "" {
		levels[event] = parseLogLevel(cfg.LogLevel)
	}
}

// eventFilteringHandler wraps a handler and filters based on the event attribute
type eventFilteringHandler struct {
	next   slog.Handler
	levels *LogLevels

	// event is set when a logger was derived with an event attribute
	event string
}

func (h *eventFilteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Records carrying the event as a record attribute are filtered in Handle
	if eventLevel, ok := h.levels.event(h.event); ok && level < eventLevel {
		return false
	}
	return level >= h.levels.Default()
}

func (h *eventFilteringHandler) Handle(ctx context.Context, record slog.Record) error {
	eventName := h.event
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "event" {
			eventName = attr.Value.String()
			return false
		}
		return true
	})

	if eventLevel, ok := h.levels.event(eventName); ok && record.Level < eventLevel {
		return nil
	}

	return h.next.Handle(ctx, record)
}

func (h *eventFilteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	event := h.event
	for _, attr := range attrs {
		if attr.Key == "event" {
			event = attr.Value.String()
		}
	}
	return &eventFilteringHandler{
		next:   h.next.WithAttrs(attrs),
		levels: h.levels,
		event:  event,
	}
}

func (h *eventFilteringHandler) WithGroup(name string) slog.Handler {
	return &eventFilteringHandler{
		next:   h.next.WithGroup(name),
		levels: h.levels,
		event:  h.event,
	}
}

// createHandler creates a slog handler based on format and level
func createHandler(format string, level slog.Leveler, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(format) {
	case "text":
		return slog.NewTextHandler(w, opts)
	default:
		return slog.NewJSONHandler(w, opts)
	}
}

// parseLogLevel parses a log level string
func parseLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		// Default to info
		return slog.LevelInfo
	}
}
