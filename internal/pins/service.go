package pins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/pinboard/internal/commands"
	"github.com/haasonsaas/pinboard/internal/observability"
	"github.com/haasonsaas/pinboard/internal/storage"
)

const (
	// DefaultPromptTimeout bounds every reaction wait.
	DefaultPromptTimeout = 60 * time.Second
	// DefaultMaxPageSize is Discord's message length limit.
	DefaultMaxPageSize = 2000
	// DefaultAuditSchedule is how often the capacity audit runs.
	DefaultAuditSchedule = "@every 10m"
)

// Config configures the pin service.
type Config struct {
	HomeGuildID   string
	CommandPrefix string
	PromptTimeout time.Duration
	MaxPageSize   int
	// AuditSchedule is a cron spec for the capacity audit. Empty disables it.
	AuditSchedule string
	// WarmCache populates the cache for every linked channel on Start.
	WarmCache bool
}

// Service wires the pin cache, the interactive prompts, the migration
// executor and the reconciler together.
type Service struct {
	cfg       Config
	platform  Platform
	messages  storage.MessageStore
	pinboards storage.PinboardStore
	settings  storage.SettingsStore
	privacy   storage.PrivacyStore

	cache    *PinCache
	hub      *reactionHub
	registry *commands.Registry
	parser   *commands.Parser

	logger       *slog.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	newSessionID func() string

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
	audited map[string]struct{}
}

// Option configures the service.
type Option func(*Service)

// WithLogger configures the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics configures the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithTracer configures the tracer.
func WithTracer(tracer *observability.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// NewService creates a pin service. The cache is empty until Start or the
// first event touches a channel.
func NewService(cfg Config, platform Platform, stores storage.StoreSet, opts ...Option) (*Service, error) {
	if platform == nil {
		return nil, errors.New("platform is required")
	}
	if stores.Messages == nil || stores.Pinboards == nil || stores.Settings == nil || stores.Privacy == nil {
		return nil, errors.New("message, pinboard, settings and privacy stores are required")
	}
	if strings.TrimSpace(cfg.HomeGuildID) == "" {
		return nil, errors.New("home guild id is required")
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = DefaultPromptTimeout
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = commands.DefaultPrefix
	}

	s := &Service{
		cfg:          cfg,
		platform:     platform,
		messages:     stores.Messages,
		pinboards:    stores.Pinboards,
		settings:     stores.Settings,
		privacy:      stores.Privacy,
		hub:          newReactionHub(),
		logger:       slog.Default(),
		newSessionID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "pins")
	s.cache = NewPinCache(platform, s.logger, s.metrics)
	s.parser = commands.NewParser(cfg.CommandPrefix)
	s.registry = commands.NewRegistry(s.logger)
	if err := s.registerCommands(); err != nil {
		return nil, fmt.Errorf("register commands: %w", err)
	}
	return s, nil
}

// Cache returns the service's pin cache.
func (s *Service) Cache() *PinCache {
	return s.cache
}

// Start warms the cache and schedules the capacity audit.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if s.cfg.WarmCache {
		tracked, err := s.pinboards.TrackedChannels(ctx)
		if err != nil {
			return fmt.Errorf("list tracked channels: %w", err)
		}
		warmCtx := context.WithoutCancel(ctx)
		go s.cache.Warm(warmCtx, tracked)
	}

	if spec := strings.TrimSpace(s.cfg.AuditSchedule); spec != "" {
		c := cron.New()
		if _, err := c.AddFunc(spec, func() { s.RunAudit() }); err != nil {
			return fmt.Errorf("schedule audit %q: %w", spec, err)
		}
		c.Start()
		s.cron = c
	}

	s.started = true
	s.logger.Info("pin service started",
		"home_guild_id", s.cfg.HomeGuildID,
		"warm_cache", s.cfg.WarmCache,
		"audit_schedule", s.cfg.AuditSchedule)
	return nil
}

// Stop halts the audit schedule and waits for a running audit to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.started = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleReactionAdd routes a reaction to any prompt waiting on its message.
func (s *Service) HandleReactionAdd(ctx context.Context, ev ReactionEvent) {
	if ev.UserID == s.platform.SelfID() {
		return
	}
	if s.hub.publish(ev) > 0 {
		s.metrics.RecordEvent("reaction", "delivered")
	}
}

// sessionLogger tags every log line of one interactive exchange.
func (s *Service) sessionLogger(kind, channelID string) *slog.Logger {
	return s.logger.With("prompt", kind, "prompt_session", s.newSessionID(), "channel_id", channelID)
}
