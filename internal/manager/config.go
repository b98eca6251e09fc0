package manager

import (
	"time"

	"github.com/rs/zerolog"

	"ollamad/internal/backend"
	"ollamad/internal/engine"
	"ollamad/internal/instance"
	"ollamad/internal/registry"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultLockTimeout   = 30 * time.Second
	defaultDrainTimeout  = 5 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Store registry.Store
	// Backends resolves a loader per model family. Nil uses backend.DefaultRegistry.
	Backends backend.Loader
	// ModelsDir is scanned by Initialize; empty skips discovery.
	ModelsDir string
	Logger    zerolog.Logger
	// Defaults is the inference configuration before per-request options.
	Defaults engine.Config

	MaxQueueDepth int
	// LockTimeout bounds the wait for exclusive access to a model.
	LockTimeout  time.Duration
	DrainTimeout time.Duration
	// GenerateTimeout caps one generation; the partial output is returned with
	// done_reason "timeout". 0 disables.
	GenerateTimeout time.Duration
	// BudgetBytes caps the summed size of loaded weights; 0 disables.
	BudgetBytes int64
	// Workers bounds concurrent backend forward passes; 0 uses NumCPU.
	Workers int
	// ContextSize and Threads are passed to loaders.
	ContextSize int
	Threads     int
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	// Apply defaults if unset
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = defaultMaxQueueDepth
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.Defaults == (engine.Config{}) {
		cfg.Defaults = engine.Defaults()
	}
	if cfg.Store == nil {
		cfg.Store = registry.NewMemoryStore()
	}
	if cfg.Backends == nil {
		cfg.Backends = backend.DefaultRegistry(cfg.ContextSize, cfg.Threads)
	}
	m := &Manager{
		store:           cfg.Store,
		modelsDir:       cfg.ModelsDir,
		log:             cfg.Logger,
		defaults:        cfg.Defaults,
		generateTimeout: cfg.GenerateTimeout,
		publisher:       noopPublisher{},
		engine:          engine.New(engine.NewPool(cfg.Workers), cfg.Logger),
		startTime:       time.Now(),
	}
	m.table = instance.New(instance.Config{
		Store:         cfg.Store,
		Backends:      cfg.Backends,
		ContextSize:   cfg.ContextSize,
		Threads:       cfg.Threads,
		MaxQueueDepth: cfg.MaxQueueDepth,
		LockTimeout:   cfg.LockTimeout,
		DrainTimeout:  cfg.DrainTimeout,
		BudgetBytes:   cfg.BudgetBytes,
		Defaults:      cfg.Defaults,
		Logger:        cfg.Logger,
		OnLoad:        m.onLoad,
		OnUnload:      m.onUnload,
	})
	return m
}
