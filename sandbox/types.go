package sandbox

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
)

const (
	// DefaultMaxCallStackSize bounds JavaScript recursion depth
	DefaultMaxCallStackSize = 1024
	// DefaultMaxDepth bounds nesting of marshalled values
	DefaultMaxDepth = 64
	// DefaultMaxNodes bounds the values visited by one marshalling walk
	DefaultMaxNodes = 1 << 20
	// DefaultProgramCacheSize is the number of compiled scripts kept per runtime
	DefaultProgramCacheSize = 128
)

// Config defines runtime configuration
type Config struct {
	Timeout          time.Duration  // Per-call wall-clock budget, 0 = unbounded
	MaxCallStackSize int            // 0 = engine default
	MaxDepth         int            // Marshalling depth limit
	MaxNodes         int            // Values one marshalling walk may visit
	ProgramCacheSize int            // 0 disables the compiled program cache
	Console          bool           // Install console.* routed to Logger
	ConsoleHook      func(LogEntry) // Optional extra sink for console output

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// Options is the host-visible runtime configuration accepted by
// createRuntime. The zero value means engine defaults.
type Options struct {
	Timeout time.Duration // 0 = unbounded
}

// Apply overlays o on cfg. A nil receiver leaves cfg unchanged.
func (o *Options) Apply(cfg Config) Config {
	if o == nil {
		return cfg
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	return cfg
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		Timeout:          0,
		MaxCallStackSize: DefaultMaxCallStackSize,
		MaxDepth:         DefaultMaxDepth,
		MaxNodes:         DefaultMaxNodes,
		ProgramCacheSize: DefaultProgramCacheSize,
		Console:          true,
	}
}

// LogEntry is a console call made inside a sandbox
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}
