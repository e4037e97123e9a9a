package server

import "github.com/pkg/errors"

// Config is the server's explicit configuration surface, populated from
// CLI flags and validated once at startup. It carries no globals; every
// field here is threaded through the constructor.
type Config struct {
	// Port to listen on; 0 lets the OS assign one (useful for tests).
	Port int
	// QueueLength sizes the buffered completion channel that finished
	// threaded-mode workers report on; the number of concurrently running
	// workers is bounded separately by MaxWorkers. The original C server passed this
	// value straight to listen(2)'s backlog argument; net.Listen does
	// not expose a portable way to set that, so here it instead bounds
	// the application-level queueing the Go rewrite introduces.
	QueueLength int
	// LogFile is the structured log sink path; empty disables logging.
	LogFile string
	// DataDir is the root directory save/load work against.
	DataDir string
	// LoadOnStart loads the most recent snapshot under DataDir at startup.
	LoadOnStart bool
	// Threaded dispatches each connection on its own goroutine, bounded
	// by MaxWorkers, instead of handling connections inline on the
	// accept loop.
	Threaded bool
	// MaxWorkers bounds concurrently running connection-handling
	// goroutines when Threaded is set.
	MaxWorkers uint
	// RequestTimeout, if non-zero, is applied to each connection via
	// SetDeadline before every request read. Zero means no deadline,
	// matching the source's unbounded behavior.
	RequestTimeout int64 // nanoseconds; time.Duration underlying type
}

func DefaultConfig() Config {
	return Config{
		Port:        0,
		QueueLength: 1000,
		LogFile:     "unagi.log",
		DataDir:     "unagi_data",
		MaxWorkers:  64,
	}
}

func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if c.QueueLength < 0 {
		return errors.New("queue length must be non-negative")
	}
	if c.Threaded && c.MaxWorkers == 0 {
		return errors.New("max workers must be positive when threaded mode is enabled")
	}
	return nil
}
