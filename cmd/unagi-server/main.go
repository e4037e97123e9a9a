// Command unagi-server runs the document repository's TCP front end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taura/unagi/server"
	"github.com/taura/unagi/unagidb"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("unagi-server", flag.ContinueOnError)

	port := fs.Int("p", 0, "port to listen on; 0 picks an ephemeral port")
	queueLen := fs.Int("q", 1000, "bound on queued/in-flight work")
	logFile := fs.String("l", "unagi.log", "log file path; empty disables logging")
	dataDir := fs.String("d", "unagi_data", "directory for save/load snapshots")
	loadOnStart := fs.Bool("L", false, "load the most recent snapshot under -d at startup")
	threaded := fs.Bool("t", false, "dispatch each connection on its own goroutine")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: unagi-server [flags]\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	logger, closeLog, err := newLogger(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unagi-server: opening log file: %v\n", err)
		return 1
	}
	defer closeLog()

	defer func() {
		if r := recover(); r != nil {
			level.Error(logger).Log("msg", "fatal internal error", "panic", r)
			closeLog()
			panic(r)
		}
	}()

	reg := prometheus.NewRegistry()
	repoMetrics := unagidb.NewMetrics(reg)
	repo, err := unagidb.NewRepository(unagidb.DefaultConfig(), repoMetrics)
	if err != nil {
		level.Error(logger).Log("msg", "creating repository", "err", err)
		return 1
	}

	if *loadOnStart {
		if err := repo.Load(*dataDir); err != nil {
			level.Error(logger).Log("msg", "loading snapshot", "dir", *dataDir, "err", err)
			return 1
		}
		level.Info(logger).Log("msg", "loaded snapshot", "dir", *dataDir, "docs", repo.NDocs())
	}

	cfg := server.DefaultConfig()
	cfg.Port = *port
	cfg.QueueLength = *queueLen
	cfg.LogFile = *logFile
	cfg.DataDir = *dataDir
	cfg.LoadOnStart = *loadOnStart
	cfg.Threaded = *threaded

	if err := cfg.Validate(); err != nil {
		level.Error(logger).Log("msg", "invalid configuration", "err", err)
		return 1
	}

	srv := server.New(cfg, repo, logger, server.NewMetrics(reg))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := srv.ListenAndServe(ctx); err != nil {
		level.Error(logger).Log("msg", "server exited with error", "err", err)
		return 1
	}
	return 0
}

// newLogger opens the logfmt log sink at path, or a no-op logger if
// path is empty. The returned closer must be called before exit so any
// buffered output is flushed.
func newLogger(path string) (log.Logger, func(), error) {
	if path == "" {
		return log.NewNopLogger(), func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(f))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	return logger, func() { _ = f.Close() }, nil
}
