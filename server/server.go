// Package server implements the TCP front end: an accept loop that
// dispatches each connection to the wire protocol codec and the
// document repository, with a bounded worker pool for threaded mode
// and a completion channel for reaping finished workers.
package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/taura/unagi/pkg/boundedwaitgroup"
	"github.com/taura/unagi/unagidb"
	"github.com/taura/unagi/wire"
)

// Server owns one repository, one listener, and the goroutines that
// drive connections against it.
type Server struct {
	cfg     Config
	repo    *unagidb.Repository
	logger  log.Logger
	metrics *Metrics

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}

	// activeConns and accepting mirror the accept loop's own active/
	// continues bookkeeping for lock-free external reads (status
	// reporting) without reaching into the Prometheus registry. They
	// are written only by the accept loop goroutine.
	activeConns *atomic.Int32
	accepting   *atomic.Bool
}

func New(cfg Config, repo *unagidb.Repository, logger log.Logger, metrics *Metrics) *Server {
	return &Server{
		cfg:         cfg,
		repo:        repo,
		logger:      logger,
		metrics:     metrics,
		ready:       make(chan struct{}),
		activeConns: atomic.NewInt32(0),
		accepting:   atomic.NewBool(false),
	}
}

// ActiveConnections returns the current number of connections being
// served. Safe to call concurrently with ListenAndServe.
func (s *Server) ActiveConnections() int32 {
	return s.activeConns.Load()
}

// Accepting reports whether the accept loop is still taking new
// connections (false once a quit request or shutdown has landed).
func (s *Server) Accepting() bool {
	return s.accepting.Load()
}

// Addr blocks until the listener is bound and returns its address.
// Mainly useful in tests that start the server with Port 0.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr()
}

// ListenAndServe binds the configured port and runs the accept loop
// until ctx is canceled or a client sends quit. It returns once every
// in-flight connection has finished.
//
// The accept loop is a single goroutine owning two pieces of mutable
// state, continues and active: continues stops it from consuming new
// connections once a quit request or ctx cancellation lands, and
// active counts connections still being served so the loop keeps
// draining completions after it stops accepting. Both are only ever
// touched inside the loop's own select cases, so there is no race to
// guard against even though work is dispatched onto other goroutines.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return errors.Wrap(err, "listening")
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	level.Info(s.logger).Log("msg", "listening", "addr", ln.Addr().String())

	accepted := make(chan net.Conn)
	acceptErrs := make(chan error, 1)
	stopAccept := make(chan struct{})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case acceptErrs <- err:
				default:
				}
				return
			}
			select {
			case accepted <- conn:
			case <-stopAccept:
				conn.Close()
				return
			}
		}
	}()

	queueLen := s.cfg.QueueLength
	if queueLen <= 0 {
		queueLen = 1
	}
	completions := make(chan bool, queueLen)

	workers := s.cfg.MaxWorkers
	if workers == 0 {
		workers = 1
	}
	wg := boundedwaitgroup.New(workers)

	continues := true
	active := 0
	stoppedAccepting := false
	s.accepting.Store(true)

	stopAcceptingNow := func() {
		if stoppedAccepting {
			return
		}
		stoppedAccepting = true
		s.accepting.Store(false)
		close(stopAccept)
		_ = ln.Close()
	}

	for continues || active > 0 {
		var acceptCh <-chan net.Conn
		if continues {
			acceptCh = accepted
		}

		select {
		case conn := <-acceptCh:
			active++
			s.activeConns.Inc()
			s.metrics.ActiveConnections.Inc()
			if s.cfg.Threaded {
				wg.Add(1)
				go func(c net.Conn) {
					defer wg.Done()
					s.metrics.WorkersBusy.Inc()
					quit := s.handleConnection(c)
					s.metrics.WorkersBusy.Dec()
					completions <- quit
				}(conn)
			} else {
				quit := s.handleConnection(conn)
				active--
				s.activeConns.Dec()
				s.metrics.ActiveConnections.Dec()
				if quit {
					continues = false
				}
			}

		case quit := <-completions:
			active--
			s.activeConns.Dec()
			s.metrics.ActiveConnections.Dec()
			if quit {
				continues = false
			}

		case err := <-acceptErrs:
			level.Error(s.logger).Log("msg", "accept failed", "err", err)
			continues = false

		case <-ctx.Done():
			level.Info(s.logger).Log("msg", "shutdown requested")
			continues = false
		}

		if !continues {
			stopAcceptingNow()
		}
	}

	wg.Wait()
	level.Info(s.logger).Log("msg", "stopped")
	return nil
}

// handleConnection runs the request/response loop for one connection
// until the client disconnects, a protocol error occurs, or a verb
// ends the connection. It reports whether the client asked the whole
// server to quit.
func (s *Server) handleConnection(conn net.Conn) (quitServer bool) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	level.Debug(s.logger).Log("msg", "connection accepted", "remote", remote)

	r := bufio.NewReader(conn)
	for {
		if s.cfg.RequestTimeout > 0 {
			_ = conn.SetDeadline(time.Now().Add(time.Duration(s.cfg.RequestTimeout)))
		}

		req, err := wire.ReadRequest(r)
		if err != nil {
			level.Debug(s.logger).Log("msg", "closing connection", "remote", remote, "err", err)
			return false
		}

		continueConn, quit := s.dispatch(conn, req, remote)
		if quit {
			return true
		}
		if !continueConn {
			return false
		}
	}
}

// dispatch executes one request and writes its response. It returns
// whether the connection should keep reading requests, and whether
// the client requested a full server shutdown.
func (s *Server) dispatch(w io.Writer, req *wire.Request, remote string) (continueConn, quitServer bool) {
	switch req.Verb {
	case wire.VerbPut:
		idx := s.repo.Add(req.Label, req.Data)
		s.metrics.CommandsProcessed.WithLabelValues("put").Inc()
		level.Info(s.logger).Log("msg", "put", "remote", remote, "doc", idx,
			"label_bytes", len(req.Label), "data_bytes", len(req.Data))
		return wire.WriteOK(w, idx) == nil, false

	case wire.VerbGetc:
		c := s.repo.Count(req.Query)
		s.metrics.CommandsProcessed.WithLabelValues("getc").Inc()
		return wire.WriteOK(w, c) == nil, false

	case wire.VerbGet:
		s.metrics.CommandsProcessed.WithLabelValues("get").Inc()
		occs := drainOccurrences(s.repo.Query(req.Query))
		if wire.WriteOK(w, len(occs)) != nil {
			return false, false
		}
		for _, o := range occs {
			label := s.repo.Label(o.Document)
			snippet := s.repo.Snippet(o.Document, o.Offset, len(req.Query))
			if wire.WriteGetRecord(w, label, o.Offset, snippet) != nil {
				return false, false
			}
		}
		return wire.WriteTerminator(w) == nil, false

	case wire.VerbDump:
		s.metrics.CommandsProcessed.WithLabelValues("dump").Inc()
		cur := s.repo.Dump()
		if wire.WriteOK(w, cur.Len()) != nil {
			return false, false
		}
		for {
			d, ok := cur.Next()
			if !ok {
				break
			}
			label := s.repo.Label(d)
			data := s.repo.Data(d)
			if wire.WriteDumpRecord(w, label, data) != nil {
				return false, false
			}
		}
		return wire.WriteTerminator(w) == nil, false

	case wire.VerbDumpc:
		s.metrics.CommandsProcessed.WithLabelValues("dumpc").Inc()
		return wire.WriteOK(w, s.repo.NDocs()) == nil, false

	case wire.VerbSave:
		s.metrics.CommandsProcessed.WithLabelValues("save").Inc()
		if _, err := s.repo.Save(s.cfg.DataDir); err != nil {
			level.Error(s.logger).Log("msg", "save failed", "remote", remote, "err", err)
			return wire.WriteNG(w, "save failed") == nil, false
		}
		return wire.WriteOK(w, 1) == nil, false

	case wire.VerbDiscon:
		s.metrics.CommandsProcessed.WithLabelValues("discon").Inc()
		return false, false

	case wire.VerbQuit:
		s.metrics.CommandsProcessed.WithLabelValues("quit").Inc()
		level.Info(s.logger).Log("msg", "quit received", "remote", remote)
		return false, true

	default:
		return false, false
	}
}

func drainOccurrences(cur *unagidb.QueryCursor) []unagidb.Occurrence {
	var out []unagidb.Occurrence
	for {
		o, ok := cur.Next()
		if !ok {
			break
		}
		out = append(out, o)
	}
	return out
}
