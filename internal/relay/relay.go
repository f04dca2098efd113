// Package relay is the server-side transport: it accepts TCP connections,
// assigns each one a directory.ConnID, and runs the per-connection reader
// and writer goroutines that move frames between the socket and the
// directory's single-owner processor.
//
// It is grounded on the teacher's server/client.go handleClient (goroutine
// per connection, context.CancelFunc tied to connection lifetime, bracketed
// log.Printf tags) and server/server.go's listen/Run/graceful-shutdown
// shape, translated from the teacher's HTTP+WebSocket upgrade onto a plain
// TCP accept loop per the core spec's fixed-transport design.
package relay

import (
	"context"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"chatrelay/internal/directory"
	"chatrelay/internal/wire"
)

// Server listens for TCP connections and feeds decoded frames into dir,
// one at a time, through a single processing goroutine — the actor the
// core spec's §4.3/§5 requires as the sole mutator of directory state.
type Server struct {
	dir      *directory.Directory
	nextID   atomic.Uint64
	listener net.Listener

	recv chan request

	wg sync.WaitGroup
}

type request struct {
	connID directory.ConnID
	frame  wire.Frame
}

// NewServer returns a Server backed by dir. The directory is shared with
// any other surface (e.g. the admin HTTP API) that needs read access to
// live connection counts.
func NewServer(dir *directory.Directory) *Server {
	return &Server{
		dir:  dir,
		recv: make(chan request, 256),
	}
}

// ListenAndServe binds addr, then accepts and serves connections until ctx
// is canceled. backlog is accepted for parity with the admin CLI's
// configuration surface; Go's net package has no portable way to size the
// kernel accept backlog, so it is logged but not otherwise applied.
func (s *Server) ListenAndServe(ctx context.Context, addr string, backlog int) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap(err, "relay: listen")
	}
	s.listener = ln
	log.Printf("[relay] listening on %s (requested backlog %d)", ln.Addr(), backlog)

	s.serveOn(ctx, ln)
	return nil
}

// serveOn runs the accept loop and processor over an already-bound
// listener until ctx is canceled. Split out from ListenAndServe so tests
// can bind an ephemeral port themselves and pass the listener directly.
func (s *Server) serveOn(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.wg.Add(1)
	go s.processLoop(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("[relay] accept error: %v", err)
			continue
		}
		connID := directory.ConnID(s.nextID.Add(1))
		s.wg.Add(1)
		go s.handleConn(ctx, connID, conn)
	}

	close(s.recv)
	s.wg.Wait()
}

// ClientCount reports the number of currently connected clients.
func (s *Server) ClientCount() int { return s.dir.ClientCount() }

// processLoop is the single goroutine that owns directory mutation: it
// drains recv and calls Directory.Process serially, matching the core
// spec's single-writer command-processor requirement.
func (s *Server) processLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case req, ok := <-s.recv:
			if !ok {
				return
			}
			s.dir.Process(req.connID, req.frame)
		case <-ctx.Done():
			return
		}
	}
}

// handleConn owns one connection end to end: register, run the reader and
// writer, unregister on exit. It never touches directory state directly —
// only through Register/Unregister and the shared recv channel.
func (s *Server) handleConn(ctx context.Context, connID directory.ConnID, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mailbox := s.dir.Register(connID)
	defer s.dir.Unregister(connID)

	log.Printf("[relay %d] connected from %s", connID, conn.RemoteAddr())

	// Either loop exiting closes conn, which unblocks the other: a blocked
	// Read doesn't observe ctx cancellation on its own, so cancel alone
	// can't wake the reader once the writer has quit.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		defer conn.Close()
		s.readLoop(ctx, connID, conn)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		defer conn.Close()
		s.writeLoop(ctx, conn, mailbox)
	}()
	wg.Wait()

	log.Printf("[relay %d] disconnected", connID)
}

func (s *Server) readLoop(ctx context.Context, connID directory.ConnID, conn net.Conn) {
	for {
		frame, err := wire.ReadFrame(conn, wire.MaxFrameSize)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[relay %d] read: %v", connID, err)
			}
			return
		}
		select {
		case s.recv <- request{connID: connID, frame: frame}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn net.Conn, mailbox interface {
	Pop(context.Context) ([]byte, bool)
}) {
	for {
		frame, ok := mailbox.Pop(ctx)
		if !ok {
			return
		}
		if _, err := conn.Write(frame); err != nil {
			return
		}
	}
}

