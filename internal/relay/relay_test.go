package relay

import (
	"context"
	"net"
	"testing"
	"time"

	"chatrelay/internal/directory"
	"chatrelay/internal/wire"
)

func startTestServer(t *testing.T) (srv *Server, addr string, shutdown func()) {
	t.Helper()
	dir := directory.New()
	srv = NewServer(dir)

	ctx, cancel := context.WithCancel(context.Background())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	srv.listener = ln

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.serveOn(ctx, ln)
	}()

	return srv, ln.Addr().String(), func() {
		cancel()
		ln.Close()
		<-done
	}
}

func TestServerRoundTripsSetNameReply(t *testing.T) {
	_, addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, wire.OpSetName, "alice"); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := wire.ReadFrame(conn, wire.MaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if reply.Opcode != wire.OpSuccess {
		t.Fatalf("opcode = %v, want OpSuccess", reply.Opcode)
	}
}

func TestServerClientCountTracksConnections(t *testing.T) {
	srv, addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// Prime registration by sending one request and waiting for its reply.
	wire.WriteFrame(conn, wire.OpListUsers)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := wire.ReadFrame(conn, wire.MaxFrameSize); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if n := srv.ClientCount(); n != 1 {
		t.Fatalf("ClientCount() while connected = %d, want 1", n)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for srv.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := srv.ClientCount(); n != 0 {
		t.Fatalf("ClientCount() after disconnect = %d, want 0", n)
	}
}
