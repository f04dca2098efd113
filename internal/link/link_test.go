package link

import (
	"net"
	"testing"
	"time"

	"chatrelay/internal/wire"
)

// startEchoServer accepts one connection and replays canned frames back
// to the client, simulating just enough of the relay for link's demux to
// be exercised without pulling in the directory/relay packages.
func startEchoServer(t *testing.T, reply func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reply(conn)
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestDialAndGetReply(t *testing.T) {
	addr := startEchoServer(t, func(conn net.Conn) {
		if _, err := wire.ReadFrame(conn, wire.MaxFrameSize); err != nil {
			return
		}
		wire.WriteFrame(conn, wire.OpSuccess, "ok\n")
	})

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Send(wire.OpSetName, "alice"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	reply, err := c.GetReply()
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if reply.Opcode != wire.OpSuccess || reply.Fields[0] != "ok\n" {
		t.Fatalf("got %+v", reply)
	}
}

func TestInboxFramesDoNotBlockReplies(t *testing.T) {
	addr := startEchoServer(t, func(conn net.Conn) {
		wire.WriteFrame(conn, wire.OpInbox, "bob: hi\n")
		time.Sleep(20 * time.Millisecond)
		wire.WriteFrame(conn, wire.OpSuccess, "done\n")
	})

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	reply, err := c.GetReply()
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if reply.Opcode != wire.OpSuccess {
		t.Fatalf("opcode = %v, want OpSuccess", reply.Opcode)
	}

	msg, ok := c.Inbox().TryPop()
	if !ok {
		t.Fatalf("expected an inbox message")
	}
	if msg.Opcode != wire.OpInbox || msg.Fields[0] != "bob: hi\n" {
		t.Fatalf("got %+v", msg)
	}
}

func TestDialFailsWhenNothingListening(t *testing.T) {
	// Bind and immediately close to get an address nothing is listening on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Dial(addr); err == nil {
		t.Fatalf("Dial to closed port should fail")
	}
}

func TestGetReplyTimesOut(t *testing.T) {
	addr := startEchoServer(t, func(conn net.Conn) {
		time.Sleep(4 * time.Second)
	})

	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	start := time.Now()
	_, err = c.GetReply()
	if err != ErrReplyTimeout {
		t.Fatalf("err = %v, want ErrReplyTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < ReplyTimeout {
		t.Fatalf("GetReply returned too early: %v", elapsed)
	}
}
