// Package link is the client-side transport: it dials the relay, runs the
// send/receive goroutines, and demuxes incoming frames into a single-slot
// reply channel (ERROR/SUCCESS) versus an unbounded inbox (everything
// else) — the same split the original client's Interface.run loop makes
// between its replyQueue and its inbox queue.
//
// It is grounded on the teacher's client reconnect/session-lifecycle style
// (context.CancelFunc-scoped goroutines, bracketed log.Printf) generalized
// from a WebTransport session to a plain TCP socket.
package link

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"chatrelay/internal/queue"
	"chatrelay/internal/wire"
)

// ReplyTimeout is how long GetReply waits for a SUCCESS/ERROR reply before
// giving up. The original client's Interface blocks on its replyQueue with
// a 3-second timeout (WAIT_INTERVAL); a timeout there is treated as fatal
// to the session, since a missing reply means requests and replies are no
// longer paired.
const ReplyTimeout = 3 * time.Second

// ErrConnectFailed is returned by Dial when the server could not be
// reached within the connect deadline.
var ErrConnectFailed = errors.New("link: connect failed")

// ErrReplyTimeout is returned by GetReply when no reply arrives within
// ReplyTimeout. The caller should treat the session as broken.
var ErrReplyTimeout = errors.New("link: reply timed out")

// Conn is one client connection: its raw socket, a single-slot reply
// channel, and an unbounded inbox queue, fed by a background read loop.
type Conn struct {
	conn   net.Conn
	reply  chan wire.Frame
	inbox  *queue.FIFO[wire.Frame]
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to addr with a 5-second connect deadline, matching the
// original client's socket.settimeout(5) around connect(). On success it
// starts the background read loop and returns a ready-to-use Conn.
func Dial(addr string) (*Conn, error) {
	raw, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, errors.Wrapf(ErrConnectFailed, "dial %s: %v", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:   raw,
		reply:  make(chan wire.Frame, 1),
		inbox:  queue.New[wire.Frame](0),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.readLoop(ctx)
	return c, nil
}

// readLoop demuxes every incoming frame: ERROR/SUCCESS go to the single-
// slot reply channel, everything else (INBOX) goes to the inbox queue.
// It exits, closing done, on any read error including a clean disconnect.
func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.done)
	defer c.inbox.Close()
	for {
		frame, err := wire.ReadFrame(c.conn, wire.MaxFrameSize)
		if err != nil {
			return
		}
		switch frame.Opcode {
		case wire.OpError, wire.OpSuccess:
			select {
			case c.reply <- frame:
			case <-ctx.Done():
				return
			}
		default:
			c.inbox.Push(frame)
		}
	}
}

// Send encodes and writes one request frame.
func (c *Conn) Send(opcode wire.Opcode, fields ...string) error {
	return wire.WriteFrame(c.conn, opcode, fields...)
}

// GetReply blocks for the next SUCCESS/ERROR reply, or returns
// ErrReplyTimeout after ReplyTimeout. Exactly one GetReply should be
// outstanding per Send, mirroring the original's strict request/reply
// pairing.
func (c *Conn) GetReply() (wire.Frame, error) {
	select {
	case f := <-c.reply:
		return f, nil
	case <-time.After(ReplyTimeout):
		return wire.Frame{}, ErrReplyTimeout
	case <-c.done:
		return wire.Frame{}, io.ErrClosedPipe
	}
}

// Inbox returns the queue of asynchronously delivered INBOX frames (direct
// messages and channel broadcasts). The caller drains it at its own pace;
// it is unbounded, matching the original's inbox queue.Queue().
func (c *Conn) Inbox() *queue.FIFO[wire.Frame] { return c.inbox }

// Close tears down the connection and stops the read loop.
func (c *Conn) Close() error {
	c.cancel()
	err := c.conn.Close()
	<-c.done
	return err
}
