// Package directory is the single-owner command processor described in the
// core spec's §4.3: it holds the authoritative users/channels/membership
// state and the per-connection send queues, and is the sole mutator of
// both once a connection is registered.
//
// It is grounded on the teacher's server/internal/core/channel_state.go
// (ChannelState/userState: a mutex-protected map keyed by an opaque id,
// bijective name lookups, sorted snapshots) generalized from a websocket
// presence table to the bijective username<->connection directory the
// core spec requires, plus server/room.go's broadcast-to-members pattern
// for channel fan-out.
package directory

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"chatrelay/internal/queue"
	"chatrelay/internal/wire"
)

// ConnID is a process-unique identifier for a live connection (core spec
// §3). The relay package assigns these from a monotonic counter; Directory
// only requires that they are never reused within a run.
type ConnID uint64

// mailboxCapacity bounds each connection's outbound frame queue. The core
// spec's §5 flags the source's unbounded queues as a resource-exhaustion
// risk and recommends a bound with drop-oldest overflow; 1024 matches its
// suggested figure.
const mailboxCapacity = 1024

type channel struct {
	members map[ConnID]struct{}
}

func newChannel() *channel {
	return &channel{members: make(map[ConnID]struct{})}
}

// Directory owns the user/channel/membership tables and every connection's
// outbound mailbox. All of its exported methods acquire mu, so it is safe
// to call Register/Unregister from I/O goroutines while a single processor
// goroutine calls Process — matching the shared sendQueuesLock discipline
// of the core spec's §4.3/§5.
type Directory struct {
	mu sync.Mutex

	mailboxes map[ConnID]*queue.FIFO[[]byte]
	removals  []ConnID

	usernames    map[string]ConnID            // username -> connId
	users        map[ConnID]string            // connId -> username
	channels     map[string]*channel          // channel name -> channel
	userChannels map[ConnID]map[string]struct{} // connId -> joined channel names
}

// New returns an empty Directory.
func New() *Directory {
	return &Directory{
		mailboxes:    make(map[ConnID]*queue.FIFO[[]byte]),
		usernames:    make(map[string]ConnID),
		users:        make(map[ConnID]string),
		channels:     make(map[string]*channel),
		userChannels: make(map[ConnID]map[string]struct{}),
	}
}

// Register creates connID's outbound mailbox and returns it. Called by the
// relay's per-connection handler — the I/O side is the sole mutator of
// send-queue presence (core spec §5).
func (d *Directory) Register(connID ConnID) *queue.FIFO[[]byte] {
	mb := queue.New[[]byte](mailboxCapacity)
	d.mu.Lock()
	d.mailboxes[connID] = mb
	d.mu.Unlock()
	return mb
}

// Unregister removes connID's mailbox and queues it for directory cleanup
// on the next processed request (core spec §4.2 "Disconnect"). It is safe
// to call more than once for the same connID.
func (d *Directory) Unregister(connID ConnID) {
	d.mu.Lock()
	mb, ok := d.mailboxes[connID]
	if ok {
		delete(d.mailboxes, connID)
		d.removals = append(d.removals, connID)
	}
	d.mu.Unlock()
	if ok {
		mb.Close()
	}
}

// ClientCount returns the number of currently registered connections.
func (d *Directory) ClientCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mailboxes)
}

// Process runs the pre-sweep (§4.3) and then dispatches one (connId, frame)
// request, enqueueing a single reply frame on the sender's mailbox and any
// inbox fan-out on recipients' mailboxes. It must be called from a single
// goroutine — Process is the sole mutator of the directory tables.
func (d *Directory) Process(senderID ConnID, frame wire.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cleanLocked()
	d.registerNewUsersLocked()

	if _, ok := d.mailboxes[senderID]; !ok {
		// Sender disconnected between enqueue and processing; drop silently.
		return
	}

	reply := d.dispatchLocked(senderID, frame)
	if reply != nil {
		d.mailboxes[senderID].Push(reply)
	}
}

// cleanLocked drains the removal queue, strips removed connections from
// every map, and reclaims channels left with no members. mu must be held.
func (d *Directory) cleanLocked() {
	for _, id := range d.removals {
		if name, ok := d.users[id]; ok {
			delete(d.usernames, name)
			delete(d.users, id)
		}
		delete(d.userChannels, id)
		for _, ch := range d.channels {
			delete(ch.members, id)
		}
	}
	d.removals = d.removals[:0]

	for name, ch := range d.channels {
		if len(ch.members) == 0 {
			delete(d.channels, name)
		}
	}
}

// registerNewUsersLocked assigns the default identity (username = decimal
// connId) to any connection present in mailboxes but not yet in users.
// mu must be held.
func (d *Directory) registerNewUsersLocked() {
	for id := range d.mailboxes {
		if _, ok := d.users[id]; ok {
			continue
		}
		name := strconv.FormatUint(uint64(id), 10)
		d.users[id] = name
		d.usernames[name] = id
		d.userChannels[id] = make(map[string]struct{})
		slog.Info("connection registered", "conn_id", uint64(id), "username", name)
	}
}

func (d *Directory) sendTo(id ConnID, frame []byte) {
	if mb, ok := d.mailboxes[id]; ok {
		mb.Push(frame)
	}
}

func (d *Directory) inboxText(prefix, sender, text string) []byte {
	var body string
	if prefix != "" {
		body = prefix + "|" + sender + ": " + text + "\n"
	} else {
		body = sender + ": " + text + "\n"
	}
	return wire.Encode(wire.OpInbox, body)
}

func errorReply(text string) []byte   { return wire.Encode(wire.OpError, text) }
func successReply(text string) []byte { return wire.Encode(wire.OpSuccess, text) }

// sortedChannelMembers returns the member IDs of a channel sorted by ConnID
// ascending. Go map iteration order is random, so this gives a stable order
// without a separate ordered index; since ConnIDs come from a monotonic
// counter it follows connection order, not the order members joined.
func (d *Directory) sortedChannelMembers(ch *channel) []ConnID {
	ids := make([]ConnID, 0, len(ch.members))
	for id := range ch.members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

