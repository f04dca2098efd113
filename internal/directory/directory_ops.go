package directory

import (
	"fmt"
	"sort"
	"strings"

	"chatrelay/internal/validate"
	"chatrelay/internal/wire"
)

// dispatchLocked implements the per-opcode semantics of the core spec's
// §4.3, grounded line-for-line on the Python original's
// server/interface.py processRequest. mu must be held by the caller
// (Process).
func (d *Directory) dispatchLocked(senderID ConnID, frame wire.Frame) []byte {
	switch frame.Opcode {
	case wire.OpSetName:
		return d.handleSetName(senderID, frame.Fields)
	case wire.OpMessageUser:
		return d.handleMessageUser(senderID, frame.Fields)
	case wire.OpMessageMyChannels:
		return d.handleMessageMyChannels(senderID, frame.Fields)
	case wire.OpMessageChannels:
		return d.handleMessageChannels(senderID, frame.Fields)
	case wire.OpJoinChannels:
		return d.handleJoinChannels(senderID, frame.Fields)
	case wire.OpLeaveChannels:
		return d.handleLeaveChannels(senderID, frame.Fields)
	case wire.OpCreateChannel:
		return d.handleCreateChannel(senderID, frame.Fields)
	case wire.OpDeleteChannel:
		return d.handleDeleteChannel(senderID, frame.Fields)
	case wire.OpListChannels:
		return d.handleListChannels()
	case wire.OpListMyChannels:
		return d.handleListMyChannels(senderID)
	case wire.OpListChannelUsers:
		return d.handleListChannelUsers(frame.Fields)
	case wire.OpListUsers:
		return d.handleListUsers()
	default:
		// Redesigned per the core spec's open question: the original
		// silently drops unknown opcodes, leaving the client blocked until
		// its reply-slot timeout. Replying keeps the request/reply pairing
		// whole even for a client/server version mismatch.
		return errorReply(fmt.Sprintf("Unknown request %d.\n", uint32(frame.Opcode)))
	}
}

func (d *Directory) handleSetName(senderID ConnID, fields []string) []byte {
	if len(fields) != 1 {
		return errorReply("Malformed request.\n")
	}
	name := fields[0]

	if !validate.IsValidName(name) {
		return errorReply(fmt.Sprintf("Name %s is invalid.\n", name))
	}
	if _, taken := d.usernames[name]; taken {
		return errorReply(fmt.Sprintf("Name %s is in use.\n", name))
	}

	old := d.users[senderID]
	delete(d.usernames, old)
	d.usernames[name] = senderID
	d.users[senderID] = name
	return successReply(fmt.Sprintf("Name changed to %s.\n", name))
}

func (d *Directory) handleMessageUser(senderID ConnID, fields []string) []byte {
	if len(fields) != 2 {
		return errorReply("Malformed request.\n")
	}
	name, text := fields[0], fields[1]

	if !validate.IsValidName(name) {
		return errorReply(fmt.Sprintf("Name %s is invalid.\n", name))
	}
	recipientID, ok := d.usernames[name]
	if !ok {
		return errorReply(fmt.Sprintf("User %s does not exist.\n", name))
	}
	if recipientID == senderID {
		return errorReply("Cannot message yourself.\n")
	}

	sender := d.users[senderID]
	d.sendTo(recipientID, d.inboxText("", sender, text))
	return successReply("Message sent.\n")
}

func (d *Directory) handleMessageMyChannels(senderID ConnID, fields []string) []byte {
	if len(fields) != 1 {
		return errorReply("Malformed request.\n")
	}
	text := fields[0]

	joined := d.userChannels[senderID]
	if len(joined) == 0 {
		return errorReply("You aren't in any channels.\n")
	}

	sender := d.users[senderID]
	for name := range joined {
		ch := d.channels[name]
		if ch == nil {
			continue
		}
		for _, memberID := range d.sortedChannelMembers(ch) {
			if memberID == senderID {
				continue
			}
			d.sendTo(memberID, d.inboxText(name, sender, text))
		}
	}
	return successReply("Channels messaged.\n")
}

func (d *Directory) handleMessageChannels(senderID ConnID, fields []string) []byte {
	// Wire contract is name*, text: zero or more channel names (unlike
	// JOIN_CHANNELS/LEAVE_CHANNELS's name+) plus exactly one message field,
	// so only the message field is required.
	if len(fields) < 1 {
		return errorReply("Malformed request.\n")
	}
	names, text := fields[:len(fields)-1], fields[len(fields)-1]

	var errLines strings.Builder
	sender := d.users[senderID]
	for _, name := range names {
		switch {
		case !validate.IsValidName(name):
			fmt.Fprintf(&errLines, "Channel name %s is invalid.\n", name)
		default:
			ch, ok := d.channels[name]
			if !ok {
				fmt.Fprintf(&errLines, "%s does not exist.\n", name)
				continue
			}
			for _, memberID := range d.sortedChannelMembers(ch) {
				if memberID == senderID {
					continue
				}
				d.sendTo(memberID, d.inboxText(name, sender, text))
			}
		}
	}

	if errLines.Len() > 0 {
		return errorReply(errLines.String())
	}
	return successReply("Channels Messaged.\n")
}

func (d *Directory) handleJoinChannels(senderID ConnID, fields []string) []byte {
	if len(fields) < 1 {
		return errorReply("Malformed request.\n")
	}

	var errLines strings.Builder
	for _, name := range fields {
		switch {
		case !validate.IsValidName(name):
			fmt.Fprintf(&errLines, "Channel name %s is invalid.\n", name)
		default:
			ch, ok := d.channels[name]
			if !ok {
				fmt.Fprintf(&errLines, "%s does not exist.\n", name)
				continue
			}
			if _, already := ch.members[senderID]; already {
				fmt.Fprintf(&errLines, "You are already listening to %s.\n", name)
				continue
			}
			ch.members[senderID] = struct{}{}
			d.userChannels[senderID][name] = struct{}{}
		}
	}

	if errLines.Len() > 0 {
		return errorReply(errLines.String())
	}
	return successReply("Joined Channel(s).\n")
}

func (d *Directory) handleLeaveChannels(senderID ConnID, fields []string) []byte {
	if len(fields) < 1 {
		return errorReply("Malformed request.\n")
	}

	var errLines strings.Builder
	joined := d.userChannels[senderID]
	for _, name := range fields {
		switch {
		case !validate.IsValidName(name):
			fmt.Fprintf(&errLines, "Channel name %s is invalid.\n", name)
		default:
			if _, member := joined[name]; !member {
				fmt.Fprintf(&errLines, "You are not listening to %s.\n", name)
				continue
			}
			delete(joined, name)
			if ch, ok := d.channels[name]; ok {
				delete(ch.members, senderID)
			}
		}
	}

	if errLines.Len() > 0 {
		return errorReply(errLines.String())
	}
	return successReply("Left Channel(s).\n")
}

func (d *Directory) handleCreateChannel(senderID ConnID, fields []string) []byte {
	if len(fields) != 1 {
		return errorReply("Malformed request.\n")
	}
	name := fields[0]

	if !validate.IsValidName(name) {
		return errorReply(fmt.Sprintf("Channel name %s is invalid.\n", name))
	}
	if _, exists := d.channels[name]; exists {
		return errorReply(fmt.Sprintf("%s is already in use.\n", name))
	}

	ch := newChannel()
	ch.members[senderID] = struct{}{}
	d.channels[name] = ch
	d.userChannels[senderID][name] = struct{}{}
	return successReply("Channel created.\n")
}

func (d *Directory) handleDeleteChannel(senderID ConnID, fields []string) []byte {
	if len(fields) != 1 {
		return errorReply("Malformed request.\n")
	}
	name := fields[0]

	if !validate.IsValidName(name) {
		return errorReply(fmt.Sprintf("Channel name %s is invalid.\n", name))
	}
	ch, ok := d.channels[name]
	if !ok {
		return errorReply(fmt.Sprintf("%s does not exist.\n", name))
	}
	if _, member := ch.members[senderID]; !member {
		return errorReply(fmt.Sprintf("You are not part of %s.\n", name))
	}

	delete(d.channels, name)
	for _, joined := range d.userChannels {
		delete(joined, name)
	}
	return successReply("Channel deleted.\n")
}

func (d *Directory) handleListChannels() []byte {
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return errorReply("No channels exist.\n")
	}
	var body strings.Builder
	for i, name := range names {
		fmt.Fprintf(&body, "%d. %s\n", i+1, name)
	}
	return successReply(body.String())
}

func (d *Directory) handleListMyChannels(senderID ConnID) []byte {
	joined := d.userChannels[senderID]
	names := make([]string, 0, len(joined))
	for name := range joined {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return errorReply("You are not listening to any channels.\n")
	}
	var body strings.Builder
	for i, name := range names {
		fmt.Fprintf(&body, "%d. %s\n", i+1, name)
	}
	return successReply(body.String())
}

func (d *Directory) handleListChannelUsers(fields []string) []byte {
	if len(fields) != 1 {
		return errorReply("Malformed request.\n")
	}
	name := fields[0]

	if !validate.IsValidName(name) {
		return errorReply(fmt.Sprintf("Channel name %s is invalid.\n", name))
	}
	ch, ok := d.channels[name]
	if !ok {
		return errorReply(fmt.Sprintf("%s does not exist.\n", name))
	}

	members := d.sortedChannelMembers(ch)
	if len(members) == 0 {
		return errorReply(fmt.Sprintf("%s is empty.\n", name))
	}
	var body strings.Builder
	for i, id := range members {
		fmt.Fprintf(&body, "%d. %s\n", i+1, d.users[id])
	}
	return successReply(body.String())
}

func (d *Directory) handleListUsers() []byte {
	ids := make([]ConnID, 0, len(d.users))
	for id := range d.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var body strings.Builder
	for i, id := range ids {
		fmt.Fprintf(&body, "%d. %s\n", i+1, d.users[id])
	}
	return successReply(body.String())
}
