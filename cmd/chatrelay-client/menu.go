package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"chatrelay/internal/link"
	"chatrelay/internal/validate"
	"chatrelay/internal/wire"
)

// session bundles a live link.Conn with the interactive prompt reader,
// mirroring the original client interface.Interface's pairing of a
// connection and stdin-driven menu loop.
type session struct {
	conn *link.Conn
	in   *bufio.Reader
	// alive is false once a request has failed fatally (reply timeout or a
	// closed connection), ending the menu loop after the current action.
	alive bool
}

func newSession(conn *link.Conn) *session {
	return &session{conn: conn, in: bufio.NewReader(os.Stdin), alive: true}
}

func (s *session) prompt(label string) string {
	fmt.Print(label)
	line, _ := s.in.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// run displays the top-level menu until the user quits or the connection
// dies, matching interface.py's choose() dispatch table.
func (s *session) run() {
	for {
		displayMenu()
		choice := s.prompt("[]<-")
		fmt.Println()

		switch choice {
		case "1":
			s.messageSubmenu()
		case "2":
			s.channelMembershipSubmenu()
		case "3":
			s.channelAdminSubmenu()
		case "4":
			s.listChannels()
		case "5":
			s.listMyChannels()
		case "6":
			s.listChannelUsers()
		case "7":
			s.listUsers()
		case "8":
			s.setName()
		case "9":
			s.emptyInbox()
		case "0", "quit", "exit":
			return
		default:
			fmt.Println("Invalid Choice")
		}

		if !s.alive {
			return
		}
	}
}

func displayMenu() {
	fmt.Println("[1] Message\n[2] Join/Leave Channels\n[3] Create/Delete Channel\n[4] List Channels\n[5] List My Channels\n[6] List Channel Users\n[7] List Users\n[8] Set Name\n[9] Empty Inbox\n[0] Quit")
}

func (s *session) messageSubmenu() {
	for {
		fmt.Println("[0] Back\n[1] Message User\n[2] Message My Channels\n[3] Message Channels")
		choice := s.prompt("[]<-")
		fmt.Println()
		switch choice {
		case "0":
			return
		case "1":
			s.messageUser()
		case "2":
			s.messageMyChannels()
		case "3":
			s.messageChannels()
		default:
			fmt.Println("Invalid Choice")
		}
		if !s.alive {
			return
		}
	}
}

func (s *session) channelMembershipSubmenu() {
	for {
		fmt.Println("[0] Back\n[1] Join Channels\n[2] Leave Channels")
		choice := s.prompt("[]<-")
		fmt.Println()
		switch choice {
		case "0":
			return
		case "1":
			s.joinChannels()
		case "2":
			s.leaveChannels()
		default:
			fmt.Println("Invalid Choice")
		}
		if !s.alive {
			return
		}
	}
}

func (s *session) channelAdminSubmenu() {
	for {
		fmt.Println("[0] Back\n[1] Create Channel\n[2] Delete Channel")
		choice := s.prompt("[]<-")
		fmt.Println()
		switch choice {
		case "0":
			return
		case "1":
			s.createChannel()
		case "2":
			s.deleteChannel()
		default:
			fmt.Println("Invalid Choice")
		}
		if !s.alive {
			return
		}
	}
}

// send writes the request and prints the decoded reply, coloring errors
// red and successes green the way the original prefixed replies with
// "Dreychat:\n". A reply timeout or transport failure marks the session
// dead so run() exits instead of hanging on the next prompt.
func (s *session) send(opcode wire.Opcode, fields ...string) {
	if len(wire.Encode(opcode, fields...)) > wire.MaxFrameSize {
		fmt.Println("Unable to send request, too long.")
		return
	}
	if err := s.conn.Send(opcode, fields...); err != nil {
		color.Red("Send failed: %v", err)
		s.alive = false
		return
	}
	reply, err := s.conn.GetReply()
	if err != nil {
		color.Red("No reply from server: %v", err)
		s.alive = false
		return
	}
	body := ""
	if len(reply.Fields) > 0 {
		body = reply.Fields[0]
	}
	if reply.Opcode == wire.OpError {
		color.Red("chatrelay:\n%s", body)
		return
	}
	color.Green("chatrelay:\n%s", body)
}

func (s *session) messageUser() {
	name := s.prompt("Username: ")
	if !validate.IsValidName(name) {
		fmt.Println("Invalid username.")
		return
	}
	msg := s.prompt("Message: ")
	s.send(wire.OpMessageUser, name, msg)
}

func (s *session) messageMyChannels() {
	msg := s.prompt("Message: ")
	s.send(wire.OpMessageMyChannels, msg)
}

func (s *session) messageChannels() {
	names := s.collectChannelNames()
	if len(names) == 0 {
		return
	}
	msg := s.prompt("Message: ")
	s.send(wire.OpMessageChannels, append(names, msg)...)
}

func (s *session) joinChannels() {
	names := s.collectChannelNames()
	if len(names) == 0 {
		return
	}
	s.send(wire.OpJoinChannels, names...)
}

func (s *session) leaveChannels() {
	names := s.collectChannelNames()
	if len(names) == 0 {
		return
	}
	s.send(wire.OpLeaveChannels, names...)
}

// collectChannelNames repeatedly prompts for channel names until the user
// enters an empty line, matching interface.py's getLabels loop for the
// multi-channel requests.
func (s *session) collectChannelNames() []string {
	var names []string
	for {
		name := s.prompt("Channel name:")
		if name == "" {
			break
		}
		names = append(names, name)
	}
	return names
}

func (s *session) createChannel() {
	name := s.prompt("Channel Name: ")
	s.send(wire.OpCreateChannel, name)
}

func (s *session) deleteChannel() {
	name := s.prompt("Channel Name: ")
	s.send(wire.OpDeleteChannel, name)
}

func (s *session) listChannels()    { s.send(wire.OpListChannels) }
func (s *session) listMyChannels()  { s.send(wire.OpListMyChannels) }
func (s *session) listUsers()       { s.send(wire.OpListUsers) }

func (s *session) listChannelUsers() {
	name := s.prompt("Channel Name: ")
	s.send(wire.OpListChannelUsers, name)
}

func (s *session) setName() {
	name := s.prompt("New Name: ")
	s.send(wire.OpSetName, name)
}

// emptyInbox drains and prints every queued INBOX message, matching
// interface.py's non-blocking emptyInbox.
func (s *session) emptyInbox() {
	count := 0
	for {
		frame, ok := s.conn.Inbox().TryPop()
		if !ok {
			break
		}
		if len(frame.Fields) > 0 {
			color.Cyan(frame.Fields[0])
		}
		count++
	}
	if count == 0 {
		fmt.Println("Inbox is empty.")
	}
}
