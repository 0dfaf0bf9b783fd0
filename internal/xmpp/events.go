package xmpp

import (
	"strings"

	"github.com/cptaffe/znc-xmpp/internal/metrics"
)

// The methods below translate IRC events into XMPP stanzas fanned out to
// the account's sessions. The bouncer side calls them from its IRC event
// handlers; everything here is addressed by account username plus the
// bridge interfaces, so the gateway never reaches back into IRC state.

// sessionsInRoom returns the account's sessions holding a confirmed
// membership for roomKey, paired with that membership.
func (srv *Server) sessionsInRoom(username, roomKey string) []*Session {
	var out []*Session
	for _, session := range srv.directory.AccountSessions(username) {
		if m := session.Membership(roomKey); m != nil && !m.Pending {
			out = append(out, session)
		}
	}
	return out
}

// OnChanMessage delivers an IRC channel message as a groupchat message to
// every session in the room. The account's own lines come back attributed
// to each session's in-room occupant JID.
func (srv *Server) OnChanMessage(username string, network Network, channelName, nick, text string) {
	metrics.IRCEvents.WithLabelValues("chan-message").Inc()

	roomKey := RoomKey(channelName, network.Name())
	room := ChannelJID(channelName, network.Name(), srv.ServerName())
	self := isSelfNick(network, nick)

	for _, session := range srv.sessionsInRoom(username, roomKey) {
		message := NewStanza("message")
		message.SetAttribute("id", newStanzaID())
		message.SetAttribute("type", "groupchat")
		if self {
			// The account's own line: self-attributed, addressed to the
			// session's occupant JID.
			occupant := session.Membership(roomKey).JID
			message.SetAttribute("from", occupant.String())
			message.SetAttribute("to", occupant.String())
		} else {
			message.SetAttribute("from", room.WithResource(nick).String())
		}
		message.NewChild("body").SetText(text)
		session.Reply(message, nil)
	}
}

// OnPrivMessage delivers an IRC private message as a chat message to every
// session of the account. Lines the account itself sent (echoed back via
// another client) arrive from the session's own JID.
func (srv *Server) OnPrivMessage(username string, network Network, nick, text string) {
	metrics.IRCEvents.WithLabelValues("priv-message").Inc()

	self := isSelfNick(network, nick)
	contact := UserJID(nick, network.Name(), srv.ServerName())

	for _, session := range srv.directory.AccountSessions(username) {
		message := NewStanza("message")
		message.SetAttribute("id", newStanzaID())
		message.SetAttribute("type", "chat")
		if self {
			message.SetAttribute("from", session.JID().String())
		} else {
			message.SetAttribute("from", contact.String())
		}
		message.NewChild("body").SetText(text)
		session.Reply(message, nil)
	}
}

// OnJoin announces a new occupant. The account's own join is suppressed:
// the join sequence triggered by names-complete covers it.
func (srv *Server) OnJoin(username string, network Network, channelName, nick string) {
	metrics.IRCEvents.WithLabelValues("join").Inc()

	if isSelfNick(network, nick) {
		return
	}

	roomKey := RoomKey(channelName, network.Name())
	room := ChannelJID(channelName, network.Name(), srv.ServerName())
	contact := UserJID(nick, network.Name(), srv.ServerName())

	for _, session := range srv.sessionsInRoom(username, roomKey) {
		presence := NewStanza("presence")
		presence.SetAttribute("id", newStanzaID())
		presence.SetAttribute("from", room.WithResource(nick).String())
		x := presence.NewChild("x", nsMUCUser)
		item := x.NewChild("item")
		item.SetAttribute("affiliation", "member")
		item.SetAttribute("role", "participant")
		session.Reply(presence, nil)

		available := NewStanza("presence")
		available.SetAttribute("id", newStanzaID())
		available.SetAttribute("from", contact.String())
		session.Reply(available, nil)
	}
}

// OnPart announces an occupant leaving; reason travels as the presence
// status text. The account's own part tears down the memberships.
func (srv *Server) OnPart(username string, network Network, channelName, nick, reason string) {
	metrics.IRCEvents.WithLabelValues("part").Inc()
	srv.occupantGone(username, network, channelName, nick, reason, "")
}

// OnKick announces a kick with MUC status code 307; a kicked account loses
// its memberships the same way a part does.
func (srv *Server) OnKick(username string, network Network, channelName, nick, reason string) {
	metrics.IRCEvents.WithLabelValues("kick").Inc()
	srv.occupantGone(username, network, channelName, nick, reason, "307")
}

func (srv *Server) occupantGone(username string, network Network, channelName, nick, reason, statusCode string) {
	roomKey := RoomKey(channelName, network.Name())
	room := ChannelJID(channelName, network.Name(), srv.ServerName())
	self := isSelfNick(network, nick)

	for _, session := range srv.sessionsInRoom(username, roomKey) {
		from := room.WithResource(nick)
		if self {
			from = session.Membership(roomKey).JID
		}

		presence := NewStanza("presence")
		presence.SetAttribute("id", newStanzaID())
		presence.SetAttribute("type", "unavailable")
		presence.SetAttribute("from", from.String())
		x := presence.NewChild("x", nsMUCUser)
		item := x.NewChild("item")
		item.SetAttribute("affiliation", "member")
		item.SetAttribute("role", "none")
		if statusCode != "" {
			x.NewChild("status").SetAttribute("code", statusCode)
		}
		if self {
			x.NewChild("status").SetAttribute("code", "110")
		}
		if reason != "" {
			presence.NewChild("status").SetText(reason)
		}
		session.Reply(presence, nil)

		if self {
			session.Lock()
			delete(session.rooms, roomKey)
			session.Unlock()
		}
	}
}

// OnQuit fans out a quit as an unavailable occupant presence per room the
// nick was in, plus an unavailable contact presence.
func (srv *Server) OnQuit(username string, network Network, nick, reason string) {
	metrics.IRCEvents.WithLabelValues("quit").Inc()

	contact := UserJID(nick, network.Name(), srv.ServerName())

	for _, session := range srv.directory.AccountSessions(username) {
		for _, m := range session.Memberships() {
			if m.Pending || m.Network.Name() != network.Name() {
				continue
			}
			if !m.Channel.HasNick(nick) {
				continue
			}
			presence := NewStanza("presence")
			presence.SetAttribute("id", newStanzaID())
			presence.SetAttribute("type", "unavailable")
			presence.SetAttribute("from", m.JID.Bare().WithResource(nick).String())
			x := presence.NewChild("x", nsMUCUser)
			item := x.NewChild("item")
			item.SetAttribute("affiliation", "member")
			item.SetAttribute("role", "none")
			if reason != "" {
				presence.NewChild("status").SetText(reason)
			}
			session.Reply(presence, nil)
		}

		unavailable := NewStanza("presence")
		unavailable.SetAttribute("id", newStanzaID())
		unavailable.SetAttribute("type", "unavailable")
		unavailable.SetAttribute("from", contact.String())
		session.Reply(unavailable, nil)
	}
}

// OnTopic relays a topic change as a groupchat subject message.
func (srv *Server) OnTopic(username string, network Network, channelName, setter, topic string) {
	metrics.IRCEvents.WithLabelValues("topic").Inc()

	roomKey := RoomKey(channelName, network.Name())
	room := ChannelJID(channelName, network.Name(), srv.ServerName())

	for _, session := range srv.sessionsInRoom(username, roomKey) {
		subject := NewStanza("message")
		subject.SetAttribute("id", newStanzaID())
		subject.SetAttribute("type", "groupchat")
		if setter != "" {
			subject.SetAttribute("from", room.WithResource(setter).String())
		} else {
			subject.SetAttribute("from", room.String())
		}
		subject.NewChild("subject").SetText(topic)
		session.Reply(subject, nil)
	}
}

// OnNamesComplete resumes any join suspended on the channel's names list.
func (srv *Server) OnNamesComplete(username string, network Network, channelName string) {
	metrics.IRCEvents.WithLabelValues("names-complete").Inc()

	roomKey := RoomKey(channelName, network.Name())
	for _, session := range srv.directory.AccountSessions(username) {
		session.CompletePendingJoin(roomKey)
	}
}

// OnNumeric surfaces IRC error numerics (4xx and 5xx) to the account as a
// chat message from the gateway domain. Other numerics are dropped.
func (srv *Server) OnNumeric(username string, network Network, code string, params []string) {
	if len(code) != 3 || (code[0] != '4' && code[0] != '5') {
		return
	}
	metrics.IRCEvents.WithLabelValues("numeric-error").Inc()

	body := strings.Join(params, " ")
	if body == "" {
		return
	}

	for _, session := range srv.directory.AccountSessions(username) {
		message := NewStanza("message")
		message.SetAttribute("id", newStanzaID())
		message.SetAttribute("type", "chat")
		message.SetAttribute("from", srv.ServerName())
		message.NewChild("body").SetText(network.Name() + ": " + body)
		session.Reply(message, nil)
	}
}

// OnDisconnect marks every room on the network gone for the account's
// sessions when the IRC connection drops.
func (srv *Server) OnDisconnect(username string, network Network) {
	metrics.IRCEvents.WithLabelValues("disconnect").Inc()

	for _, session := range srv.directory.AccountSessions(username) {
		for roomKey, m := range session.Memberships() {
			if m.Network.Name() != network.Name() {
				continue
			}
			presence := NewStanza("presence")
			presence.SetAttribute("id", newStanzaID())
			presence.SetAttribute("type", "unavailable")
			presence.SetAttribute("from", m.JID.String())
			x := presence.NewChild("x", nsMUCUser)
			item := x.NewChild("item")
			item.SetAttribute("affiliation", "member")
			item.SetAttribute("role", "none")
			x.NewChild("status").SetAttribute("code", "110")
			session.Reply(presence, nil)

			wasPending := m.Pending
			session.Lock()
			delete(session.rooms, roomKey)
			session.Unlock()
			if wasPending {
				metrics.PendingJoins.Dec()
			}
		}
	}
}
