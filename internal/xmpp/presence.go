package xmpp

import (
	"strconv"
	"time"

	"github.com/cptaffe/znc-xmpp/internal/metrics"
)

// handlePresence implements presence dispatch: priority bookkeeping and
// room-list replay for initial presence, the MUC join/leave protocol for
// room JIDs, and plain echoes for everything else this gateway does not
// bridge. Unrecognized presence is ignored without reply.
func (s *Session) handlePresence(stanza *Stanza) {
	presenceType := stanza.GetAttribute("type")
	rawTo := stanza.GetAttribute("to")

	switch presenceType {
	case "":
		if rawTo == "" {
			s.initialPresence(stanza)
			return
		}
		to := ParseJID(rawTo)
		if !to.IsLocal(s.srv.ServerName()) {
			return // ignore: we only bridge our own domain
		}
		if x := stanza.ChildByName("x", nsMUC); x != nil {
			s.handleRoomJoin(stanza, to, x)
			return
		}
		// Directed available presence to a contact; echoed without
		// bridging (full subscription semantics are out of scope).
		s.echoPresence(stanza, "")

	case "unavailable":
		if rawTo == "" {
			// Bare unavailable: the connection is considered away.
			s.echoPresence(stanza, "unavailable")
			return
		}
		to := ParseJID(rawTo)
		if to.IsLocal(s.srv.ServerName()) && to.IsIRCChannel() {
			s.handleRoomLeave(stanza, to)
			return
		}
		s.echoPresence(stanza, "unavailable")

	case "available":
		s.echoPresence(stanza, "available")
	}
}

// initialPresence stores a valid priority, echoes the presence, and then
// re-sends a room invite for every channel currently joined so the client's
// room list self-populates.
func (s *Session) initialPresence(stanza *Stanza) {
	presence := NewStanza("presence")

	if priorityChild := stanza.ChildByName("priority"); priorityChild != nil {
		if text := priorityChild.TextChild(); text != nil {
			if priority, err := strconv.Atoi(text.Text); err == nil &&
				priority >= -128 && priority <= 127 {
				s.Lock()
				s.priority = priority
				s.Unlock()
			}
		}
		presence.NewChild("priority").SetText(strconv.Itoa(s.Priority()))
	}

	s.Reply(presence, stanza)
	s.sendRoomInvites()
}

// sendRoomInvites emits one MUC invite per joined IRC channel across the
// account's networks.
func (s *Session) sendRoomInvites() {
	account := s.Account()
	serverName := s.srv.ServerName()

	for _, network := range account.Networks() {
		if !network.IsConnected() {
			continue
		}
		for _, channel := range network.Channels() {
			if !channel.IsOn() || channel.Disabled() {
				continue
			}
			roomJID := ChannelJID(channel.Name(), network.Name(), serverName)

			invite := NewStanza("message")
			invite.SetAttribute("id", newStanzaID())
			invite.SetAttribute("from", roomJID.String())
			x := invite.NewChild("x", nsMUCUser)
			x.NewChild("invite").SetAttribute("from", roomJID.String())
			s.Reply(invite, nil)
		}
	}
}

func (s *Session) echoPresence(inReplyTo *Stanza, presenceType string) {
	presence := NewStanza("presence")
	if presenceType != "" {
		presence.SetAttribute("type", presenceType)
	}
	s.Reply(presence, inReplyTo)
}

// handleRoomJoin runs the room-join protocol. When the underlying IRC
// channel is not yet populated the join suspends as a pending
// RoomMembership; the names-complete event resumes it.
func (s *Session) handleRoomJoin(stanza *Stanza, to JID, x *Stanza) {
	if to.Resource == "" || !to.IsIRCChannel() {
		s.Error("jid-malformed", "modify", "400", stanza)
		return
	}

	account := s.Account()
	network := account.FindNetwork(to.IRCNetwork())
	if network == nil {
		s.Error("item-not-found", "cancel", "404", stanza)
		return
	}

	limit := s.srv.opts.HistoryLimit
	if history := x.ChildByName("history"); history != nil {
		if raw := history.GetAttribute("maxstanzas"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
				limit = parsed
			}
		}
	}

	roomKey := RoomKey(to.IRCChannel(), network.Name())
	membership := &RoomMembership{
		JID:          to,
		Network:      network,
		HistoryLimit: limit,
		Requested:    time.Now(),
	}

	channel := network.FindChannel(to.IRCChannel())
	if channel == nil {
		// The IRC side has never seen this channel: create it, ask IRC to
		// join, and suspend until the names list completes.
		membership.Channel = network.CreateChannel(to.IRCChannel())
		membership.Pending = true
		network.JoinChannel(to.IRCChannel())
		s.storeMembership(roomKey, membership)
		metrics.PendingJoins.Inc()
		return
	}

	if channel.Disabled() {
		s.Error("item-not-found", "cancel", "404", stanza)
		return
	}

	membership.Channel = channel
	if !channel.IsOn() {
		membership.Pending = true
		network.JoinChannel(to.IRCChannel())
		s.storeMembership(roomKey, membership)
		metrics.PendingJoins.Inc()
		return
	}

	// Already on the channel: the whole join sequence runs synchronously.
	s.storeMembership(roomKey, membership)
	s.runJoinSequence(membership, stanza)
}

func (s *Session) storeMembership(roomKey string, m *RoomMembership) {
	s.Lock()
	s.rooms[roomKey] = m
	s.Unlock()
}

// CompletePendingJoin resumes a join suspended on the IRC names list. It is
// invoked by the event translator when numeric 366 arrives for the channel.
func (s *Session) CompletePendingJoin(roomKey string) {
	s.Lock()
	m := s.rooms[roomKey]
	if m == nil || !m.Pending {
		s.Unlock()
		return
	}
	if m.Channel.Disabled() {
		delete(s.rooms, roomKey)
		s.Unlock()
		metrics.PendingJoins.Dec()
		return
	}
	s.Unlock()

	metrics.PendingJoins.Dec()
	s.runJoinSequence(m, nil)
}

// runJoinSequence emits the room entry protocol in the order clients
// depend on: occupant presences, self-presence with status codes 100 and
// 110, history replay, subject, then the individual contact presences.
// The membership is marked confirmed before the stanzas go out.
func (s *Session) runJoinSequence(m *RoomMembership, inReplyTo *Stanza) {
	room := m.JID.Bare()

	s.Lock()
	m.Pending = false
	s.Unlock()

	// (1) one presence per current occupant
	for _, nick := range m.Channel.Nicks() {
		if isSelfNick(m.Network, nick) {
			continue
		}
		presence := NewStanza("presence")
		presence.SetAttribute("id", newStanzaID())
		presence.SetAttribute("from", room.WithResource(nick).String())
		x := presence.NewChild("x", nsMUCUser)
		item := x.NewChild("item")
		item.SetAttribute("affiliation", "member")
		item.SetAttribute("role", "participant")
		s.Reply(presence, inReplyTo)
	}

	// (2) the requester's own occupant presence, non-anonymous room (100)
	// and self-presence (110)
	selfPresence := NewStanza("presence")
	selfPresence.SetAttribute("id", newStanzaID())
	selfPresence.SetAttribute("from", m.JID.String())
	x := selfPresence.NewChild("x", nsMUCUser)
	item := x.NewChild("item")
	item.SetAttribute("affiliation", "member")
	item.SetAttribute("role", "participant")
	x.NewChild("status").SetAttribute("code", "100")
	x.NewChild("status").SetAttribute("code", "110")
	s.Reply(selfPresence, inReplyTo)

	// (3) history replay, oldest first
	for _, line := range m.Channel.History(m.HistoryLimit) {
		message := NewStanza("message")
		message.SetAttribute("id", newStanzaID())
		message.SetAttribute("type", "groupchat")
		message.SetAttribute("from", room.WithResource(line.Nick).String())
		message.NewChild("body").SetText(line.Text)
		addDelay(message, room, line.Time)
		s.Reply(message, inReplyTo)
	}

	// (4) subject, when a topic is set
	if topic, setter, setAt := m.Channel.Topic(); topic != "" {
		subject := NewStanza("message")
		subject.SetAttribute("id", newStanzaID())
		subject.SetAttribute("type", "groupchat")
		if setter != "" {
			subject.SetAttribute("from", room.WithResource(setter).String())
		} else {
			subject.SetAttribute("from", room.String())
		}
		subject.NewChild("subject").SetText(topic)
		addDelay(subject, room, setAt)
		s.Reply(subject, inReplyTo)
	}

	// (6) plain contact presence per occupant so the roster shows online
	// users individually as well as in-room
	serverName := s.srv.ServerName()
	for _, nick := range m.Channel.Nicks() {
		presence := NewStanza("presence")
		presence.SetAttribute("id", newStanzaID())
		presence.SetAttribute("from", UserJID(nick, m.Network.Name(), serverName).String())
		s.Reply(presence, nil)
	}
}

// addDelay stamps a stanza with both the XEP-0203 and legacy XEP-0091 delay
// extensions.
func addDelay(stanza *Stanza, from JID, at time.Time) {
	delay := stanza.NewChild("delay", nsDelay)
	delay.SetAttribute("from", from.String())
	delay.SetAttribute("stamp", at.UTC().Format(delayLayout))

	legacy := stanza.NewChild("x", nsLegacyDelay)
	legacy.SetAttribute("stamp", at.UTC().Format(legacyDelayLayout))
}

// handleRoomLeave honors an unavailable presence to a room JID only when
// the session holds a membership whose JID matches exactly.
func (s *Session) handleRoomLeave(stanza *Stanza, to JID) {
	roomKey := RoomKey(to.IRCChannel(), to.IRCNetwork())

	s.Lock()
	m := s.rooms[roomKey]
	if m == nil || !m.JID.Equals(to) {
		s.Unlock()
		return
	}
	wasPending := m.Pending
	delete(s.rooms, roomKey)
	s.Unlock()

	if wasPending {
		metrics.PendingJoins.Dec()
	}

	// Broadcast the leaver's unavailable occupant presence to every session
	// of the account in that room; the leaver's copy carries status 110.
	account := s.Account()
	for _, session := range s.srv.directory.AccountSessions(account.Username()) {
		member := session == s
		if !member && session.Membership(roomKey) == nil {
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
		if member {
			x.NewChild("status").SetAttribute("code", "110")
		}
		if member {
			session.Reply(presence, stanza)
		} else {
			session.Reply(presence, nil)
		}
	}
}
