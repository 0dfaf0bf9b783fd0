package xmpp

import (
	"log"
	"sort"
	"strings"
)

// handleIQ routes a post-auth iq by type and payload namespace. Every path
// either returns after writing its own reply or sets a type on the shared
// reply; an iq that falls through with no type is answered bad-request so
// no iq is ever silently dropped.
func (s *Session) handleIQ(stanza *Stanza) {
	iq := NewStanza("iq")

	switch stanza.GetAttribute("type") {
	case "get":
		if stanza.ChildByName("ping") != nil {
			// XEP-0199; an empty result suffices.
			iq.SetAttribute("type", "result")
			break
		}

		if query := stanza.ChildByName("query"); query != nil {
			switch query.GetAttribute("xmlns") {
			case nsDiscoItems:
				s.discoItems(stanza, stanza.GetAttribute("to"))
				return
			case nsDiscoInfo:
				s.discoInfo(stanza, stanza.GetAttribute("to"))
				return
			case nsRoster:
				s.rosterGet(stanza)
				return
			}
		}

		if vcard := stanza.ChildByName("vCard"); vcard != nil && vcard.GetAttribute("xmlns") == nsVCard {
			s.vcardGet(stanza)
			return
		}

	case "set":
		if bind := stanza.ChildByName("bind"); bind != nil {
			requested := ""
			if res := bind.ChildByName("resource"); res != nil {
				if text := res.TextChild(); text != nil {
					requested = text.Text
				}
			}
			s.bindResource(requested, stanza)
			return
		}

		if stanza.ChildByName("session") != nil {
			// RFC 3921 session establishment; a no-op for this gateway.
			iq.SetAttribute("type", "result")
			break
		}

		if vcard := stanza.ChildByName("vCard"); vcard != nil && vcard.GetAttribute("xmlns") == nsVCard {
			s.vcardSet(stanza)
			return
		}
	}

	if !iq.HasAttribute("type") {
		iq.SetAttribute("type", "error")
		errChild := iq.NewChild("error")
		errChild.SetAttribute("code", "400")
		errChild.SetAttribute("type", "modify")
		errChild.NewChild("bad-request", nsStanzas)
		log.Printf("[%s] unsupported iq [%s]", s.remoteAddr, stanza.GetAttribute("type"))
	}

	s.Reply(iq, stanza)
}

// channelsNode and usersNode name the virtual directory nodes under the
// gateway domain.
func (s *Session) channelsNode() string { return "channels." + s.srv.ServerName() }
func (s *Session) usersNode() string    { return "users." + s.srv.ServerName() }

// discoItems answers service discovery item queries: the gateway domain
// lists the virtual directory nodes, the directory nodes list rooms or
// occupant nicks, and a room JID lists its occupants.
func (s *Session) discoItems(stanza *Stanza, rawTo string) {
	account := s.Account()
	serverName := s.srv.ServerName()

	iq := NewStanza("iq")
	iq.SetAttribute("type", "result")
	query := iq.NewChild("query", nsDiscoItems)

	switch {
	case rawTo == "" || strings.EqualFold(rawTo, serverName):
		item := query.NewChild("item")
		item.SetAttribute("jid", s.channelsNode())
		item.SetAttribute("name", "IRC channels")
		item = query.NewChild("item")
		item.SetAttribute("jid", s.usersNode())
		item.SetAttribute("name", "IRC users")

	case strings.EqualFold(rawTo, s.channelsNode()):
		for _, network := range account.Networks() {
			if !network.IsConnected() {
				continue
			}
			for _, channel := range network.Channels() {
				if !channel.IsOn() {
					continue
				}
				item := query.NewChild("item")
				item.SetAttribute("jid", ChannelJID(channel.Name(), network.Name(), serverName).String())
				item.SetAttribute("name", channel.Name()+" on "+network.Name())
			}
		}

	case strings.EqualFold(rawTo, s.usersNode()):
		seen := make(map[string]bool)
		for _, network := range account.Networks() {
			if !network.IsConnected() {
				continue
			}
			for _, channel := range network.Channels() {
				for _, nick := range channel.Nicks() {
					jid := UserJID(nick, network.Name(), serverName).String()
					if seen[jid] {
						continue
					}
					seen[jid] = true
					item := query.NewChild("item")
					item.SetAttribute("jid", jid)
					item.SetAttribute("name", nick)
				}
			}
		}
		// Deterministic listing for clients that diff results.
		sort.SliceStable(query.Children, func(i, j int) bool {
			return query.Children[i].GetAttribute("jid") < query.Children[j].GetAttribute("jid")
		})

	default:
		to := ParseJID(rawTo)
		if !to.IsLocal(serverName) {
			s.notFound(stanza, "No such domain: "+to.Domain)
			return
		}
		if !to.IsIRCChannel() {
			s.notFound(stanza, "No such item: "+rawTo)
			return
		}
		_, channel := s.resolveChannel(to)
		if channel == nil {
			s.notFound(stanza, "No such channel: "+rawTo)
			return
		}
		for _, nick := range channel.Nicks() {
			item := query.NewChild("item")
			item.SetAttribute("jid", to.Bare().WithResource(nick).String())
			item.SetAttribute("name", nick)
		}
	}

	s.Reply(iq, stanza)
}

// discoInfo answers service discovery info queries: gateway identity for
// the domain, directory identities for the virtual nodes, MUC identity and
// features for rooms, and an account identity for visible IRC users.
func (s *Session) discoInfo(stanza *Stanza, rawTo string) {
	serverName := s.srv.ServerName()

	iq := NewStanza("iq")
	iq.SetAttribute("type", "result")
	query := iq.NewChild("query", nsDiscoInfo)

	switch {
	case rawTo == "" || strings.EqualFold(rawTo, serverName):
		identity := query.NewChild("identity")
		identity.SetAttribute("category", "conference")
		identity.SetAttribute("type", "text")
		identity.SetAttribute("name", "IRC gateway on "+serverName)
		query.NewChild("feature").SetAttribute("var", nsMUC)
		query.NewChild("feature").SetAttribute("var", nsDiscoItems)
		query.NewChild("feature").SetAttribute("var", nsDiscoInfo)

	case strings.EqualFold(rawTo, s.channelsNode()) || strings.EqualFold(rawTo, s.usersNode()):
		identity := query.NewChild("identity")
		identity.SetAttribute("category", "directory")
		if strings.EqualFold(rawTo, s.channelsNode()) {
			identity.SetAttribute("type", "chatroom")
			identity.SetAttribute("name", "IRC channels")
		} else {
			identity.SetAttribute("type", "user")
			identity.SetAttribute("name", "IRC users")
		}
		query.NewChild("feature").SetAttribute("var", nsDiscoItems)

	default:
		to := ParseJID(rawTo)
		if !to.IsLocal(serverName) {
			s.notFound(stanza, "No such domain: "+to.Domain)
			return
		}

		if to.IsIRCChannel() && to.Resource == "" {
			network, channel := s.resolveChannel(to)
			if channel == nil {
				s.notFound(stanza, "No such channel: "+rawTo)
				return
			}
			identity := query.NewChild("identity")
			identity.SetAttribute("category", "conference")
			identity.SetAttribute("type", "text")
			identity.SetAttribute("name", channel.Name()+" on "+network.Name())
			query.NewChild("feature").SetAttribute("var", nsMUC)
			query.NewChild("feature").SetAttribute("var", "muc_nonanonymous")
			query.NewChild("feature").SetAttribute("var", "muc_open")
			query.NewChild("feature").SetAttribute("var", "muc_persistent")
			query.NewChild("feature").SetAttribute("var", "muc_public")
			break
		}

		if to.IsIRCUser() {
			// The nick must be visible in at least one room this session
			// has joined.
			if !s.nickVisible(to.IRCUser(), to.IRCNetwork()) {
				s.notFound(stanza, "No such user: "+rawTo)
				return
			}
			identity := query.NewChild("identity")
			identity.SetAttribute("category", "account")
			identity.SetAttribute("type", "registered")
			identity.SetAttribute("name", to.IRCUser())
			break
		}

		s.notFound(stanza, "No such item: "+rawTo)
		return
	}

	s.Reply(iq, stanza)
}

// nickVisible reports whether the nick can be seen in any room this session
// holds a (non-pending) membership for, optionally restricted to a network.
func (s *Session) nickVisible(nick, network string) bool {
	for _, m := range s.Memberships() {
		if m.Pending {
			continue
		}
		if network != "" && !strings.EqualFold(m.Network.Name(), network) {
			continue
		}
		if m.Channel.HasNick(nick) {
			return true
		}
	}
	return false
}

// resolveChannel maps a room JID to the account's network and channel, nil
// when either is unknown.
func (s *Session) resolveChannel(to JID) (Network, Channel) {
	account := s.Account()
	if account == nil {
		return nil, nil
	}
	network := account.FindNetwork(to.IRCNetwork())
	if network == nil {
		return nil, nil
	}
	channel := network.FindChannel(to.IRCChannel())
	if channel == nil {
		return network, nil
	}
	return network, channel
}

func (s *Session) notFound(inReplyTo *Stanza, text string) {
	iq := NewStanza("iq")
	iq.SetAttribute("to", s.JID().String())
	iq.SetAttribute("type", "error")
	errChild := iq.NewChild("error")
	errChild.SetAttribute("code", "404")
	errChild.SetAttribute("type", "cancel")
	errChild.NewChild("item-not-found", nsStanzas)
	if text != "" {
		errChild.NewChild("text", nsStanzas).SetText(text)
	}
	s.Reply(iq, inReplyTo)
}

// rosterGet synthesizes one roster entry per connected IRC network: the
// account's own nick on that network, subscription "to".
func (s *Session) rosterGet(stanza *Stanza) {
	account := s.Account()
	serverName := s.srv.ServerName()

	iq := NewStanza("iq")
	iq.SetAttribute("type", "result")
	query := iq.NewChild("query", nsRoster)

	for _, network := range account.Networks() {
		if !network.IsConnected() {
			continue
		}
		item := query.NewChild("item")
		item.SetAttribute("jid", UserJID(network.CurrentNick(), network.Name(), serverName).String())
		item.SetAttribute("name", "You on "+network.Name())
		item.SetAttribute("subscription", "to")
	}

	s.Reply(iq, stanza)
}

// vcardGet serves the account's own vCard, or a synthesized one for IRC
// user JIDs. Anything else is not found.
func (s *Session) vcardGet(stanza *Stanza) {
	account := s.Account()
	rawTo := stanza.GetAttribute("to")
	to := ParseJID(rawTo)

	iq := NewStanza("iq")

	switch {
	case rawTo == "" || to.Bare().Equals(s.JID().Bare()):
		iq.SetAttribute("type", "result")
		vcard := iq.NewChild("vCard", nsVCard)
		nickname := account.Nickname()
		if nickname == "" {
			nickname = account.Username()
		}
		vcard.NewChild("NICKNAME").SetText(nickname)
		if account.RealName() != "" {
			vcard.NewChild("FN").SetText(account.RealName())
		}

	case to.IsLocal(s.srv.ServerName()) && to.IsIRCUser():
		nick := to.IRCUser()
		iq.SetAttribute("type", "result")
		vcard := iq.NewChild("vCard", nsVCard)
		vcard.NewChild("NICKNAME").SetText(nick)
		vcard.NewChild("FN").SetText(nick + " on " + to.IRCNetwork())

	default:
		s.notFound(stanza, "No vCard for "+rawTo)
		return
	}

	s.Reply(iq, stanza)
}

// vcardSet accepts (but does not persist) updates to the user's own vCard;
// setting anyone else's is not allowed.
func (s *Session) vcardSet(stanza *Stanza) {
	rawTo := stanza.GetAttribute("to")
	to := ParseJID(rawTo)

	if rawTo != "" && !to.Bare().Equals(s.JID().Bare()) {
		s.Error("not-allowed", "cancel", "405", stanza)
		return
	}

	iq := NewStanza("iq")
	iq.SetAttribute("type", "result")
	s.Reply(iq, stanza)
}
