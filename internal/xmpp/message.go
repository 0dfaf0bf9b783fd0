package xmpp

import "strings"

// handleMessage forwards IRC-shaped messages as PRIVMSGs and hands anything
// else to the Directory for local delivery.
func (s *Session) handleMessage(stanza *Stanza) {
	to := ParseJID(stanza.GetAttribute("to"))

	if to.IsIRC() {
		target := to.IRCTarget()
		if stanza.GetAttribute("type") != "groupchat" && to.IsIRCChannel() && to.Resource != "" {
			// A room-occupant JID addressed with a chat message is a
			// private message to that nick.
			target = to.IRCUser()
		}
		networkName := to.IRCNetwork()

		body := stanza.ChildText("body")
		if body != "" {
			if network := s.Account().FindNetwork(networkName); network != nil {
				network.SendMessage(target, body)

				if stanza.GetAttribute("type") == "groupchat" {
					s.echoGroupchat(to, network, body)
				}
				return
			}
		}
	}

	// Not IRC-shaped (or unknown network): treat as a local XMPP address.
	s.srv.SendStanza(stanza)
}

// echoGroupchat reflects an outbound channel message back to the sending
// session alone, attributed to its own in-room nick, so the client's local
// history shows the echo IRC would not send.
func (s *Session) echoGroupchat(to JID, network Network, body string) {
	roomKey := RoomKey(to.IRCChannel(), network.Name())
	from := to.Bare().WithResource(s.ownNickFor(roomKey, network))

	echo := NewStanza("message")
	echo.SetAttribute("id", newStanzaID())
	echo.SetAttribute("type", "groupchat")
	echo.SetAttribute("from", from.String())
	echo.SetAttribute("to", s.JID().String())
	echo.NewChild("body").SetText(body)
	s.WriteStanza(echo)
}

// ownNickFor returns the nick this session is known by in the given room,
// falling back to the network's current nick.
func (s *Session) ownNickFor(roomKey string, network Network) string {
	if m := s.Membership(roomKey); m != nil && m.JID.Resource != "" {
		return m.JID.Resource
	}
	return network.CurrentNick()
}

// isSelfNick reports whether nick is the account's own nick on the network.
func isSelfNick(network Network, nick string) bool {
	return strings.EqualFold(network.CurrentNick(), nick)
}
