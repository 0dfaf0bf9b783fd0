package xmpp

import "strings"

// ircSuffix marks a JID local part as belonging to the IRC bridge.
// The local part grammar is "<target>!<network>+irc" where target is an
// IRC channel or nick.
const ircSuffix = "+irc"

// JID is an XMPP address of the form user@domain/resource. The zero value
// is the blank JID. Malformed input never produces an error; missing parts
// stay empty and lookups on them report "not found".
type JID struct {
	User     string
	Domain   string
	Resource string
}

// ParseJID splits s first on "@", then the remainder on "/".
func ParseJID(s string) JID {
	var j JID
	if at := strings.Index(s, "@"); at >= 0 {
		j.User = s[:at]
		s = s[at+1:]
	}
	if slash := strings.Index(s, "/"); slash >= 0 {
		j.Domain = s[:slash]
		j.Resource = s[slash+1:]
	} else {
		j.Domain = s
	}
	return j
}

// String reproduces user@domain/resource, omitting empty parts.
func (j JID) String() string {
	var sb strings.Builder
	if j.User != "" {
		sb.WriteString(j.User)
		sb.WriteString("@")
	}
	sb.WriteString(j.Domain)
	if j.Resource != "" {
		sb.WriteString("/")
		sb.WriteString(j.Resource)
	}
	return sb.String()
}

// Bare returns the JID without its resource.
func (j JID) Bare() JID {
	j.Resource = ""
	return j
}

// WithResource returns a copy of the JID with the given resource.
func (j JID) WithResource(resource string) JID {
	j.Resource = resource
	return j
}

func (j JID) IsBlank() bool {
	return j.User == "" && j.Domain == "" && j.Resource == ""
}

func (j JID) Equals(other JID) bool {
	return strings.EqualFold(j.User, other.User) &&
		strings.EqualFold(j.Domain, other.Domain) &&
		j.Resource == other.Resource
}

// IsLocal reports whether the JID's domain is the gateway's own server name.
func (j JID) IsLocal(serverName string) bool {
	return strings.EqualFold(j.Domain, serverName)
}

// IsIRC reports whether the local part is IRC-shaped.
func (j JID) IsIRC() bool {
	return strings.HasSuffix(j.User, ircSuffix)
}

// IsIRCChannel reports whether the JID names an IRC channel room. A room
// JID carrying a resource still counts as a channel here; use IsIRCUser to
// distinguish the occupant form.
func (j JID) IsIRCChannel() bool {
	return j.IsIRC() && strings.HasPrefix(j.IRCTarget(), "#")
}

// IsIRCUser reports whether the JID denotes an IRC user. A bare room JID is
// a room, not a user, but a room JID with a resource names an occupant
// (nick = resource) and classifies as a user reference.
func (j JID) IsIRCUser() bool {
	return j.IsIRC() && !(j.IsIRCChannel() && j.Resource == "")
}

// IRCTarget extracts the channel or nick segment of the local part.
func (j JID) IRCTarget() string {
	if !j.IsIRC() {
		return ""
	}
	if bang := strings.Index(j.User, "!"); bang >= 0 {
		return j.User[:bang]
	}
	return strings.TrimSuffix(j.User, ircSuffix)
}

// IRCUser returns the nick a user-shaped JID refers to: the resource for a
// room-occupant JID, otherwise the target segment.
func (j JID) IRCUser() string {
	if !j.IsIRCUser() {
		return ""
	}
	if j.IsIRCChannel() {
		return j.Resource
	}
	return j.IRCTarget()
}

// IRCChannel returns the channel a room-shaped JID refers to.
func (j JID) IRCChannel() string {
	if !j.IsIRCChannel() {
		return ""
	}
	return j.IRCTarget()
}

// IRCNetwork extracts the network segment of the local part.
func (j JID) IRCNetwork() string {
	if !j.IsIRC() {
		return ""
	}
	bang := strings.Index(j.User, "!")
	if bang < 0 {
		return ""
	}
	return strings.TrimSuffix(j.User[bang+1:], ircSuffix)
}

// RoomKey is the local room key used to index RoomMemberships:
// "<channel>!<network>+irc" (the local part of the room JID, lowercased).
func RoomKey(channel, network string) string {
	return strings.ToLower(channel + "!" + network + ircSuffix)
}

// ChannelJID builds the room JID for an IRC channel on a network.
func ChannelJID(channel, network, serverName string) JID {
	return JID{User: channel + "!" + network + ircSuffix, Domain: serverName}
}

// UserJID builds the contact JID for an IRC nick on a network.
func UserJID(nick, network, serverName string) JID {
	return JID{User: nick + "!" + network + ircSuffix, Domain: serverName}
}
