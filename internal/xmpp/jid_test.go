package xmpp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cptaffe/znc-xmpp/internal/xmpp"
)

func TestParseJID(t *testing.T) {
	j := xmpp.ParseJID("alice@example.com/desktop")
	assert.Equal(t, "alice", j.User)
	assert.Equal(t, "example.com", j.Domain)
	assert.Equal(t, "desktop", j.Resource)
	assert.Equal(t, "alice@example.com/desktop", j.String())

	bare := xmpp.ParseJID("alice@example.com")
	assert.Equal(t, "alice", bare.User)
	assert.Equal(t, "", bare.Resource)

	domainOnly := xmpp.ParseJID("example.com")
	assert.Equal(t, "", domainOnly.User)
	assert.Equal(t, "example.com", domainOnly.Domain)

	assert.True(t, xmpp.ParseJID("").IsBlank())
}

func TestJIDBareAndResource(t *testing.T) {
	j := xmpp.ParseJID("alice@example.com/desktop")
	assert.Equal(t, "alice@example.com", j.Bare().String())
	assert.Equal(t, "alice@example.com/phone", j.WithResource("phone").String())
	// the receiver is unchanged
	assert.Equal(t, "desktop", j.Resource)
}

func TestJIDEquals(t *testing.T) {
	a := xmpp.ParseJID("Alice@Example.COM/desktop")
	b := xmpp.ParseJID("alice@example.com/desktop")
	c := xmpp.ParseJID("alice@example.com/Desktop")

	assert.True(t, a.Equals(b), "user and domain compare case-insensitively")
	assert.False(t, b.Equals(c), "resource comparison is case-sensitive")
}

func TestJIDIRCClassification(t *testing.T) {
	room := xmpp.ParseJID("#go!libera+irc@example.com")
	occupant := xmpp.ParseJID("#go!libera+irc@example.com/rob")
	user := xmpp.ParseJID("rob!libera+irc@example.com")
	plain := xmpp.ParseJID("alice@example.com")

	assert.True(t, room.IsIRC())
	assert.True(t, room.IsIRCChannel())
	assert.False(t, room.IsIRCUser(), "bare room JID is a room, not a user")

	assert.True(t, occupant.IsIRCChannel())
	assert.True(t, occupant.IsIRCUser(), "room JID with resource names an occupant")
	assert.Equal(t, "rob", occupant.IRCUser())

	assert.True(t, user.IsIRC())
	assert.False(t, user.IsIRCChannel())
	assert.True(t, user.IsIRCUser())
	assert.Equal(t, "rob", user.IRCUser())

	assert.False(t, plain.IsIRC())
	assert.Equal(t, "", plain.IRCUser())
}

func TestJIDIRCParts(t *testing.T) {
	room := xmpp.ParseJID("#go!libera+irc@example.com")
	assert.Equal(t, "#go", room.IRCChannel())
	assert.Equal(t, "libera", room.IRCNetwork())

	user := xmpp.ParseJID("rob!libera+irc@example.com")
	assert.Equal(t, "", user.IRCChannel())
	assert.Equal(t, "libera", user.IRCNetwork())
}

func TestChannelAndUserJIDs(t *testing.T) {
	room := xmpp.ChannelJID("#go", "libera", "example.com")
	assert.Equal(t, "#go!libera+irc@example.com", room.String())
	assert.True(t, room.IsIRCChannel())

	user := xmpp.UserJID("rob", "libera", "example.com")
	assert.Equal(t, "rob!libera+irc@example.com", user.String())
	assert.True(t, user.IsIRCUser())
}

func TestRoomKey(t *testing.T) {
	assert.Equal(t, "#go!libera+irc", xmpp.RoomKey("#Go", "Libera"))
	assert.Equal(t,
		xmpp.RoomKey("#go", "libera"),
		xmpp.RoomKey("#GO", "LIBERA"),
		"room keys are case-insensitive")
}
