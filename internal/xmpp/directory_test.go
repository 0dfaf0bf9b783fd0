package xmpp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testSession(account Account, resource string, priority int) *Session {
	return &Session{
		state:    stateBound,
		account:  account,
		resource: resource,
		priority: priority,
		rooms:    make(map[string]*RoomMembership),
	}
}

func TestDirectoryAddRemove(t *testing.T) {
	d := NewDirectory()
	alice := &fakeAccount{username: "alice"}
	s := testSession(alice, "desktop", 0)

	d.Add(s)
	d.Add(s)
	assert.Equal(t, 1, d.Len(), "a session appears at most once")

	d.Remove(s)
	assert.Equal(t, 0, d.Len())
	d.Remove(s)
	assert.Equal(t, 0, d.Len())
}

func TestDirectoryClientByResource(t *testing.T) {
	d := NewDirectory()
	alice := &fakeAccount{username: "alice"}
	desktop := testSession(alice, "desktop", 0)
	phone := testSession(alice, "phone", 0)
	d.Add(desktop)
	d.Add(phone)

	assert.Same(t, phone, d.ClientByResource(alice, "phone"))
	assert.Same(t, desktop, d.ClientByResource(alice, "Desktop"), "resource lookup is case-insensitive here")
	assert.Nil(t, d.ClientByResource(alice, "tablet"))
}

func TestDirectoryClientExactResourceWins(t *testing.T) {
	d := NewDirectory()
	alice := &fakeAccount{username: "alice"}
	desktop := testSession(alice, "desktop", 10)
	phone := testSession(alice, "phone", 0)
	d.Add(desktop)
	d.Add(phone)

	got := d.Client(ParseJID("alice@example.com/phone"), "example.com", false)
	assert.Same(t, phone, got, "an exact resource match beats a higher priority")
}

func TestDirectoryClientHighestPriority(t *testing.T) {
	d := NewDirectory()
	alice := &fakeAccount{username: "alice"}
	desktop := testSession(alice, "desktop", 5)
	phone := testSession(alice, "phone", 10)
	d.Add(desktop)
	d.Add(phone)

	got := d.Client(ParseJID("alice@example.com"), "example.com", false)
	assert.Same(t, phone, got)
}

func TestDirectoryClientNegativePriority(t *testing.T) {
	d := NewDirectory()
	alice := &fakeAccount{username: "alice"}
	s := testSession(alice, "desktop", -1)
	d.Add(s)

	jid := ParseJID("alice@example.com")
	assert.Nil(t, d.Client(jid, "example.com", false),
		"negative priority sessions do not receive ordinary stanzas")
	assert.Same(t, s, d.Client(jid, "example.com", true),
		"error bounces still reach negative priority sessions")
}

func TestDirectoryClientForeignDomain(t *testing.T) {
	d := NewDirectory()
	alice := &fakeAccount{username: "alice"}
	d.Add(testSession(alice, "desktop", 0))

	assert.Nil(t, d.Client(ParseJID("alice@elsewhere.net"), "example.com", false))
}

func TestDirectoryAccountSessions(t *testing.T) {
	d := NewDirectory()
	alice := &fakeAccount{username: "alice"}
	bob := &fakeAccount{username: "bob"}
	d.Add(testSession(alice, "desktop", 0))
	d.Add(testSession(alice, "phone", 0))
	d.Add(testSession(bob, "desktop", 0))
	d.Add(&Session{state: stateUnauthenticated, rooms: make(map[string]*RoomMembership)})

	assert.Len(t, d.AccountSessions("Alice"), 2)
	assert.Len(t, d.AccountSessions("bob"), 1)
	assert.Empty(t, d.AccountSessions("carol"))
}
