package xmpp

import (
	"strings"
	"sync"
)

// Directory is the process-wide table of live sessions. It holds non-owning
// references: sessions add themselves on connect and remove themselves on
// disconnect, and appear at most once. IRC event fan-out and stanza
// delivery both resolve recipients here.
type Directory struct {
	sync.RWMutex
	sessions []*Session
}

func NewDirectory() *Directory {
	return &Directory{}
}

func (d *Directory) Add(s *Session) {
	d.Lock()
	defer d.Unlock()
	for _, existing := range d.sessions {
		if existing == s {
			return
		}
	}
	d.sessions = append(d.sessions, s)
}

func (d *Directory) Remove(s *Session) {
	d.Lock()
	defer d.Unlock()
	for i, existing := range d.sessions {
		if existing == s {
			d.sessions = append(d.sessions[:i], d.sessions[i+1:]...)
			return
		}
	}
}

// Sessions returns a snapshot safe to iterate without holding the lock.
func (d *Directory) Sessions() []*Session {
	d.RLock()
	defer d.RUnlock()
	out := make([]*Session, len(d.sessions))
	copy(out, d.sessions)
	return out
}

// Len reports the number of live sessions.
func (d *Directory) Len() int {
	d.RLock()
	defer d.RUnlock()
	return len(d.sessions)
}

// ClientByResource returns the account's session with exactly the given
// resource, or nil.
func (d *Directory) ClientByResource(account Account, resource string) *Session {
	d.RLock()
	defer d.RUnlock()
	for _, s := range d.sessions {
		if s.Account() == nil || s.Account().Username() != account.Username() {
			continue
		}
		if strings.EqualFold(s.Resource(), resource) {
			return s
		}
	}
	return nil
}

// Client resolves a local JID to a session. An exact resource match wins;
// otherwise the account's highest-priority session is chosen. Unless
// acceptNegative is set, a best-match session with negative priority is
// treated as unreachable (error delivery opts in so negative-priority
// receivers still get their bounces).
func (d *Directory) Client(jid JID, serverName string, acceptNegative bool) *Session {
	if !jid.IsLocal(serverName) {
		return nil
	}

	d.RLock()
	defer d.RUnlock()

	var best *Session
	for _, s := range d.sessions {
		account := s.Account()
		if account == nil || !strings.EqualFold(account.Username(), jid.User) {
			continue
		}
		if jid.Resource != "" && jid.Resource == s.Resource() {
			return s
		}
		if best == nil || s.Priority() > best.Priority() {
			best = s
		}
	}

	if !acceptNegative && best != nil && best.Priority() < 0 {
		return nil
	}
	return best
}

// AccountSessions returns every session authenticated as the given account
// username.
func (d *Directory) AccountSessions(username string) []*Session {
	d.RLock()
	defer d.RUnlock()
	var out []*Session
	for _, s := range d.sessions {
		if a := s.Account(); a != nil && strings.EqualFold(a.Username(), username) {
			out = append(out, s)
		}
	}
	return out
}
