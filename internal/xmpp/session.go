package xmpp

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cptaffe/znc-xmpp/internal/metrics"
)

// sessionState tracks where a connection is in its lifecycle. TLS is an
// orthogonal upgrade and is tracked separately.
type sessionState int

const (
	stateUnauthenticated sessionState = iota
	stateAuthenticated                // account bound, stream restarted, no resource yet
	stateBound
	stateClosed
)

// RoomMembership ties a session to one IRC channel. Its presence in the
// session's room table is the sole signal that the session is "in" that room
// from the bridge's point of view; the underlying IRC join state may lag.
type RoomMembership struct {
	// JID is the room JID including the occupant resource the client
	// requested on join.
	JID JID
	// Channel is the bouncer-side channel reference.
	Channel Channel
	// Network the channel belongs to.
	Network Network
	// Pending is set while the join waits for the IRC names list.
	Pending bool
	// HistoryLimit is the maxstanzas requested for the deferred join.
	HistoryLimit int
	// Requested is when the join was asked for, used for pending expiry.
	Requested time.Time
}

// Session is one XMPP client connection. All mutation of its state happens
// either on its own reader goroutine or under its lock (IRC events arrive on
// other goroutines).
type Session struct {
	sync.RWMutex
	srv  *Server
	conn net.Conn

	reader      *streamReader
	resetParser bool
	tlsActive   bool

	writer    *bufio.Writer
	writeLock sync.Mutex

	remoteAddr string

	state    sessionState
	account  Account
	resource string
	priority int
	rooms    map[string]*RoomMembership

	quitting bool
}

func newSession(srv *Server, conn net.Conn) *Session {
	s := &Session{
		srv:        srv,
		conn:       conn,
		writer:     bufio.NewWriter(conn),
		remoteAddr: conn.RemoteAddr().String(),
		rooms:      make(map[string]*RoomMembership),
	}
	if _, ok := conn.(*tls.Conn); ok {
		s.tlsActive = true
	}
	srv.directory.Add(s)
	metrics.SessionsActive.Inc()
	return s
}

// Account returns the owning account, nil until authenticated.
func (s *Session) Account() Account {
	s.RLock()
	defer s.RUnlock()
	return s.account
}

// RemoteAddr returns the client's remote address.
func (s *Session) RemoteAddr() string { return s.remoteAddr }

// Resource returns the bound resource, empty until resource bind.
func (s *Session) Resource() string {
	s.RLock()
	defer s.RUnlock()
	return s.resource
}

// Priority returns the session's presence priority.
func (s *Session) Priority() int {
	s.RLock()
	defer s.RUnlock()
	return s.priority
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.RLock()
	defer s.RUnlock()
	return s.state == stateClosed
}

// JID returns the session's own full JID: username@server/resource with the
// parts that exist so far.
func (s *Session) JID() JID {
	s.RLock()
	defer s.RUnlock()
	return s.jidLocked()
}

func (s *Session) jidLocked() JID {
	j := JID{Domain: s.srv.ServerName(), Resource: s.resource}
	if s.account != nil {
		j.User = s.account.Username()
	}
	return j
}

// Membership returns the session's RoomMembership for a local room key, or
// nil.
func (s *Session) Membership(roomKey string) *RoomMembership {
	s.RLock()
	defer s.RUnlock()
	return s.rooms[roomKey]
}

// Memberships returns a snapshot of the session's room table.
func (s *Session) Memberships() map[string]*RoomMembership {
	s.RLock()
	defer s.RUnlock()
	out := make(map[string]*RoomMembership, len(s.rooms))
	for k, v := range s.rooms {
		out[k] = v
	}
	return out
}

// handleConnection drives the session's read loop until the connection
// drops or the stream closes.
func (s *Session) handleConnection() {
	defer s.Close("connection closed")

	log.Printf("[%s] *** New XMPP client connected", s.remoteAddr)
	s.reader = newStreamReader(s.conn)

	for {
		stanza, streamOpen, err := s.reader.Next()
		if err != nil {
			if err != io.EOF && err != errStreamClosed {
				log.Printf("[%s] Error reading from client: %v", s.remoteAddr, err)
			}
			return
		}

		if streamOpen {
			s.streamStart(stanza)
		} else {
			metrics.StanzasReceived.WithLabelValues(stanza.Name).Inc()
			s.ReceiveStanza(stanza)
		}

		if s.Closed() {
			return
		}
		if s.resetParser {
			// Stream restart after SASL success or STARTTLS.
			s.resetParser = false
			s.reader = newStreamReader(s.conn)
		}
	}
}

// Close tears the session down: removes it from the Directory and discards
// pending room memberships so no partial state stays observable.
func (s *Session) Close(reason string) {
	s.Lock()
	if s.quitting {
		s.Unlock()
		return
	}
	s.quitting = true
	s.state = stateClosed
	pending := 0
	for _, m := range s.rooms {
		if m.Pending {
			pending++
		}
	}
	s.rooms = make(map[string]*RoomMembership)
	s.Unlock()

	s.srv.directory.Remove(s)
	metrics.SessionsActive.Dec()
	metrics.PendingJoins.Sub(float64(pending))
	s.conn.Close()
	log.Printf("[%s] XMPP client disconnected (%s)", s.remoteAddr, reason)
}

// WriteString writes raw text to the client.
func (s *Session) WriteString(data string) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.writer.WriteString(data); err == nil {
		s.writer.Flush()
	}
}

// WriteStanza serializes and writes a stanza.
func (s *Session) WriteStanza(stanza *Stanza) {
	metrics.StanzasSent.WithLabelValues(stanza.Name).Inc()
	s.WriteString(stanza.String())
}

// Reply writes a stanza, defaulting its "to" to the session's own full JID
// and copying the request's "id" when replying to one.
func (s *Session) Reply(stanza *Stanza, inReplyTo *Stanza) {
	if !stanza.HasAttribute("to") && s.Account() != nil {
		stanza.SetAttribute("to", s.JID().String())
	}
	if !stanza.HasAttribute("id") && inReplyTo != nil && inReplyTo.HasAttribute("id") {
		stanza.SetAttribute("id", inReplyTo.GetAttribute("id"))
	}
	s.WriteStanza(stanza)
}

// Error writes a stanza-level error of the legacy-compatible shape: an iq
// with both the numeric code attribute and the modern condition element.
func (s *Session) Error(tag, errType, code string, inReplyTo *Stanza) {
	iq := NewStanza("iq")
	iq.SetAttribute("to", s.JID().String())
	iq.SetAttribute("type", "error")
	errChild := iq.NewChild("error")
	if code != "" {
		errChild.SetAttribute("code", code)
	}
	errChild.SetAttribute("type", errType)
	errChild.NewChild(tag, nsStanzas)
	s.Reply(iq, inReplyTo)
}

// streamStart answers a <stream:stream> open element: stream header, then
// either a host-unknown stream error or the feature advertisement.
func (s *Session) streamStart(open *Stanza) {
	s.WriteString("<?xml version='1.0' ?>")
	s.WriteString("<stream:stream from='" + escapeAttr(s.srv.ServerName()) +
		"' id='" + newStanzaID() +
		"' version='1.0' xml:lang='en' xmlns='" + nsClient +
		"' xmlns:stream='" + streamsNamespace + "'>")

	if to := open.GetAttribute("to"); !strings.EqualFold(to, s.srv.ServerName()) {
		streamErr := NewStanza("stream:error")
		host := streamErr.NewChild("host-unknown", nsStreamsErr)
		host.NewChild("text", nsStreamsErr).SetText("This server does not serve " + to)
		s.WriteStanza(streamErr)
		s.closeStream()
		return
	}

	features := NewStanza("stream:features")

	if !s.tlsActive && s.srv.TLSAvailable() {
		starttls := features.NewChild("starttls", nsTLS)
		if s.srv.opts.TLSRequired {
			starttls.NewChild("required")
		}
	}

	if s.Account() != nil {
		features.NewChild("bind", nsBind)
		features.NewChild("session", nsSession)
	} else if s.tlsActive || !s.srv.opts.TLSRequired {
		mechanisms := features.NewChild("mechanisms", nsSASL)
		mechanisms.NewChild("mechanism").SetText("PLAIN")
	}

	features.NewChild("auth", nsIQAuthFeat)

	s.WriteStanza(features)
}

// closeStream ends the XML stream and the connection.
func (s *Session) closeStream() {
	s.WriteString("</stream:stream>")
	s.Close("stream closed")
}

// ReceiveStanza is the stanza dispatch entry point.
func (s *Session) ReceiveStanza(stanza *Stanza) {
	switch stanza.Name {
	case "auth":
		s.handleSASLAuth(stanza)
		return
	case "starttls":
		s.handleStartTLS(stanza)
		return
	case "iq":
		// Legacy (XEP-0078) authentication is the one iq allowed before an
		// account is bound.
		if query := stanza.ChildByName("query"); query != nil &&
			query.GetAttribute("xmlns") == nsIQAuth {
			s.handleLegacyAuth(stanza, query)
			return
		}
	}

	if s.Account() == nil {
		// Everything past this point requires authentication.
		s.Error("forbidden", "auth", "403", stanza)
		return
	}

	stanza.SetAttribute("from", s.JID().String())

	switch stanza.Name {
	case "iq":
		s.handleIQ(stanza)
	case "message":
		s.handleMessage(stanza)
	case "presence":
		s.handlePresence(stanza)
	default:
		log.Printf("[%s] unsupported stanza [%s]", s.remoteAddr, stanza.Name)
	}
}

// handleSASLAuth performs SASL PLAIN. A well-formed payload carries
// authzid NUL authcid NUL passwd; fewer than two NULs is not-authorized.
// Success binds the account and forces a stream restart.
func (s *Session) handleSASLAuth(stanza *Stanza) {
	if !strings.EqualFold(stanza.GetAttribute("mechanism"), "plain") {
		failure := NewStanza("failure", nsSASL)
		failure.NewChild("invalid-mechanism")
		s.WriteStanza(failure)
		return
	}

	var payload string
	if text := stanza.TextChild(); text != nil {
		if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text.Text)); err == nil {
			payload = string(decoded)
		}
	}

	parts := strings.Split(payload, "\x00")
	if len(parts) >= 3 {
		username, password := parts[1], parts[2]

		if account := s.srv.opts.Store.FindAccount(username); account != nil && account.CheckPassword(password) {
			s.WriteStanza(NewStanza("success", nsSASL))

			s.Lock()
			s.account = account
			s.state = stateAuthenticated
			s.Unlock()

			log.Printf("[%s] SASL PLAIN for [%s] success", s.remoteAddr, username)
			s.resetParser = true
			return
		}
		log.Printf("[%s] SASL PLAIN for [%s] failed", s.remoteAddr, username)
	} else {
		log.Printf("[%s] SASL PLAIN with malformed payload", s.remoteAddr)
	}

	metrics.AuthFailures.WithLabelValues("sasl-plain").Inc()
	// Same answer for bad payloads and bad credentials; never reveal which
	// field was wrong.
	failure := NewStanza("failure", nsSASL)
	failure.NewChild("not-authorized")
	s.WriteStanza(failure)
}

// handleLegacyAuth implements XEP-0078 jabber:iq:auth.
func (s *Session) handleLegacyAuth(stanza, query *Stanza) {
	switch stanza.GetAttribute("type") {
	case "get":
		iq := NewStanza("iq")
		iq.SetAttribute("type", "result")
		form := iq.NewChild("query", nsIQAuth)
		form.NewChild("username")
		form.NewChild("password")
		form.NewChild("resource")
		s.Reply(iq, stanza)

	case "set":
		username := query.ChildText("username")
		password := query.ChildText("password")
		resource := query.ChildText("resource")

		if username == "" || password == "" {
			// Required information not provided.
			s.Error("not-acceptable", "modify", "406", stanza)
			return
		}

		account := s.srv.opts.Store.FindAccount(username)
		if account == nil || !account.CheckPassword(password) {
			metrics.AuthFailures.WithLabelValues("iq-auth").Inc()
			log.Printf("[%s] jabber:iq:auth for [%s] failed", s.remoteAddr, username)
			s.Error("not-authorized", "auth", "401", stanza)
			return
		}

		s.Lock()
		s.account = account
		s.state = stateAuthenticated
		if resource != "" {
			s.resource = resource
			s.state = stateBound
		}
		s.Unlock()

		log.Printf("[%s] jabber:iq:auth for [%s] success", s.remoteAddr, username)

		iq := NewStanza("iq")
		iq.SetAttribute("type", "result")
		s.Reply(iq, stanza)
	}
}

// handleStartTLS upgrades the connection. Only honored pre-bind when TLS is
// configured and not already active; any other state fails the stream.
func (s *Session) handleStartTLS(_ *Stanza) {
	if s.tlsActive || !s.srv.TLSAvailable() || s.Resource() != "" {
		s.WriteStanza(NewStanza("failure", nsTLS))
		s.closeStream()
		return
	}

	s.WriteStanza(NewStanza("proceed", nsTLS))

	tlsConn := tls.Server(s.conn, s.srv.opts.TLSConfig)
	s.writeLock.Lock()
	s.conn = tlsConn
	s.writer = bufio.NewWriter(tlsConn)
	s.writeLock.Unlock()

	s.tlsActive = true
	s.resetParser = true
}

// bindResource handles iq-set bind: use the requested resource or generate
// an opaque one, reject duplicates for the same account.
func (s *Session) bindResource(requested string, inReplyTo *Stanza) {
	resource := requested
	if resource == "" {
		resource = generateResource()
	}
	if resource == "" {
		s.Error("bad-request", "modify", "400", inReplyTo)
		return
	}

	account := s.Account()
	if other := s.srv.directory.ClientByResource(account, resource); other != nil && other != s {
		s.Error("conflict", "cancel", "409", inReplyTo)
		return
	}

	s.Lock()
	s.resource = resource
	s.state = stateBound
	s.Unlock()

	iq := NewStanza("iq")
	iq.SetAttribute("type", "result")
	bind := iq.NewChild("bind", nsBind)
	bind.NewChild("jid").SetText(s.JID().String())
	s.Reply(iq, inReplyTo)
}

// expirePendingJoins fails room joins whose IRC names list never arrived
// within the timeout: the requester gets a presence error and the pending
// membership is dropped.
func (s *Session) expirePendingJoins(timeout time.Duration) {
	now := time.Now()

	s.Lock()
	var expired []*RoomMembership
	for key, m := range s.rooms {
		if m.Pending && now.Sub(m.Requested) > timeout {
			expired = append(expired, m)
			delete(s.rooms, key)
		}
	}
	s.Unlock()

	for _, m := range expired {
		metrics.PendingJoins.Dec()
		presence := NewStanza("presence")
		presence.SetAttribute("id", newStanzaID())
		presence.SetAttribute("from", m.JID.Bare().String())
		presence.SetAttribute("type", "error")
		errChild := presence.NewChild("error")
		errChild.SetAttribute("code", "404")
		errChild.SetAttribute("type", "cancel")
		errChild.NewChild("item-not-found", nsStanzas)
		s.Reply(presence, nil)
		log.Printf("[%s] pending join to %s expired", s.remoteAddr, m.JID.Bare())
	}
}
