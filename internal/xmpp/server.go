package xmpp

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/cptaffe/znc-xmpp/internal/metrics"
)

// Options configures a gateway server.
type Options struct {
	// ServerName is the XMPP domain this gateway answers for.
	ServerName string
	// Listen is the client-to-server bind address (":5222" by default).
	Listen string
	// TLSConfig enables STARTTLS when non-nil.
	TLSConfig *tls.Config
	// TLSRequired withholds SASL until the stream has been upgraded.
	TLSRequired bool
	// HistoryLimit is the default maxstanzas for room joins (25 if zero).
	HistoryLimit int
	// Keepalive is the whitespace keepalive interval (30s if zero).
	Keepalive time.Duration
	// PendingJoinTimeout bounds how long a room join may wait for the IRC
	// names list (2m if zero, negative disables expiry).
	PendingJoinTimeout time.Duration
	// Store resolves usernames during authentication.
	Store AccountStore
}

// Server accepts XMPP client connections and bridges them onto the bouncer's
// IRC state. It owns the Directory of live sessions and the keepalive timer.
type Server struct {
	opts      Options
	directory *Directory
	listener  net.Listener
	shutdown  chan struct{}
}

func NewServer(opts Options) (*Server, error) {
	if opts.ServerName == "" {
		opts.ServerName = "localhost"
	}
	if opts.Listen == "" {
		opts.Listen = ":5222"
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 25
	}
	if opts.Keepalive <= 0 {
		opts.Keepalive = 30 * time.Second
	}
	if opts.PendingJoinTimeout == 0 {
		opts.PendingJoinTimeout = 2 * time.Minute
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("xmpp: an account store is required")
	}

	return &Server{
		opts:      opts,
		directory: NewDirectory(),
		shutdown:  make(chan struct{}),
	}, nil
}

func (srv *Server) ServerName() string { return srv.opts.ServerName }

// Directory exposes the live session table, used by the web portal and
// tests.
func (srv *Server) Directory() *Directory { return srv.directory }

// TLSAvailable reports whether STARTTLS can be offered.
func (srv *Server) TLSAvailable() bool { return srv.opts.TLSConfig != nil }

// Start begins listening for client connections.
func (srv *Server) Start() error {
	if srv.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", srv.opts.Listen)
	if err != nil {
		return fmt.Errorf("failed to start XMPP listener: %w", err)
	}
	srv.listener = listener
	log.Printf("XMPP gateway started on %s (domain %s)", listener.Addr(), srv.opts.ServerName)

	go srv.acceptConnections()
	go srv.keepaliveLoop()

	return nil
}

// Addr returns the bound listener address, for tests using ":0".
func (srv *Server) Addr() net.Addr {
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// Stop closes the listener and disconnects every session. Afterwards the
// Directory is empty; no partially cleaned up session remains observable.
func (srv *Server) Stop() error {
	close(srv.shutdown)

	var err error
	if srv.listener != nil {
		err = srv.listener.Close()
		srv.listener = nil
	}

	for _, s := range srv.directory.Sessions() {
		s.Close("server shutting down")
	}
	return err
}

func (srv *Server) acceptConnections() {
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			select {
			case <-srv.shutdown:
				return
			default:
				log.Printf("Error accepting connection: %v", err)
				continue
			}
		}

		session := newSession(srv, conn)
		go session.handleConnection()
	}
}

// keepaliveLoop periodically writes a single space to every connected
// session so idle connections survive NAT and middlebox timeouts, and
// expires room joins whose IRC side never completed.
func (srv *Server) keepaliveLoop() {
	ticker := time.NewTicker(srv.opts.Keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-srv.shutdown:
			return
		case <-ticker.C:
			for _, s := range srv.directory.Sessions() {
				if s.Closed() {
					continue
				}
				s.WriteString(" ")
				if srv.opts.PendingJoinTimeout > 0 {
					s.expirePendingJoins(srv.opts.PendingJoinTimeout)
				}
			}
		}
	}
}

// SendStanza delivers a stanza addressed to a local account's best session.
// When no session is reachable the failure is reported back to the sender
// (if local): service-unavailable for local targets, remote-server-not-found
// for foreign domains, matching the stanza error taxonomy.
func (srv *Server) SendStanza(stanza *Stanza) {
	to := ParseJID(stanza.GetAttribute("to"))

	if to.IsLocal(srv.opts.ServerName) {
		if client := srv.directory.Client(to, srv.opts.ServerName, false); client != nil {
			client.WriteStanza(stanza)
			return
		}
	}

	from := ParseJID(stanza.GetAttribute("from"))
	if !from.IsLocal(srv.opts.ServerName) {
		return
	}
	// Error delivery must reach negative-priority senders too.
	sender := srv.directory.Client(from, srv.opts.ServerName, true)
	if sender == nil {
		return
	}

	bounce := NewStanza(stanza.Name)
	bounce.SetAttribute("to", stanza.GetAttribute("from"))
	bounce.SetAttribute("from", stanza.GetAttribute("to"))
	if id := stanza.GetAttribute("id"); id != "" {
		bounce.SetAttribute("id", id)
	}
	bounce.SetAttribute("type", "error")

	errChild := bounce.NewChild("error")
	errChild.SetAttribute("type", "cancel")
	if to.IsLocal(srv.opts.ServerName) {
		errChild.SetAttribute("code", "503")
		errChild.NewChild("service-unavailable", nsStanzas)
	} else {
		errChild.SetAttribute("code", "404")
		errChild.NewChild("remote-server-not-found", nsStanzas)
	}

	sender.WriteStanza(bounce)
	metrics.StanzasSent.WithLabelValues(bounce.Name).Inc()
}
