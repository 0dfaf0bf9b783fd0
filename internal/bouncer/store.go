// Package bouncer holds the IRC-facing half of the gateway: accounts, their
// network connections, and per-channel state. It implements the collaborator
// interfaces the XMPP side queries.
package bouncer

import (
	"log"
	"strings"

	"github.com/cptaffe/znc-xmpp/internal/config"
	"github.com/cptaffe/znc-xmpp/internal/xmpp"
)

// EventSink receives translated IRC events. *xmpp.Server satisfies it; the
// indirection exists so the bouncer can be constructed before the gateway.
type EventSink interface {
	OnChanMessage(username string, network xmpp.Network, channelName, nick, text string)
	OnPrivMessage(username string, network xmpp.Network, nick, text string)
	OnJoin(username string, network xmpp.Network, channelName, nick string)
	OnPart(username string, network xmpp.Network, channelName, nick, reason string)
	OnKick(username string, network xmpp.Network, channelName, nick, reason string)
	OnQuit(username string, network xmpp.Network, nick, reason string)
	OnTopic(username string, network xmpp.Network, channelName, setter, topic string)
	OnNamesComplete(username string, network xmpp.Network, channelName string)
	OnNumeric(username string, network xmpp.Network, code string, params []string)
	OnDisconnect(username string, network xmpp.Network)
}

// Store owns every account. It is populated once from the config and read
// concurrently afterwards, so no locking is needed.
type Store struct {
	accounts map[string]*Account
	sink     EventSink
}

// NewStore builds the account graph from the loaded configuration.
func NewStore(cfg *config.Config) *Store {
	store := &Store{accounts: make(map[string]*Account)}
	for i := range cfg.Accounts {
		account := newAccount(store, &cfg.Accounts[i], cfg.Gateway.BufferSize)
		store.accounts[strings.ToLower(account.Username())] = account
	}
	return store
}

// Bind attaches the event sink. Must happen before Connect.
func (st *Store) Bind(sink EventSink) { st.sink = sink }

// FindAccount returns the account for username, or nil. The nil interface
// is returned explicitly so callers can compare against nil.
func (st *Store) FindAccount(username string) xmpp.Account {
	if account, ok := st.accounts[strings.ToLower(username)]; ok {
		return account
	}
	return nil
}

// Connect starts the IRC connections of every configured network.
func (st *Store) Connect() {
	for _, account := range st.accounts {
		for _, network := range account.networks {
			go network.run()
		}
	}
}

// Disconnect tears down every IRC connection.
func (st *Store) Disconnect() {
	for _, account := range st.accounts {
		for _, network := range account.networks {
			network.close()
		}
	}
	log.Printf("bouncer: all IRC connections closed")
}
