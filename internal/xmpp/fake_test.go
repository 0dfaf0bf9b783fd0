package xmpp

import (
	"strings"
	"sync"
	"time"
)

// In-memory bouncer fakes used by the package tests. They implement the
// bridge interfaces with just enough behavior to drive the gateway.

type fakeStore struct {
	accounts map[string]*fakeAccount
}

func newFakeStore(accounts ...*fakeAccount) *fakeStore {
	store := &fakeStore{accounts: make(map[string]*fakeAccount)}
	for _, account := range accounts {
		store.accounts[strings.ToLower(account.username)] = account
	}
	return store
}

func (st *fakeStore) FindAccount(username string) Account {
	if account, ok := st.accounts[strings.ToLower(username)]; ok {
		return account
	}
	return nil
}

type fakeAccount struct {
	username string
	password string
	nickname string
	networks []*fakeNetwork
}

func (a *fakeAccount) Username() string { return a.username }

func (a *fakeAccount) Nickname() string {
	if a.nickname != "" {
		return a.nickname
	}
	return a.username
}

func (a *fakeAccount) RealName() string { return a.Nickname() }

func (a *fakeAccount) CheckPassword(candidate string) bool {
	return a.password != "" && candidate == a.password
}

func (a *fakeAccount) Networks() []Network {
	out := make([]Network, 0, len(a.networks))
	for _, network := range a.networks {
		out = append(out, network)
	}
	return out
}

func (a *fakeAccount) FindNetwork(name string) Network {
	for _, network := range a.networks {
		if strings.EqualFold(network.name, name) {
			return network
		}
	}
	return nil
}

type fakeNetwork struct {
	sync.Mutex

	name      string
	nick      string
	connected bool
	channels  []*fakeChannel

	sentMessages   []string
	joinedChannels []string
}

func (n *fakeNetwork) Name() string        { return n.name }
func (n *fakeNetwork) IsConnected() bool   { return n.connected }
func (n *fakeNetwork) CurrentNick() string { return n.nick }

func (n *fakeNetwork) Channels() []Channel {
	n.Lock()
	defer n.Unlock()
	out := make([]Channel, 0, len(n.channels))
	for _, channel := range n.channels {
		out = append(out, channel)
	}
	return out
}

func (n *fakeNetwork) FindChannel(name string) Channel {
	n.Lock()
	defer n.Unlock()
	for _, channel := range n.channels {
		if strings.EqualFold(channel.name, name) {
			return channel
		}
	}
	return nil
}

func (n *fakeNetwork) CreateChannel(name string) Channel {
	if existing := n.FindChannel(name); existing != nil {
		return existing
	}
	n.Lock()
	defer n.Unlock()
	channel := &fakeChannel{name: name}
	n.channels = append(n.channels, channel)
	return channel
}

func (n *fakeNetwork) SendMessage(target, text string) {
	n.Lock()
	defer n.Unlock()
	n.sentMessages = append(n.sentMessages, target+" "+text)
}

func (n *fakeNetwork) JoinChannel(name string) {
	n.Lock()
	defer n.Unlock()
	n.joinedChannels = append(n.joinedChannels, name)
}

type fakeChannel struct {
	name     string
	on       bool
	disabled bool
	nicks    []string

	topic       string
	topicSetter string
	topicSetAt  time.Time

	history []HistoryLine
}

func (ch *fakeChannel) Name() string   { return ch.name }
func (ch *fakeChannel) IsOn() bool     { return ch.on }
func (ch *fakeChannel) Disabled() bool { return ch.disabled }

func (ch *fakeChannel) Nicks() []string { return ch.nicks }

func (ch *fakeChannel) HasNick(nick string) bool {
	for _, n := range ch.nicks {
		if strings.EqualFold(n, nick) {
			return true
		}
	}
	return false
}

func (ch *fakeChannel) Topic() (string, string, time.Time) {
	return ch.topic, ch.topicSetter, ch.topicSetAt
}

func (ch *fakeChannel) History(max int) []HistoryLine {
	if max <= 0 || len(ch.history) == 0 {
		return nil
	}
	if len(ch.history) > max {
		return ch.history[len(ch.history)-max:]
	}
	return ch.history
}
