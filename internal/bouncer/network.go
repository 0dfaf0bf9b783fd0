package bouncer

import (
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/girc"

	"github.com/cptaffe/znc-xmpp/internal/config"
	"github.com/cptaffe/znc-xmpp/internal/xmpp"
)

// Network is one IRC network connection. The girc client is rebuilt per
// connection attempt: girc does not support reconnecting a used client.
type Network struct {
	sync.RWMutex

	account    *Account
	cfg        *config.NetworkConfig
	bufferSize int

	client    *girc.Client
	connected bool
	quit      chan struct{}
	channels  map[string]*Channel
}

func newNetwork(account *Account, cfg *config.NetworkConfig, bufferSize int) *Network {
	network := &Network{
		account:    account,
		cfg:        cfg,
		bufferSize: bufferSize,
		quit:       make(chan struct{}),
		channels:   make(map[string]*Channel),
	}
	for _, name := range cfg.Channels {
		network.CreateChannel(name)
	}
	return network
}

func (n *Network) Name() string { return n.cfg.Name }

func (n *Network) IsConnected() bool {
	n.RLock()
	defer n.RUnlock()
	return n.connected
}

func (n *Network) CurrentNick() string {
	n.RLock()
	defer n.RUnlock()
	if n.connected && n.client != nil {
		return n.client.GetNick()
	}
	return n.cfg.Nick
}

func (n *Network) Channels() []xmpp.Channel {
	n.RLock()
	defer n.RUnlock()
	out := make([]xmpp.Channel, 0, len(n.channels))
	for _, channel := range n.channels {
		out = append(out, channel)
	}
	return out
}

func (n *Network) FindChannel(name string) xmpp.Channel {
	n.RLock()
	defer n.RUnlock()
	if channel, ok := n.channels[strings.ToLower(name)]; ok {
		return channel
	}
	return nil
}

// CreateChannel registers a channel object. Idempotent on channel name.
func (n *Network) CreateChannel(name string) xmpp.Channel {
	n.Lock()
	defer n.Unlock()
	key := strings.ToLower(name)
	if channel, ok := n.channels[key]; ok {
		return channel
	}
	channel := newChannel(name, n.bufferSize)
	n.channels[key] = channel
	return channel
}

func (n *Network) findChannel(name string) *Channel {
	n.RLock()
	defer n.RUnlock()
	return n.channels[strings.ToLower(name)]
}

// SendMessage submits a PRIVMSG. Messages to channels land in the channel's
// replay buffer too, since IRC does not echo them back.
func (n *Network) SendMessage(target, text string) {
	n.RLock()
	client := n.client
	connected := n.connected
	n.RUnlock()

	if !connected || client == nil {
		return
	}
	client.Cmd.Message(target, text)

	if channel := n.findChannel(target); channel != nil {
		channel.appendHistory(n.CurrentNick(), text, time.Now())
	}
}

func (n *Network) JoinChannel(name string) {
	n.RLock()
	client := n.client
	connected := n.connected
	n.RUnlock()

	if connected && client != nil {
		client.Cmd.Join(name)
	}
}

// run drives the connection loop until close is called, rebuilding the girc
// client each attempt.
func (n *Network) run() {
	for {
		select {
		case <-n.quit:
			return
		default:
		}

		client := n.newClient()
		n.Lock()
		n.client = client
		n.Unlock()

		log.Printf("[%s/%s] connecting to %s:%d", n.account.Username(), n.cfg.Name, n.cfg.Server, n.cfg.Port)
		if err := client.Connect(); err != nil {
			log.Printf("[%s/%s] IRC connection error: %v", n.account.Username(), n.cfg.Name, err)
		}

		n.markDisconnected()

		select {
		case <-n.quit:
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (n *Network) close() {
	select {
	case <-n.quit:
	default:
		close(n.quit)
	}
	n.RLock()
	client := n.client
	n.RUnlock()
	if client != nil {
		client.Close()
	}
}

func (n *Network) markDisconnected() {
	n.Lock()
	wasConnected := n.connected
	n.connected = false
	channels := make([]*Channel, 0, len(n.channels))
	for _, channel := range n.channels {
		channels = append(channels, channel)
	}
	n.Unlock()

	for _, channel := range channels {
		channel.reset()
	}
	if wasConnected && n.account.store.sink != nil {
		n.account.store.sink.OnDisconnect(n.account.Username(), n)
	}
}

func (n *Network) newClient() *girc.Client {
	ircNick := n.cfg.Nick
	if ircNick == "" {
		ircNick = n.account.Nickname()
	}
	ircUser := n.cfg.Username
	if ircUser == "" {
		ircUser = n.account.Username()
	}

	client := girc.New(girc.Config{
		Server: n.cfg.Server,
		Port:   n.cfg.Port,
		Nick:   ircNick,
		User:   ircUser,
		Name:   n.account.RealName(),
		SSL:    n.cfg.TLS,
	})

	client.Handlers.Add(girc.CONNECTED, func(c *girc.Client, e girc.Event) {
		n.Lock()
		n.connected = true
		n.Unlock()
		log.Printf("[%s/%s] connected as %s", n.account.Username(), n.cfg.Name, c.GetNick())
		for _, name := range n.cfg.Channels {
			c.Cmd.Join(name)
		}
	})

	client.Handlers.Add(girc.PRIVMSG, func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		target := e.Params[0]
		text := e.Last()
		if girc.IsValidChannel(target) {
			if channel := n.findChannel(target); channel != nil {
				channel.appendHistory(e.Source.Name, text, time.Now())
			}
			n.emit(func(sink EventSink) {
				sink.OnChanMessage(n.account.Username(), n, target, e.Source.Name, text)
			})
			return
		}
		n.emit(func(sink EventSink) {
			sink.OnPrivMessage(n.account.Username(), n, e.Source.Name, text)
		})
	})

	client.Handlers.Add(girc.JOIN, func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		name := e.Params[0]
		channel := n.CreateChannel(name).(*Channel)
		if strings.EqualFold(e.Source.Name, c.GetNick()) {
			// Own join: occupants arrive via the names list.
			return
		}
		channel.addNick(e.Source.Name)
		n.emit(func(sink EventSink) {
			sink.OnJoin(n.account.Username(), n, name, e.Source.Name)
		})
	})

	client.Handlers.Add(girc.PART, func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		name := e.Params[0]
		reason := ""
		if len(e.Params) > 1 {
			reason = e.Last()
		}
		channel := n.findChannel(name)
		self := strings.EqualFold(e.Source.Name, c.GetNick())
		if channel != nil {
			if self {
				channel.reset()
			} else {
				channel.removeNick(e.Source.Name)
			}
		}
		n.emit(func(sink EventSink) {
			sink.OnPart(n.account.Username(), n, name, e.Source.Name, reason)
		})
	})

	client.Handlers.Add(girc.KICK, func(c *girc.Client, e girc.Event) {
		if e.Source == nil || len(e.Params) < 2 {
			return
		}
		name := e.Params[0]
		kicked := e.Params[1]
		reason := ""
		if len(e.Params) > 2 {
			reason = e.Last()
		}
		channel := n.findChannel(name)
		self := strings.EqualFold(kicked, c.GetNick())
		if channel != nil {
			if self {
				channel.reset()
			} else {
				channel.removeNick(kicked)
			}
		}
		n.emit(func(sink EventSink) {
			sink.OnKick(n.account.Username(), n, name, kicked, reason)
		})
	})

	client.Handlers.Add(girc.QUIT, func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		reason := e.Last()
		// The quit fan-out needs the nick still present in each channel's
		// roster, so it runs before removal.
		n.emit(func(sink EventSink) {
			sink.OnQuit(n.account.Username(), n, e.Source.Name, reason)
		})
		n.RLock()
		channels := make([]*Channel, 0, len(n.channels))
		for _, channel := range n.channels {
			channels = append(channels, channel)
		}
		n.RUnlock()
		for _, channel := range channels {
			channel.removeNick(e.Source.Name)
		}
	})

	client.Handlers.Add(girc.TOPIC, func(c *girc.Client, e girc.Event) {
		if e.Source == nil {
			return
		}
		name := e.Params[0]
		topic := e.Last()
		if channel := n.findChannel(name); channel != nil {
			channel.setTopic(topic, e.Source.Name, time.Now())
		}
		n.emit(func(sink EventSink) {
			sink.OnTopic(n.account.Username(), n, name, e.Source.Name, topic)
		})
	})

	client.Handlers.Add(girc.NICK, func(c *girc.Client, e girc.Event) {
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		newNick := e.Last()
		n.RLock()
		channels := make([]*Channel, 0, len(n.channels))
		for _, channel := range n.channels {
			channels = append(channels, channel)
		}
		n.RUnlock()
		for _, channel := range channels {
			if channel.HasNick(e.Source.Name) {
				channel.removeNick(e.Source.Name)
				channel.addNick(newNick)
			}
		}
	})

	client.Handlers.Add(girc.ALL_EVENTS, func(c *girc.Client, e girc.Event) {
		n.handleNumeric(c, e)
	})

	return client
}

// handleNumeric processes the numeric replies the gateway depends on: names
// list assembly (353/366), topic state (332/333), and the error range
// surfaced to the client.
func (n *Network) handleNumeric(c *girc.Client, e girc.Event) {
	if len(e.Command) != 3 {
		return
	}
	if _, err := strconv.Atoi(e.Command); err != nil {
		return
	}

	switch e.Command {
	case "353": // RPL_NAMREPLY: <client> <symbol> <channel> :<nicks>
		if len(e.Params) < 4 {
			return
		}
		channel := n.CreateChannel(e.Params[2]).(*Channel)
		for _, nick := range strings.Fields(e.Last()) {
			channel.addNick(strings.TrimLeft(nick, "@+%&~"))
		}

	case "366": // RPL_ENDOFNAMES: <client> <channel> :End of /NAMES list
		if len(e.Params) < 2 {
			return
		}
		name := e.Params[1]
		if channel := n.findChannel(name); channel != nil {
			channel.markOn()
		}
		n.emit(func(sink EventSink) {
			sink.OnNamesComplete(n.account.Username(), n, name)
		})

	case "332": // RPL_TOPIC: <client> <channel> :<topic>
		if len(e.Params) < 3 {
			return
		}
		if channel := n.findChannel(e.Params[1]); channel != nil {
			channel.setTopicText(e.Last())
		}

	case "333": // RPL_TOPICWHOTIME: <client> <channel> <setter> <unix>
		if len(e.Params) < 4 {
			return
		}
		if channel := n.findChannel(e.Params[1]); channel != nil {
			setter := e.Params[2]
			if i := strings.IndexByte(setter, '!'); i > 0 {
				setter = setter[:i]
			}
			if unix, err := strconv.ParseInt(e.Params[3], 10, 64); err == nil {
				channel.setTopicMeta(setter, time.Unix(unix, 0))
			}
		}

	default:
		if e.Command[0] == '4' || e.Command[0] == '5' {
			params := e.Params
			if len(params) > 0 {
				params = params[1:] // drop the client's own nick
			}
			n.emit(func(sink EventSink) {
				sink.OnNumeric(n.account.Username(), n, e.Command, params)
			})
		}
	}
}

func (n *Network) emit(fn func(EventSink)) {
	if sink := n.account.store.sink; sink != nil {
		fn(sink)
	}
}
