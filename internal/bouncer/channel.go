package bouncer

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cptaffe/znc-xmpp/internal/xmpp"
)

// Channel is the bouncer-side state of one IRC channel: its roster, topic,
// and a bounded replay buffer.
type Channel struct {
	sync.RWMutex

	name       string
	bufferSize int

	on       bool
	disabled bool
	nicks    map[string]string // lowercased nick -> display nick

	topic       string
	topicSetter string
	topicSetAt  time.Time

	history []xmpp.HistoryLine
}

func newChannel(name string, bufferSize int) *Channel {
	if bufferSize <= 0 {
		bufferSize = 500
	}
	return &Channel{
		name:       name,
		bufferSize: bufferSize,
		nicks:      make(map[string]string),
	}
}

func (ch *Channel) Name() string { return ch.name }

func (ch *Channel) IsOn() bool {
	ch.RLock()
	defer ch.RUnlock()
	return ch.on
}

func (ch *Channel) Disabled() bool {
	ch.RLock()
	defer ch.RUnlock()
	return ch.disabled
}

func (ch *Channel) Nicks() []string {
	ch.RLock()
	defer ch.RUnlock()
	out := make([]string, 0, len(ch.nicks))
	for _, nick := range ch.nicks {
		out = append(out, nick)
	}
	sort.Strings(out)
	return out
}

func (ch *Channel) HasNick(nick string) bool {
	ch.RLock()
	defer ch.RUnlock()
	_, ok := ch.nicks[strings.ToLower(nick)]
	return ok
}

func (ch *Channel) Topic() (text, setter string, setAt time.Time) {
	ch.RLock()
	defer ch.RUnlock()
	return ch.topic, ch.topicSetter, ch.topicSetAt
}

// History returns up to max buffered lines, oldest first. max <= 0 means
// none.
func (ch *Channel) History(max int) []xmpp.HistoryLine {
	ch.RLock()
	defer ch.RUnlock()
	if max <= 0 || len(ch.history) == 0 {
		return nil
	}
	start := 0
	if len(ch.history) > max {
		start = len(ch.history) - max
	}
	out := make([]xmpp.HistoryLine, len(ch.history)-start)
	copy(out, ch.history[start:])
	return out
}

func (ch *Channel) addNick(nick string) {
	ch.Lock()
	defer ch.Unlock()
	ch.nicks[strings.ToLower(nick)] = nick
}

func (ch *Channel) removeNick(nick string) {
	ch.Lock()
	defer ch.Unlock()
	delete(ch.nicks, strings.ToLower(nick))
}

func (ch *Channel) markOn() {
	ch.Lock()
	defer ch.Unlock()
	ch.on = true
}

// reset drops membership state when the channel is left or the connection
// goes away. History survives so rejoining clients can still replay it.
func (ch *Channel) reset() {
	ch.Lock()
	defer ch.Unlock()
	ch.on = false
	ch.nicks = make(map[string]string)
}

func (ch *Channel) setTopic(text, setter string, setAt time.Time) {
	ch.Lock()
	defer ch.Unlock()
	ch.topic = text
	ch.topicSetter = setter
	ch.topicSetAt = setAt
}

func (ch *Channel) setTopicText(text string) {
	ch.Lock()
	defer ch.Unlock()
	ch.topic = text
}

func (ch *Channel) setTopicMeta(setter string, setAt time.Time) {
	ch.Lock()
	defer ch.Unlock()
	ch.topicSetter = setter
	ch.topicSetAt = setAt
}

func (ch *Channel) appendHistory(nick, text string, at time.Time) {
	ch.Lock()
	defer ch.Unlock()
	ch.history = append(ch.history, xmpp.HistoryLine{Nick: nick, Text: text, Time: at})
	if len(ch.history) > ch.bufferSize {
		ch.history = ch.history[len(ch.history)-ch.bufferSize:]
	}
}
