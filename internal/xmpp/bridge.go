package xmpp

import "time"

// The gateway never owns the bouncer's object graph; it queries it through
// these read-mostly collaborator interfaces. internal/bouncer provides the
// production implementation.

// AccountStore resolves usernames to accounts during authentication.
type AccountStore interface {
	FindAccount(username string) Account
}

// Account is one bouncer user.
type Account interface {
	Username() string
	Nickname() string
	RealName() string
	CheckPassword(candidate string) bool
	Networks() []Network
	FindNetwork(name string) Network
}

// Network is one IRC network connection belonging to an account.
type Network interface {
	Name() string
	IsConnected() bool
	CurrentNick() string
	Channels() []Channel
	FindChannel(name string) Channel
	// CreateChannel registers a channel object without waiting for the IRC
	// join to complete.
	CreateChannel(name string) Channel
	// SendMessage submits a PRIVMSG; fire-and-forget, never blocks on the
	// IRC server's reply.
	SendMessage(target, text string)
	// JoinChannel submits an IRC JOIN; completion is signalled later via
	// the names-complete event.
	JoinChannel(name string)
}

// Channel is one IRC channel's bouncer-side state.
type Channel interface {
	Name() string
	// IsOn reports whether channel membership is fully populated (the IRC
	// names list has completed).
	IsOn() bool
	Disabled() bool
	Nicks() []string
	HasNick(nick string) bool
	// Topic returns the topic text, who set it, and when. Empty text means
	// no topic.
	Topic() (text, setter string, setAt time.Time)
	// History returns up to max buffered messages, oldest first.
	History(max int) []HistoryLine
}

// HistoryLine is one replayable channel message.
type HistoryLine struct {
	Nick string
	Text string
	Time time.Time
}
