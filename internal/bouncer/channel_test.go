package bouncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannelNicks(t *testing.T) {
	ch := newChannel("#go", 100)
	ch.addNick("Rob")
	ch.addNick("ken")
	ch.addNick("rob") // same nick, different case

	assert.Equal(t, []string{"ken", "rob"}, ch.Nicks())
	assert.True(t, ch.HasNick("ROB"))
	assert.False(t, ch.HasNick("bryan"))

	ch.removeNick("KEN")
	assert.False(t, ch.HasNick("ken"))
}

func TestChannelHistoryBounds(t *testing.T) {
	ch := newChannel("#go", 3)
	base := time.Now()
	for i, text := range []string{"one", "two", "three", "four", "five"} {
		ch.appendHistory("rob", text, base.Add(time.Duration(i)*time.Second))
	}

	lines := ch.History(10)
	assert.Len(t, lines, 3, "buffer keeps only the newest lines")
	assert.Equal(t, "three", lines[0].Text)
	assert.Equal(t, "five", lines[2].Text)

	lines = ch.History(2)
	assert.Len(t, lines, 2)
	assert.Equal(t, "four", lines[0].Text, "a smaller max returns the newest lines, oldest first")

	assert.Nil(t, ch.History(0))
}

func TestChannelTopic(t *testing.T) {
	ch := newChannel("#go", 100)
	setAt := time.Unix(1700000000, 0)

	ch.setTopicText("all things Go")
	ch.setTopicMeta("rob", setAt)

	text, setter, at := ch.Topic()
	assert.Equal(t, "all things Go", text)
	assert.Equal(t, "rob", setter)
	assert.Equal(t, setAt, at)
}

func TestChannelResetKeepsHistory(t *testing.T) {
	ch := newChannel("#go", 100)
	ch.addNick("rob")
	ch.markOn()
	ch.appendHistory("rob", "hello", time.Now())

	ch.reset()
	assert.False(t, ch.IsOn())
	assert.Empty(t, ch.Nicks())
	assert.Len(t, ch.History(10), 1, "replay buffer survives a rejoin")
}
