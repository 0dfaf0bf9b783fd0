package bouncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cptaffe/znc-xmpp/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Gateway.BufferSize = 100
	cfg.Accounts = []config.AccountConfig{{
		Username: "alice",
		Password: "secret",
		Nickname: "Alice",
		Networks: []config.NetworkConfig{{
			Name:     "libera",
			Server:   "irc.libera.chat",
			Port:     6697,
			TLS:      true,
			Channels: []string{"#go"},
		}},
	}}
	return cfg
}

func TestStoreFindAccount(t *testing.T) {
	store := NewStore(testConfig())

	assert.NotNil(t, store.FindAccount("alice"))
	assert.NotNil(t, store.FindAccount("ALICE"), "account lookup is case-insensitive")
	assert.Nil(t, store.FindAccount("bob"), "unknown accounts resolve to a nil interface")
}

func TestAccountCheckPasswordPlaintext(t *testing.T) {
	store := NewStore(testConfig())
	account := store.FindAccount("alice")

	assert.True(t, account.CheckPassword("secret"))
	assert.False(t, account.CheckPassword("wrong"))
	assert.False(t, account.CheckPassword(""))
}

func TestAccountCheckPasswordBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Accounts[0].PasswordHash = string(hash)
	store := NewStore(cfg)
	account := store.FindAccount("alice")

	assert.True(t, account.CheckPassword("hunter2"))
	assert.False(t, account.CheckPassword("secret"), "the hash wins over the plaintext fallback")
}

func TestAccountNames(t *testing.T) {
	store := NewStore(testConfig())
	account := store.FindAccount("alice")

	assert.Equal(t, "alice", account.Username())
	assert.Equal(t, "Alice", account.Nickname())
	assert.Equal(t, "Alice", account.RealName(), "realname falls back to the nickname")
}

func TestAccountFindNetwork(t *testing.T) {
	store := NewStore(testConfig())
	account := store.FindAccount("alice")

	require.NotNil(t, account.FindNetwork("Libera"))
	assert.Nil(t, account.FindNetwork("oftc"))
	assert.Len(t, account.Networks(), 1)
}

func TestNetworkChannelsPreconfigured(t *testing.T) {
	store := NewStore(testConfig())
	network := store.FindAccount("alice").FindNetwork("libera")

	channel := network.FindChannel("#GO")
	require.NotNil(t, channel, "configured channels exist before the IRC join")
	assert.False(t, channel.IsOn())

	same := network.CreateChannel("#go")
	assert.Same(t, channel, same, "CreateChannel is idempotent per name")
}
