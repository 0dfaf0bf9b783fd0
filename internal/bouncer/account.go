package bouncer

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/cptaffe/znc-xmpp/internal/config"
	"github.com/cptaffe/znc-xmpp/internal/xmpp"
)

// Account is one bouncer user together with its IRC networks.
type Account struct {
	store    *Store
	cfg      *config.AccountConfig
	networks []*Network
}

func newAccount(store *Store, cfg *config.AccountConfig, bufferSize int) *Account {
	account := &Account{store: store, cfg: cfg}
	for i := range cfg.Networks {
		account.networks = append(account.networks, newNetwork(account, &cfg.Networks[i], bufferSize))
	}
	return account
}

func (a *Account) Username() string { return a.cfg.Username }

func (a *Account) Nickname() string {
	if a.cfg.Nickname != "" {
		return a.cfg.Nickname
	}
	return a.cfg.Username
}

func (a *Account) RealName() string {
	if a.cfg.RealName != "" {
		return a.cfg.RealName
	}
	return a.Nickname()
}

// CheckPassword verifies a login attempt. A configured bcrypt hash wins over
// the plaintext fallback; the plaintext path still compares in constant time.
func (a *Account) CheckPassword(candidate string) bool {
	if a.cfg.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(a.cfg.PasswordHash), []byte(candidate)) == nil
	}
	if a.cfg.Password == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.cfg.Password), []byte(candidate)) == 1
}

func (a *Account) Networks() []xmpp.Network {
	out := make([]xmpp.Network, 0, len(a.networks))
	for _, network := range a.networks {
		out = append(out, network)
	}
	return out
}

func (a *Account) FindNetwork(name string) xmpp.Network {
	for _, network := range a.networks {
		if strings.EqualFold(network.Name(), name) {
			return network
		}
	}
	return nil
}
