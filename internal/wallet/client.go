package wallet

import (
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kinecosystem/kinmigrate/internal/chain"
	"github.com/kinecosystem/kinmigrate/internal/keystore"
	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// AccountCreator returns the account client for a keystore address.
type AccountCreator func(address string) (chain.Account, error)

// Client holds the accounts of one blockchain version. Account handles are
// cached by keystore index; every public method holds the cache lock for
// its whole duration and none of them touch the network.
type Client struct {
	version    chain.Version
	ks         *keystore.KeyStore
	passphrase string
	create     AccountCreator
	logger     zerolog.Logger

	mu    sync.Mutex
	cache map[int]chain.Account
}

// NewClient returns a Client over ks. Seeds are sealed under passphrase.
func NewClient(version chain.Version, ks *keystore.KeyStore, passphrase string, create AccountCreator, logger zerolog.Logger) *Client {
	return &Client{
		version:    version,
		ks:         ks,
		passphrase: passphrase,
		create:     create,
		logger:     logger.With().Str("component", "wallet").Str("version", version.String()).Logger(),
		cache:      make(map[int]chain.Account),
	}
}

// Version returns the blockchain version of the client.
func (c *Client) Version() chain.Version { return c.version }

// KeyStore returns the backing keystore.
func (c *Client) KeyStore() *keystore.KeyStore { return c.ks }

// Count returns the number of accounts.
func (c *Client) Count() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ks.Count()
}

// AddAccount creates a new account and returns its client.
func (c *Client) AddAccount() (chain.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ks.NewAccount(c.passphrase); err != nil {
		return nil, err
	}
	acct, err := c.last()
	if err != nil {
		return nil, err
	}
	c.logger.Info().Str("address", acct.PublicAddress()).Msg("account added")
	return acct, nil
}

// ImportSecretSeed adds the account of a strkey secret seed.
func (c *Client) ImportSecretSeed(seed string) (chain.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ks.ImportSecretSeed(seed, c.passphrase); err != nil {
		return nil, err
	}
	return c.last()
}

// ImportAccount adds an exported account JSON sealed under passphrase.
func (c *Client) ImportAccount(data, passphrase string) (chain.Account, error) {
	rec, err := keystore.ParseRecord(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ks.ImportAccount(rec, passphrase, c.passphrase); err != nil {
		return nil, err
	}
	acct, err := c.last()
	if err != nil {
		return nil, err
	}
	c.logger.Info().Str("address", acct.PublicAddress()).Msg("account imported")
	return acct, nil
}

// last returns the account at count-1. The lock must be held.
func (c *Client) last() (chain.Account, error) {
	n, err := c.ks.Count()
	if err != nil {
		return nil, err
	}
	acct, err := c.accountLocked(n - 1)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, kinerr.Wrap(kinerr.ErrInternalInconsistency, "no account at index %d after append", n-1)
	}
	return acct, nil
}

// Account returns the account at index i, or nil when i is out of range.
func (c *Client) Account(i int) (chain.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accountLocked(i)
}

func (c *Client) accountLocked(i int) (chain.Account, error) {
	if acct, ok := c.cache[i]; ok {
		return acct, nil
	}
	rec, err := c.ks.Account(i)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	acct, err := c.create(rec.PublicKey)
	if err != nil {
		return nil, err
	}
	c.cache[i] = acct
	return acct, nil
}

// Accounts returns every account in index order.
func (c *Client) Accounts() ([]chain.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.ks.Count()
	if err != nil {
		return nil, err
	}
	out := make([]chain.Account, 0, n)
	for i := 0; i < n; i++ {
		acct, err := c.accountLocked(i)
		if err != nil {
			return nil, err
		}
		if acct != nil {
			out = append(out, acct)
		}
	}
	return out, nil
}

// Find returns the account with address and its index, or nil and -1.
func (c *Client) Find(address string) (chain.Account, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, rec, err := c.ks.Find(address)
	if err != nil || rec == nil {
		return nil, -1, err
	}
	acct, err := c.accountLocked(i)
	if err != nil {
		return nil, -1, err
	}
	return acct, i, nil
}

// Contains reports whether address is in the keystore.
func (c *Client) Contains(address string) (bool, error) {
	_, i, err := c.Find(address)
	return i >= 0, err
}

// DeleteAccount removes the account at index i. The cached handle is
// marked deleted and handles above i move down one index, all under one
// lock acquisition together with the keystore removal.
func (c *Client) DeleteAccount(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed, err := c.ks.Remove(i)
	if err != nil {
		return err
	}
	if !removed {
		return kinerr.WithDetails(kinerr.ErrNotFound, map[string]string{"index": strconv.Itoa(i)})
	}

	if acct, ok := c.cache[i]; ok {
		acct.MarkDeleted()
		c.logger.Info().Str("address", acct.PublicAddress()).Int("index", i).Msg("account deleted")
	}
	shifted := make(map[int]chain.Account, len(c.cache))
	for j, acct := range c.cache {
		switch {
		case j < i:
			shifted[j] = acct
		case j > i:
			shifted[j-1] = acct
		}
	}
	c.cache = shifted
	return nil
}

// DeleteKeystore removes every account and clears the cache.
func (c *Client) DeleteKeystore() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		removed, err := c.ks.Remove(0)
		if err != nil {
			return err
		}
		if !removed {
			break
		}
	}
	for _, acct := range c.cache {
		acct.MarkDeleted()
	}
	c.cache = make(map[int]chain.Account)
	c.logger.Info().Msg("keystore cleared")
	return nil
}
