package auth

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache holds recent validation results so the hot path can skip the backing
// store. Three keyspaces: tokens by raw token value, user records by
// "<account>:<user>", container ACLs by "<account_id>/<container>". Entries
// age out on the configured TTL; token entries additionally die with the
// token itself. Writers always update the store first and invalidate after,
// so a cached entry never outlives the record it mirrors by more than the
// TTL, and never at all within one process.
type Cache struct {
	tokens  *expirable.LRU[string, Token]
	users   *expirable.LRU[string, UserRecord]
	acls    *expirable.LRU[string, ACLPair]
	onEvent func(cache, outcome string)
}

// ACLPair carries the read and write ACL strings of one container.
type ACLPair struct {
	Read  string
	Write string
}

// CacheOption configures optional cache behavior.
type CacheOption func(*Cache)

// WithCacheEvents installs a hook receiving (keyspace, outcome) pairs for
// hit, miss and expired lookups.
func WithCacheEvents(fn func(cache, outcome string)) CacheOption {
	return func(c *Cache) {
		if fn != nil {
			c.onEvent = fn
		}
	}
}

// NewCache builds a cache with the given per-keyspace capacity and TTL.
func NewCache(size int, ttl time.Duration, opts ...CacheOption) *Cache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &Cache{
		tokens:  expirable.NewLRU[string, Token](size, nil, ttl),
		users:   expirable.NewLRU[string, UserRecord](size, nil, ttl),
		acls:    expirable.NewLRU[string, ACLPair](size, nil, ttl),
		onEvent: func(string, string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetToken returns a cached token, treating tokens past their own expiry as
// absent.
func (c *Cache) GetToken(value string, now time.Time) (Token, bool) {
	tok, ok := c.tokens.Get(value)
	if !ok {
		c.onEvent("token", "miss")
		return Token{}, false
	}
	if tok.Expired(now) {
		c.tokens.Remove(value)
		c.onEvent("token", "expired")
		return Token{}, false
	}
	c.onEvent("token", "hit")
	return tok, true
}

// PutToken caches a validated token.
func (c *Cache) PutToken(tok Token) {
	if tok.Value == "" {
		return
	}
	c.tokens.Add(tok.Value, tok)
}

// DropToken removes one token entry.
func (c *Cache) DropToken(value string) {
	if value != "" {
		c.tokens.Remove(value)
	}
}

// GetUser returns a cached user record.
func (c *Cache) GetUser(account, user string) (UserRecord, bool) {
	rec, ok := c.users.Get(userKey(account, user))
	if !ok {
		c.onEvent("user", "miss")
		return UserRecord{}, false
	}
	c.onEvent("user", "hit")
	return rec, true
}

// PutUser caches a user record.
func (c *Cache) PutUser(account, user string, rec UserRecord) {
	c.users.Add(userKey(account, user), rec)
}

// DropUser removes one user entry.
func (c *Cache) DropUser(account, user string) {
	c.users.Remove(userKey(account, user))
}

// GetACL returns cached container ACLs.
func (c *Cache) GetACL(accountID, container string) (ACLPair, bool) {
	pair, ok := c.acls.Get(aclKey(accountID, container))
	if !ok {
		c.onEvent("acl", "miss")
		return ACLPair{}, false
	}
	c.onEvent("acl", "hit")
	return pair, true
}

// PutACL caches container ACLs.
func (c *Cache) PutACL(accountID, container string, pair ACLPair) {
	c.acls.Add(aclKey(accountID, container), pair)
}

// DropACL removes one ACL entry.
func (c *Cache) DropACL(accountID, container string) {
	c.acls.Remove(aclKey(accountID, container))
}

func userKey(account, user string) string { return account + ":" + user }

func aclKey(accountID, container string) string { return accountID + "/" + container }
