package auth

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ostiary.org/internal/cluster"
	"ostiary.org/internal/creds"
	"ostiary.org/internal/store"
)

const (
	defaultResellerPrefix = "AUTH_"
	defaultTokenLife      = 24 * time.Hour
	defaultMaxTokenLife   = 24 * time.Hour

	// Container metadata key on an account container holding its storage
	// account id.
	accountMetaID = "account-id"
	// Object metadata key on a user object pointing at the user's live token.
	userMetaToken = "auth-token"

	// Reserved containers inside the backing store.
	accountIDContainer = ".account_id"
	tokenShardPrefix   = ".token_"
	tokenShardChars    = "0123456789abcdef"

	// Per-account object holding the account's service endpoints.
	servicesObject = ".services"
)

// Service implements the auth system: account and user records in the
// backing store, token issuance and validation, and request authorization
// against account ownership and container ACLs.
type Service struct {
	store   store.Store
	cluster cluster.Client
	cache   *Cache
	encoder creds.Encoder
	now     func() time.Time

	resellerPrefix string
	hashPrefix     string
	hashSuffix     string
	storageURL     string
	superAdminKey  string
	tokenLife      time.Duration
	maxTokenLife   time.Duration

	// Internal token for the service's own requests to the cluster.
	// Per-process state, rotated on expiry.
	mu            sync.Mutex
	itoken        string
	itokenExpires time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithResellerPrefix sets the prefix stamped onto tokens and storage account
// ids. The default is "AUTH_".
func WithResellerPrefix(prefix string) ServiceOption {
	return func(s *Service) error {
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			return fmt.Errorf("%w: reseller prefix is required", ErrInvalidInput)
		}
		s.resellerPrefix = prefix
		return nil
	}
}

// WithHashSeed sets the secret prefix and suffix mixed into concealed token
// names. Changing either invalidates all outstanding tokens.
func WithHashSeed(prefix, suffix string) ServiceOption {
	return func(s *Service) error {
		s.hashPrefix = prefix
		s.hashSuffix = suffix
		return nil
	}
}

// WithTokenLife sets the default token lifetime.
func WithTokenLife(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d > 0 {
			s.tokenLife = d
		}
		return nil
	}
}

// WithMaxTokenLife caps client-requested token lifetimes.
func WithMaxTokenLife(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d > 0 {
			s.maxTokenLife = d
		}
		return nil
	}
}

// WithStorageURL sets the base URL advertised in new accounts' service
// records. The account id is appended path-style.
func WithStorageURL(base string) ServiceOption {
	return func(s *Service) error {
		s.storageURL = strings.TrimRight(strings.TrimSpace(base), "/")
		return nil
	}
}

// WithSuperAdminKey sets the key for the reserved super admin user. Without
// it the super admin cannot authenticate.
func WithSuperAdminKey(key string) ServiceOption {
	return func(s *Service) error {
		s.superAdminKey = key
		return nil
	}
}

// WithEncoder sets the credential encoder used for new and updated keys.
func WithEncoder(enc creds.Encoder) ServiceOption {
	return func(s *Service) error {
		if enc != nil {
			s.encoder = enc
		}
		return nil
	}
}

// WithCache sets the validation cache.
func WithCache(c *Cache) ServiceOption {
	return func(s *Service) error {
		if c != nil {
			s.cache = c
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(st store.Store, cl cluster.Client, opts ...ServiceOption) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidInput)
	}
	if cl == nil {
		return nil, fmt.Errorf("%w: cluster client is required", ErrInvalidInput)
	}
	enc, _ := creds.ForScheme("")
	svc := &Service{
		store:          st,
		cluster:        cl,
		encoder:        enc,
		now:            time.Now,
		resellerPrefix: defaultResellerPrefix,
		tokenLife:      defaultTokenLife,
		maxTokenLife:   defaultMaxTokenLife,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.cache == nil {
		svc.cache = NewCache(0, 0)
	}
	return svc, nil
}

// ResellerPrefix returns the configured reseller prefix.
func (s *Service) ResellerPrefix() string { return s.resellerPrefix }

// InternalToken returns the token the service presents to the cluster for
// its own requests. It carries the auth and reseller admin groups, is never
// written to the store, and rotates when expired.
func (s *Service) InternalToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if s.itoken == "" || !s.itokenExpires.After(now) {
		s.itoken = s.resellerPrefix + "itk" + randomHex()
		s.itokenExpires = now.Add(s.tokenLife)
	}
	return s.itoken
}

func (s *Service) internalGroups() []string {
	return []string{GroupAuth, GroupResellerAdmin, s.resellerPrefix + GroupAuth}
}

// InternalServices returns the service record handed to the super admin on
// token requests: the reserved auth account on the default cluster.
func (s *Service) InternalServices() Services {
	endpoint := s.storageURL + "/" + s.resellerPrefix + GroupAuth
	return Services{"storage": {"default": defaultClusterName, defaultClusterName: endpoint}}
}

// matchInternalToken reports the current internal token's expiry when value
// is the live internal token.
func (s *Service) matchInternalToken(value string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.itoken == "" || value != s.itoken {
		return time.Time{}, false
	}
	return s.itokenExpires, true
}

// concealToken maps a token value onto its store object name. The seed keeps
// anyone with raw store access from deriving usable tokens from listings.
func (s *Service) concealToken(value string) string {
	sum := sha512.Sum512([]byte(s.hashPrefix + ":" + value + ":" + s.hashSuffix))
	return hex.EncodeToString(sum[:])
}

// tokenContainer returns the shard container holding the concealed name.
func tokenContainer(concealed string) string {
	return tokenShardPrefix + concealed[len(concealed)-1:]
}

func (s *Service) clampLife(d time.Duration) time.Duration {
	if d <= 0 {
		return s.tokenLife
	}
	if d > s.maxTokenLife {
		return s.maxTokenLife
	}
	return d
}

func randomHex() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
