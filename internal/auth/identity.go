package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"ostiary.org/internal/cluster"
	"ostiary.org/internal/creds"
	"ostiary.org/internal/store"
)

const defaultClusterName = "local"

// maxNameLength bounds account and user names.
const maxNameLength = 256

// validName accepts account and user names: no leading dot (reserved for
// system records), no path or group separators.
func validName(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}
	if name[0] == '.' {
		return false
	}
	return !strings.ContainsAny(name, "/:")
}

// Prep creates the reserved containers the auth system keeps its records in.
// Safe to repeat.
func (s *Service) Prep(ctx context.Context) error {
	if err := s.store.EnsureContainer(ctx, accountIDContainer, nil); err != nil {
		return storeUnavailable("create id mapping container", err)
	}
	for _, c := range tokenShardChars {
		if err := s.store.EnsureContainer(ctx, tokenShardPrefix+string(c), nil); err != nil {
			return storeUnavailable("create token shard", err)
		}
	}
	return nil
}

// CreateAccount registers an account and its storage tenant. The storage
// account id is the reseller prefix plus suffix; a random suffix is chosen
// when none is given. Returns false when the account already existed.
func (s *Service) CreateAccount(ctx context.Context, account, suffix string) (bool, error) {
	if !validName(account) {
		return false, fmt.Errorf("%w: invalid account name", ErrInvalidInput)
	}
	if suffix == "" {
		suffix = uuid.New().String()
	}
	accountID := s.resellerPrefix + suffix

	if err := s.cluster.CreateTenant(ctx, accountID); err != nil {
		return false, fmt.Errorf("%w: create tenant: %v", ErrStoreUnavailable, err)
	}

	meta, err := s.store.ContainerMeta(ctx, account)
	switch {
	case err == nil:
		if meta[accountMetaID] != "" {
			return false, nil
		}
		return false, fmt.Errorf("auth: account %q exists without a storage account id", account)
	case errors.Is(err, store.ErrNotFound):
	default:
		return false, storeUnavailable("head account", err)
	}

	if err := s.store.EnsureContainer(ctx, account, map[string]string{accountMetaID: accountID}); err != nil {
		return false, storeUnavailable("create account", err)
	}
	if err := s.store.PutObject(ctx, accountIDContainer, accountID, []byte(account), nil); err != nil {
		return false, storeUnavailable("record id mapping", err)
	}

	endpoint := s.storageURL + "/" + accountID
	services := Services{"storage": {"default": defaultClusterName, defaultClusterName: endpoint}}
	payload, err := json.Marshal(services)
	if err != nil {
		return false, fmt.Errorf("auth: encode services: %w", err)
	}
	if err := s.store.PutObject(ctx, account, servicesObject, payload, nil); err != nil {
		return false, storeUnavailable("record services", err)
	}
	return true, nil
}

// DeleteAccount removes an account that has no users left, deleting its
// storage tenant, service record and id mapping. Remaining users or tenant
// data surface as ErrConflict.
func (s *Service) DeleteAccount(ctx context.Context, account string) error {
	if !validName(account) {
		return fmt.Errorf("%w: invalid account name", ErrInvalidInput)
	}

	users, err := s.listAccountUsers(ctx, account)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return fmt.Errorf("%w: account %q still has users", ErrConflict, account)
	}

	meta, err := s.store.ContainerMeta(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return storeUnavailable("head account", err)
	}
	accountID := meta[accountMetaID]

	if accountID != "" {
		if err := s.cluster.DeleteTenant(ctx, accountID); err != nil {
			switch {
			case errors.Is(err, cluster.ErrNotEmpty):
				return fmt.Errorf("%w: storage account %q not empty", ErrConflict, accountID)
			case errors.Is(err, cluster.ErrNotFound):
			default:
				return fmt.Errorf("%w: delete tenant: %v", ErrStoreUnavailable, err)
			}
		}
		if err := s.store.DeleteObject(ctx, accountIDContainer, accountID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return storeUnavailable("delete id mapping", err)
		}
	}
	if err := s.store.DeleteObject(ctx, account, servicesObject); err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeUnavailable("delete services", err)
	}
	if err := s.store.DeleteContainer(ctx, account); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
		case errors.Is(err, store.ErrNotEmpty):
			return fmt.Errorf("%w: account %q not empty", ErrConflict, account)
		default:
			return storeUnavailable("delete account", err)
		}
	}
	return nil
}

// GetAccount returns the admin view of one account.
func (s *Service) GetAccount(ctx context.Context, account string) (AccountDetail, error) {
	if !validName(account) {
		return AccountDetail{}, fmt.Errorf("%w: invalid account name", ErrInvalidInput)
	}
	services, err := s.GetServices(ctx, account)
	if err != nil {
		return AccountDetail{}, err
	}
	meta, err := s.store.ContainerMeta(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AccountDetail{}, ErrNotFound
		}
		return AccountDetail{}, storeUnavailable("head account", err)
	}
	users, err := s.listAccountUsers(ctx, account)
	if err != nil {
		return AccountDetail{}, err
	}
	refs := make([]NameRef, 0, len(users))
	for _, u := range users {
		refs = append(refs, NameRef{Name: u})
	}
	return AccountDetail{
		AccountID: meta[accountMetaID],
		Services:  services,
		Users:     refs,
	}, nil
}

// ListAccounts returns every account in the system.
func (s *Service) ListAccounts(ctx context.Context) (ResellerDetail, error) {
	detail := ResellerDetail{Accounts: []NameRef{}}
	marker := ""
	for {
		page, err := s.store.ListContainers(ctx, marker, store.DefaultPageSize)
		if err != nil {
			return ResellerDetail{}, storeUnavailable("list accounts", err)
		}
		if len(page) == 0 {
			return detail, nil
		}
		for _, name := range page {
			if !strings.HasPrefix(name, ".") {
				detail.Accounts = append(detail.Accounts, NameRef{Name: name})
			}
		}
		marker = page[len(page)-1]
	}
}

// PutUserRequest carries the inputs for creating or updating a user.
type PutUserRequest struct {
	Account string
	User    string
	// Key is the plaintext key to encode with the configured encoder.
	Key string
	// KeyHash is an already-encoded credential stored verbatim; it wins
	// over Key when both are set.
	KeyHash       string
	Admin         bool
	ResellerAdmin bool
}

// PutUser creates or replaces a user record. Any live token of the user is
// revoked so the change takes effect immediately. Returns true when the user
// was created rather than updated.
func (s *Service) PutUser(ctx context.Context, req PutUserRequest) (bool, error) {
	if !validName(req.Account) || !validName(req.User) {
		return false, fmt.Errorf("%w: invalid account or user name", ErrInvalidInput)
	}
	if req.Key == "" && req.KeyHash == "" {
		return false, fmt.Errorf("%w: a key or key hash is required", ErrInvalidInput)
	}

	authValue := req.KeyHash
	if authValue != "" {
		if !creds.ValidScheme(authValue) {
			return false, fmt.Errorf("%w: unrecognized key hash format", ErrInvalidInput)
		}
	} else {
		encoded, err := s.encoder.Encode(req.Key)
		if err != nil {
			return false, fmt.Errorf("auth: encode key: %w", err)
		}
		authValue = encoded
	}

	meta, err := s.store.ContainerMeta(ctx, req.Account)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, storeUnavailable("head account", err)
	}
	accountID := meta[accountMetaID]

	created := true
	oldToken := ""
	if oldMeta, err := s.store.HeadObject(ctx, req.Account, req.User); err == nil {
		created = false
		oldToken = oldMeta[userMetaToken]
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, storeUnavailable("head user", err)
	}

	groups := []string{req.Account + ":" + req.User, req.Account}
	if req.Admin || req.ResellerAdmin {
		groups = append(groups, GroupAdmin)
	}
	if req.ResellerAdmin {
		groups = append(groups, GroupResellerAdmin)
	}
	payload, err := json.Marshal(UserRecord{Auth: authValue, Groups: WireGroups(groups)})
	if err != nil {
		return false, fmt.Errorf("auth: encode user record: %w", err)
	}
	objMeta := map[string]string{accountMetaID: accountID}
	if err := s.store.PutObject(ctx, req.Account, req.User, payload, objMeta); err != nil {
		return false, storeUnavailable("write user", err)
	}

	if oldToken != "" {
		if err := s.RevokeToken(ctx, oldToken); err != nil {
			return false, err
		}
	}
	s.cache.DropUser(req.Account, req.User)
	return created, nil
}

// GetUser returns one user's stored record.
func (s *Service) GetUser(ctx context.Context, account, user string) (User, error) {
	if !validName(account) || !validName(user) {
		return User{}, fmt.Errorf("%w: invalid account or user name", ErrInvalidInput)
	}
	data, err := s.store.GetObject(ctx, account, user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, storeUnavailable("read user", err)
	}
	var rec UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return User{}, fmt.Errorf("auth: decode user record: %w", err)
	}
	return User{Account: account, Name: user, UserRecord: rec}, nil
}

// DeleteUser removes a user and revokes their live token.
func (s *Service) DeleteUser(ctx context.Context, account, user string) error {
	if !validName(account) || !validName(user) {
		return fmt.Errorf("%w: invalid account or user name", ErrInvalidInput)
	}
	meta, err := s.store.HeadObject(ctx, account, user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return storeUnavailable("head user", err)
	}
	if tok := meta[userMetaToken]; tok != "" {
		if err := s.RevokeToken(ctx, tok); err != nil {
			return err
		}
	}
	if err := s.store.DeleteObject(ctx, account, user); err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeUnavailable("delete user", err)
	}
	s.cache.DropUser(account, user)
	return nil
}

// GroupsForAccount returns the union of groups across an account's users.
func (s *Service) GroupsForAccount(ctx context.Context, account string) (GroupsDetail, error) {
	if !validName(account) {
		return GroupsDetail{}, fmt.Errorf("%w: invalid account name", ErrInvalidInput)
	}
	users, err := s.listAccountUsers(ctx, account)
	if err != nil {
		return GroupsDetail{}, err
	}
	seen := make(map[string]struct{})
	for _, name := range users {
		u, err := s.GetUser(ctx, account, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return GroupsDetail{}, err
		}
		for _, g := range u.Groups {
			seen[g.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	detail := GroupsDetail{Groups: make([]NameRef, 0, len(names))}
	for _, name := range names {
		detail.Groups = append(detail.Groups, NameRef{Name: name})
	}
	return detail, nil
}

// GetServices returns the account's service endpoint record.
func (s *Service) GetServices(ctx context.Context, account string) (Services, error) {
	data, err := s.store.GetObject(ctx, account, servicesObject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeUnavailable("read services", err)
	}
	var services Services
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("auth: decode services: %w", err)
	}
	return services, nil
}

// SetServices merges new endpoints into the account's service record and
// returns the updated record.
func (s *Service) SetServices(ctx context.Context, account string, updates Services) (Services, error) {
	if !validName(account) {
		return nil, fmt.Errorf("%w: invalid account name", ErrInvalidInput)
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: no services given", ErrInvalidInput)
	}
	current, err := s.GetServices(ctx, account)
	if err != nil {
		return nil, err
	}
	merged := current.Merge(updates)
	payload, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("auth: encode services: %w", err)
	}
	if err := s.store.PutObject(ctx, account, servicesObject, payload, nil); err != nil {
		return nil, storeUnavailable("write services", err)
	}
	return merged, nil
}

// ValidateCredentials checks an account:user/key pair against the stored
// record. Unknown users and wrong keys both come back as
// ErrInvalidCredentials.
func (s *Service) ValidateCredentials(ctx context.Context, account, user, key string) (User, error) {
	if account == "" || user == "" {
		return User{}, ErrInvalidCredentials
	}
	rec, ok := s.cache.GetUser(account, user)
	if !ok {
		u, err := s.GetUser(ctx, account, user)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
				return User{}, ErrInvalidCredentials
			default:
				return User{}, err
			}
		}
		rec = u.UserRecord
		s.cache.PutUser(account, user, rec)
	}
	match, err := creds.Validate(rec.Auth, key)
	if err != nil {
		return User{}, fmt.Errorf("auth: stored credential for %s:%s: %w", account, user, err)
	}
	if !match {
		return User{}, ErrInvalidCredentials
	}
	return User{Account: account, Name: user, UserRecord: rec}, nil
}

// listAccountUsers pages through an account container and returns the
// non-system object names.
func (s *Service) listAccountUsers(ctx context.Context, account string) ([]string, error) {
	var users []string
	marker := ""
	for {
		page, err := s.store.ListObjects(ctx, account, marker, store.DefaultPageSize)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, storeUnavailable("list users", err)
		}
		if len(page) == 0 {
			return users, nil
		}
		for _, name := range page {
			if !strings.HasPrefix(name, ".") {
				users = append(users, name)
			}
		}
		marker = page[len(page)-1]
	}
}
