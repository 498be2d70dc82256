package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Resource identifies the storage path a request targets. Object keeps any
// slashes it contains.
type Resource struct {
	Account   string
	Container string
	Object    string
}

// ParseResource splits a storage path of the form
// /<version>/<account>/<container>/<object>. Trailing segments may be
// absent; empty segments in the middle make the path invalid.
func ParseResource(path string) (Resource, bool) {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 4)
	if parts[0] == "" {
		return Resource{}, false
	}
	var res Resource
	if len(parts) > 1 {
		res.Account = parts[1]
	}
	if len(parts) > 2 {
		res.Container = parts[2]
	}
	if len(parts) > 3 {
		res.Object = parts[3]
	}
	if res.Account == "" && (res.Container != "" || res.Object != "") {
		return Resource{}, false
	}
	if res.Container == "" && res.Object != "" {
		return Resource{}, false
	}
	return res, true
}

// AuthRequest is one storage request to authorize.
type AuthRequest struct {
	Method   string
	Resource Resource
	Referrer string
	// Token is the validated token, nil for anonymous requests.
	Token *Token
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	// Owner marks administrative control over the account: the storage
	// backend exposes internal headers and honors ACL changes for owners.
	Owner bool
}

// Authorize decides whether a storage request may proceed. Order of
// precedence: reseller admins own every user account, account members own
// their account, then container ACLs admit readers and writers, referrer
// based or by group. ACL reads that fail surface as errors so callers can
// distinguish unavailable from denied.
func (s *Service) Authorize(ctx context.Context, req AuthRequest) (Decision, error) {
	account := req.Resource.Account
	if account == "" || !strings.HasPrefix(account, s.resellerPrefix) {
		return Decision{}, nil
	}

	var groups []string
	if req.Token != nil {
		groups = req.Token.ResolvedGroups()
	}

	// Reseller admins control every account except the system ones under
	// "<prefix>.".
	if contains(groups, GroupResellerAdmin) &&
		account != s.resellerPrefix &&
		account[len(s.resellerPrefix)] != '.' {
		return Decision{Allowed: true, Owner: true}, nil
	}

	// Account members own their account, but account creation and deletion
	// stay with the reseller.
	if contains(groups, account) &&
		((req.Method != http.MethodDelete && req.Method != http.MethodPut) || req.Resource.Container != "") {
		return Decision{Allowed: true, Owner: true}, nil
	}

	var referrers, aclGroups []string
	if req.Resource.Container != "" {
		pair, err := s.containerACL(ctx, account, req.Resource.Container)
		if err != nil {
			return Decision{}, err
		}
		acl := pair.Write
		if req.Method == http.MethodGet || req.Method == http.MethodHead {
			acl = pair.Read
		}
		referrers, aclGroups = ParseACL(acl)
	}

	if ReferrerAllowed(req.Referrer, referrers) {
		if req.Resource.Object != "" || contains(aclGroups, aclListings) {
			return Decision{Allowed: true}, nil
		}
	}
	if len(groups) == 0 {
		return Decision{}, nil
	}
	for _, g := range groups {
		if contains(aclGroups, g) {
			return Decision{Allowed: true}, nil
		}
	}
	return Decision{}, nil
}

// InvalidateContainerACL drops cached ACLs after a container metadata
// change has been forwarded to the cluster.
func (s *Service) InvalidateContainerACL(accountID, container string) {
	s.cache.DropACL(accountID, container)
}

func (s *Service) containerACL(ctx context.Context, accountID, container string) (ACLPair, error) {
	if pair, ok := s.cache.GetACL(accountID, container); ok {
		return pair, nil
	}
	read, write, err := s.cluster.ContainerACL(ctx, accountID, container)
	if err != nil {
		return ACLPair{}, fmt.Errorf("%w: read container acl: %v", ErrStoreUnavailable, err)
	}
	pair := ACLPair{Read: read, Write: write}
	s.cache.PutACL(accountID, container, pair)
	return pair, nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
