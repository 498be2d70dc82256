package auth

import (
	"time"
)

// Group markers carried inside identity records. GroupAdmin marks an account
// administrator and is swapped for the storage account id when a token is
// resolved. GroupResellerAdmin grants control over every account.
const (
	GroupAdmin         = ".admin"
	GroupResellerAdmin = ".reseller_admin"
	GroupAuth          = ".auth"
)

// Group is the wire form of a group membership inside stored records.
type Group struct {
	Name string `json:"name"`
}

// GroupNames flattens wire groups to their names.
func GroupNames(groups []Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Name)
	}
	return out
}

// WireGroups builds wire groups from names.
func WireGroups(names []string) []Group {
	out := make([]Group, 0, len(names))
	for _, n := range names {
		out = append(out, Group{Name: n})
	}
	return out
}

// UserRecord is the stored form of a user: the encoded credential plus group
// memberships. The first group is always "<account>:<user>", the second the
// bare account name, followed by any admin markers.
type UserRecord struct {
	Auth   string  `json:"auth"`
	Groups []Group `json:"groups"`
}

// Admin reports whether the record carries the account admin marker.
func (u UserRecord) Admin() bool { return u.hasGroup(GroupAdmin) }

// ResellerAdmin reports whether the record carries the reseller admin marker.
func (u UserRecord) ResellerAdmin() bool { return u.hasGroup(GroupResellerAdmin) }

func (u UserRecord) hasGroup(name string) bool {
	for _, g := range u.Groups {
		if g.Name == name {
			return true
		}
	}
	return false
}

// User pairs a stored record with its location.
type User struct {
	Account string
	Name    string
	UserRecord
}

// Token is a validated token with the group snapshot taken at issuance.
type Token struct {
	Value     string
	Account   string
	User      string
	AccountID string
	Groups    []string
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at the given instant.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TTL returns the remaining lifetime at the given instant, never negative.
func (t Token) TTL(now time.Time) time.Duration {
	if t.Expired(now) {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}

// ResolvedGroups returns the groups used for authorization: the account
// admin marker is replaced by the storage account id so that ownership
// checks work on request paths.
func (t Token) ResolvedGroups() []string {
	out := make([]string, 0, len(t.Groups)+1)
	admin := false
	for _, g := range t.Groups {
		if g == GroupAdmin {
			admin = true
			continue
		}
		out = append(out, g)
	}
	if admin && t.AccountID != "" {
		out = append(out, t.AccountID)
	}
	return out
}

// HasGroup reports membership in a resolved group.
func (t Token) HasGroup(name string) bool {
	for _, g := range t.ResolvedGroups() {
		if g == name {
			return true
		}
	}
	return false
}

// ResellerAdmin reports whether the token grants reseller control.
func (t Token) ResellerAdmin() bool { return t.HasGroup(GroupResellerAdmin) }

// Services maps service names to cluster endpoints, e.g.
// {"storage": {"default": "local", "local": "http://host/v1/AUTH_id"}}.
type Services map[string]map[string]string

// Merge overlays other onto s, replacing individual endpoints while keeping
// untouched ones.
func (s Services) Merge(other Services) Services {
	out := make(Services, len(s)+len(other))
	for name, endpoints := range s {
		cp := make(map[string]string, len(endpoints))
		for k, v := range endpoints {
			cp[k] = v
		}
		out[name] = cp
	}
	for name, endpoints := range other {
		cur, ok := out[name]
		if !ok {
			cur = make(map[string]string, len(endpoints))
			out[name] = cur
		}
		for k, v := range endpoints {
			cur[k] = v
		}
	}
	return out
}

// NameRef is a single named entry in listing responses.
type NameRef struct {
	Name string `json:"name"`
}

// AccountDetail is the admin view of one account.
type AccountDetail struct {
	AccountID string    `json:"account_id"`
	Services  Services  `json:"services"`
	Users     []NameRef `json:"users"`
}

// ResellerDetail lists accounts visible to a reseller admin.
type ResellerDetail struct {
	Accounts []NameRef `json:"accounts"`
}

// GroupsDetail is the union of groups across an account's users.
type GroupsDetail struct {
	Groups []NameRef `json:"groups"`
}
