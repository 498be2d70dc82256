package auth

import (
	"context"
	"crypto/subtle"
	"strings"
)

// SuperAdminUser is the reserved name the service owner authenticates as
// with the configured super admin key.
const SuperAdminUser = ".super_admin"

// AdminLevel orders administrative privilege tiers.
type AdminLevel int

const (
	AdminNone AdminLevel = iota
	AdminAccount
	AdminReseller
	AdminSuper
)

func (l AdminLevel) String() string {
	switch l {
	case AdminAccount:
		return "account"
	case AdminReseller:
		return "reseller"
	case AdminSuper:
		return "super"
	default:
		return "none"
	}
}

// Admin identifies the caller of an administrative request.
type Admin struct {
	Level AdminLevel
	// User is the caller's record; empty for the super admin.
	User User
}

// Actor names the admin for audit records, "account:user" or the
// reserved super admin name.
func (a Admin) Actor() string {
	if a.User.Name == "" {
		return SuperAdminUser
	}
	return a.User.Account + ":" + a.User.Name
}

// Administers reports whether the admin can manage the given account.
func (a Admin) Administers(account string) bool {
	switch a.Level {
	case AdminSuper, AdminReseller:
		return true
	case AdminAccount:
		return a.User.Account == account
	default:
		return false
	}
}

// ChangingOwnKey reports whether the caller is the target user updating
// their own key without raising their own privileges.
func (a Admin) ChangingOwnKey(account, user string, wantAdmin, wantResellerAdmin bool) bool {
	if a.User.Account != account || a.User.Name != user {
		return false
	}
	if !a.User.Admin() && (wantAdmin || wantResellerAdmin) {
		return false
	}
	if !a.User.ResellerAdmin() && wantResellerAdmin {
		return false
	}
	return true
}

// ResolveAdmin authenticates the administrative credentials of a request.
// The reserved ".super_admin" user is checked against the configured key;
// everything else is "account:user" checked against the stored record. Valid
// credentials without any admin marker resolve to AdminNone.
func (s *Service) ResolveAdmin(ctx context.Context, adminUser, adminKey string) (Admin, error) {
	if adminUser == SuperAdminUser {
		if s.superAdminKey == "" {
			return Admin{}, ErrInvalidCredentials
		}
		if subtle.ConstantTimeCompare([]byte(adminKey), []byte(s.superAdminKey)) != 1 {
			return Admin{}, ErrInvalidCredentials
		}
		return Admin{Level: AdminSuper}, nil
	}

	account, user, ok := strings.Cut(adminUser, ":")
	if !ok || account == "" || user == "" {
		return Admin{}, ErrInvalidCredentials
	}
	u, err := s.ValidateCredentials(ctx, account, user, adminKey)
	if err != nil {
		return Admin{}, err
	}
	level := AdminNone
	switch {
	case u.ResellerAdmin():
		level = AdminReseller
	case u.Admin():
		level = AdminAccount
	}
	return Admin{Level: level, User: u}, nil
}
