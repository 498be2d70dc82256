package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"ostiary.org/internal/audit"
	"ostiary.org/internal/auth"
	"ostiary.org/internal/creds"
)

// handleAuth routes requests under the auth prefix: the legacy token
// endpoints and the v2 administrative API. Unroutable requests are bad
// requests, not unknown resources, to match the servers clients were
// written against.
func (a *API) handleAuth(w http.ResponseWriter, r *http.Request) {
	segs := strings.SplitN(strings.TrimPrefix(r.URL.Path, a.authPrefix), "/", 4)

	switch segs[0] {
	case "v1", "v1.0", "auth":
		if r.Method != http.MethodGet {
			writeError(w, r, http.StatusBadRequest, "bad request")
			return
		}
		a.tokens.ServeHTTP(w, r)
	case "v2":
		a.handleAdmin(w, r, segs[1:])
	default:
		writeError(w, r, http.StatusBadRequest, "bad request")
	}
}

// handleAdmin dispatches the v2 administrative calls. tail holds the raw
// path segments after "v2"; handlers validate their own exact shape, so a
// trailing slash is a bad request just like any other junk.
func (a *API) handleAdmin(w http.ResponseWriter, r *http.Request, tail []string) {
	var account, user string
	if len(tail) > 0 {
		account = tail[0]
	}
	if len(tail) > 1 {
		user = tail[1]
	}

	switch r.Method {
	case http.MethodGet:
		switch {
		case account == "" && user == "":
			a.handleGetReseller(w, r)
		case account == ".token" && user != "":
			a.handleValidateToken(w, r, tail)
		case account != "" && user == "":
			a.handleGetAccount(w, r, tail)
		case account != "":
			a.handleGetUser(w, r, tail)
		default:
			writeError(w, r, http.StatusBadRequest, "bad request")
		}
	case http.MethodPut:
		if user == "" {
			a.handlePutAccount(w, r, tail)
		} else {
			a.handlePutUser(w, r, tail)
		}
	case http.MethodDelete:
		if user == "" {
			a.handleDeleteAccount(w, r, tail)
		} else {
			a.handleDeleteUser(w, r, tail)
		}
	case http.MethodPost:
		switch {
		case account == ".prep":
			a.handlePrep(w, r)
		case user == ".services":
			a.handleSetServices(w, r, tail)
		default:
			writeError(w, r, http.StatusBadRequest, "bad request")
		}
	default:
		writeError(w, r, http.StatusBadRequest, "bad request")
	}
}

// resolveAdmin authenticates the X-Auth-Admin-User and X-Auth-Admin-Key
// headers and attaches the admin to the request context for audit records.
// On failure the response has been written.
func (a *API) resolveAdmin(w http.ResponseWriter, r *http.Request) (*http.Request, auth.Admin, bool) {
	admin, err := a.svc.ResolveAdmin(r.Context(),
		r.Header.Get("X-Auth-Admin-User"), r.Header.Get("X-Auth-Admin-Key"))
	if err != nil {
		adminError(w, r, err)
		return r, auth.Admin{}, false
	}
	return r.WithContext(auth.ContextWithAdmin(r.Context(), admin)), admin, true
}

// adminError maps service errors on administrative calls to status codes.
// Invalid admin credentials are unauthorized; valid credentials without the
// needed privilege are forbidden and handled at the call sites.
func adminError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "auth store unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// handlePrep creates the reserved containers in the backing store. Super
// admin only; safe to repeat.
func (a *API) handlePrep(w http.ResponseWriter, r *http.Request) {
	r, admin, ok := a.resolveAdmin(w, r)
	if !ok {
		return
	}
	if admin.Level != auth.AdminSuper {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if err := a.svc.Prep(r.Context()); err != nil {
		adminError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.store.prepared", nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetReseller lists every account. Reseller admin only.
func (a *API) handleGetReseller(w http.ResponseWriter, r *http.Request) {
	r, admin, ok := a.resolveAdmin(w, r)
	if !ok {
		return
	}
	if admin.Level < auth.AdminReseller {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	detail, err := a.svc.ListAccounts(r.Context())
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleGetAccount returns one account's id, services and users. Account
// admin or better.
func (a *API) handleGetAccount(w http.ResponseWriter, r *http.Request, tail []string) {
	if len(tail) != 1 || tail[0] == "" || tail[0][0] == '.' {
		writeError(w, r, http.StatusBadRequest, "bad request")
		return
	}
	account := tail[0]
	r, admin, ok := a.resolveAdmin(w, r)
	if !ok {
		return
	}
	if !admin.Administers(account) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	detail, err := a.svc.GetAccount(r.Context(), account)
	if err != nil {
		adminError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handlePutAccount registers an account. Reseller admin only. An
// X-Account-Suffix header pins the storage account id suffix; 202 when the
// account already existed.
func (a *API) handlePutAccount(w http.ResponseWriter, r *http.Request, tail []string) {
	r, admin, ok := a.resolveAdmin(w, r)
	if !ok {
		return
	}
	if admin.Level < auth.AdminReseller {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if len(tail) != 1 || tail[0] == "" || tail[0][0] == '.' {
		writeError(w, r, http.StatusBadRequest, "bad request")
		return
	}
	account := tail[0]
	created, err := a.svc.CreateAccount(r.Context(), account, r.Header.Get("X-Account-Suffix"))
	if err != nil {
		adminError(w, r, err)
		return
	}
	if !created {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.account.created", map[string]any{
		"account": account,
	})
	w.WriteHeader(http.StatusCreated)
}

// handleDeleteAccount removes an account that has no users left. Reseller
// admin only.
func (a *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request, tail []string) {
	r, admin, ok := a.resolveAdmin(w, r)
	if !ok {
		return
	}
	if admin.Level < auth.AdminReseller {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if len(tail) != 1 || tail[0] == "" || tail[0][0] == '.' {
		writeError(w, r, http.StatusBadRequest, "bad request")
		return
	}
	account := tail[0]
	if err := a.svc.DeleteAccount(r.Context(), account); err != nil {
		adminError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.account.deleted", map[string]any{
		"account": account,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleGetUser returns a user's stored record, or the union of all groups
// in the account for the reserved user ".groups". Account admin or better;
// records of admins are visible to reseller admins and up, records of
// reseller admins only to the super admin.
func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request, tail []string) {
	if len(tail) != 2 || tail[0] == "" || tail[0][0] == '.' || tail[1] == "" ||
		(tail[1][0] == '.' && tail[1] != ".groups") {
		writeError(w, r, http.StatusBadRequest, "bad request")
		return
	}
	account, user := tail[0], tail[1]
	r, admin, ok := a.resolveAdmin(w, r)
	if !ok {
		return
	}
	if !admin.Administers(account) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if user == ".groups" {
		detail, err := a.svc.GroupsForAccount(r.Context(), account)
		if err != nil {
			adminError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}
	u, err := a.svc.GetUser(r.Context(), account, user)
	if err != nil {
		adminError(w, r, err)
		return
	}
	if (u.Admin() && admin.Level < auth.AdminReseller) ||
		(u.ResellerAdmin() && admin.Level < auth.AdminSuper) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, u.UserRecord)
}

// handlePutUser creates or replaces a user. X-Auth-User-Key carries the
// plaintext key, X-Auth-User-Key-Hash an already-encoded credential.
// X-Auth-User-Admin and X-Auth-User-Reseller-Admin grant the markers; only
// the super admin may grant reseller admin. A user with valid credentials
// may change their own key without holding admin rights, but cannot raise
// their own privileges that way.
func (a *API) handlePutUser(w http.ResponseWriter, r *http.Request, tail []string) {
	key := unquote(r.Header.Get("X-Auth-User-Key"))
	keyHash := unquote(r.Header.Get("X-Auth-User-Key-Hash"))
	wantAdmin := r.Header.Get("X-Auth-User-Admin") == "true"
	wantReseller := r.Header.Get("X-Auth-User-Reseller-Admin") == "true"
	if wantReseller {
		wantAdmin = true
	}
	if len(tail) != 2 || tail[0] == "" || tail[0][0] == '.' ||
		tail[1] == "" || tail[1][0] == '.' || (key == "" && keyHash == "") {
		writeError(w, r, http.StatusBadRequest, "bad request")
		return
	}
	if keyHash != "" && !creds.ValidScheme(keyHash) {
		writeError(w, r, http.StatusBadRequest, "unrecognized key hash format")
		return
	}
	account, user := tail[0], tail[1]

	r, admin, ok := a.resolveAdmin(w, r)
	if !ok {
		return
	}
	changingOwn := admin.ChangingOwnKey(account, user, wantAdmin, wantReseller)
	if wantReseller {
		if admin.Level != auth.AdminSuper && !changingOwn {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
	} else if !admin.Administers(account) && !changingOwn {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}

	created, err := a.svc.PutUser(r.Context(), auth.PutUserRequest{
		Account:       account,
		User:          user,
		Key:           key,
		KeyHash:       keyHash,
		Admin:         wantAdmin,
		ResellerAdmin: wantReseller,
	})
	if err != nil {
		adminError(w, r, err)
		return
	}
	event := "auth.user.updated"
	if created {
		event = "auth.user.created"
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"account":        account,
		"user":           user,
		"admin":          wantAdmin,
		"reseller_admin": wantReseller,
	})
	w.WriteHeader(http.StatusCreated)
}

// handleDeleteUser removes a user and revokes their live token. Account
// admin or better; deleting a reseller admin takes the super admin.
func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request, tail []string) {
	if len(tail) != 2 || tail[0] == "" || tail[0][0] == '.' ||
		tail[1] == "" || tail[1][0] == '.' {
		writeError(w, r, http.StatusBadRequest, "bad request")
		return
	}
	account, user := tail[0], tail[1]

	// The target's record decides both the 404 and the reseller guard, so
	// it is fetched before the caller is authenticated.
	target, err := a.svc.GetUser(r.Context(), account, user)
	if err != nil {
		adminError(w, r, err)
		return
	}
	r, admin, ok := a.resolveAdmin(w, r)
	if !ok {
		return
	}
	if target.ResellerAdmin() && admin.Level != auth.AdminSuper {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if !admin.Administers(account) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if err := a.svc.DeleteUser(r.Context(), account, user); err != nil {
		adminError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.user.deleted", map[string]any{
		"account": account,
		"user":    user,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleSetServices merges endpoints into an account's services record and
// returns the updated record. Reseller admin only.
func (a *API) handleSetServices(w http.ResponseWriter, r *http.Request, tail []string) {
	r, admin, ok := a.resolveAdmin(w, r)
	if !ok {
		return
	}
	if admin.Level < auth.AdminReseller {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	if len(tail) != 2 || tail[0] == "" || tail[0][0] == '.' || tail[1] != ".services" {
		writeError(w, r, http.StatusBadRequest, "bad request")
		return
	}
	account := tail[0]
	var updates auth.Services
	if err := decodeJSON(w, r, &updates); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	merged, err := a.svc.SetServices(r.Context(), account, updates)
	if err != nil {
		adminError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.services.updated", map[string]any{
		"account": account,
	})
	writeJSON(w, http.StatusOK, merged)
}
