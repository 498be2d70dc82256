package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ostiary.org/internal/audit"
	"ostiary.org/internal/auth"
)

// unquote percent-decodes a header value, keeping it verbatim when the
// escaping is malformed. Clients historically send "act%3Ausr" here.
func unquote(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

// handleGetToken authenticates a user and returns their token and service
// endpoints. Three path forms are accepted for compatibility with the auth
// servers that came before:
//
//	GET <prefix>/v1/<account>/auth
//	    X-Auth-User: <account>:<user>  or  X-Storage-User: <user>
//	    X-Auth-Key: <key>              or  X-Storage-Pass: <key>
//	GET <prefix>/auth
//	GET <prefix>/v1.0
//	    X-Auth-User: <account>:<user>  or  X-Storage-User: <account>:<user>
//	    X-Auth-Key: <key>              or  X-Storage-Pass: <key>
//
// X-Auth-New-Token: true revokes any live token and mints a fresh one.
// X-Auth-Token-Lifetime requests a validity period in seconds, capped at the
// configured maximum. The response carries the token, the storage URL of the
// default cluster and the account's services record as the body.
func (a *API) handleGetToken(w http.ResponseWriter, r *http.Request) {
	segs := strings.SplitN(strings.TrimPrefix(r.URL.Path, a.authPrefix), "/", 3)

	var account, user, key string
	switch {
	case segs[0] == "v1" && len(segs) == 3 && segs[2] == "auth":
		account = segs[1]
		user = r.Header.Get("X-Storage-User")
		if user == "" {
			authUser := unquote(r.Header.Get("X-Auth-User"))
			headerAccount, headerUser, ok := strings.Cut(authUser, ":")
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			if headerAccount != account {
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			user = headerUser
		}
		key = r.Header.Get("X-Storage-Pass")
		if key == "" {
			key = unquote(r.Header.Get("X-Auth-Key"))
		}
	case segs[0] == "auth" || segs[0] == "v1.0":
		combined := unquote(r.Header.Get("X-Auth-User"))
		if combined == "" {
			combined = r.Header.Get("X-Storage-User")
		}
		var ok bool
		account, user, ok = strings.Cut(combined, ":")
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		key = unquote(r.Header.Get("X-Auth-Key"))
		if key == "" {
			key = r.Header.Get("X-Storage-Pass")
		}
	default:
		writeError(w, r, http.StatusBadRequest, "bad request")
		return
	}
	if account == "" || user == "" || key == "" {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	if user == auth.SuperAdminUser {
		a.superAdminToken(w, r, key)
		return
	}

	u, err := a.svc.ValidateCredentials(r.Context(), account, user, key)
	if err != nil {
		credentialError(w, r, err)
		return
	}

	var lifetime time.Duration
	if raw := r.Header.Get("X-Auth-Token-Lifetime"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			lifetime = time.Duration(secs) * time.Second
		}
	}

	tok, err := a.svc.IssueToken(r.Context(), auth.IssueRequest{
		Account:  account,
		User:     user,
		Groups:   u.Groups,
		Lifetime: lifetime,
		ForceNew: trueValue(r.Header.Get("X-Auth-New-Token")),
	})
	if err != nil {
		credentialError(w, r, err)
		return
	}

	services, err := a.svc.GetServices(r.Context(), account)
	if err != nil {
		if errors.Is(err, auth.ErrStoreUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "auth store unavailable")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("X-Auth-Token", tok.Value)
	w.Header().Set("X-Storage-Token", tok.Value)
	w.Header().Set("X-Auth-Token-Expires", strconv.Itoa(int(tok.TTL(a.now())/time.Second)))
	if u := storageURL(services); u != "" {
		w.Header().Set("X-Storage-Url", u)
	}
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"account": account,
		"user":    user,
	})
	writeJSON(w, http.StatusOK, services)
}

// superAdminToken answers a token request for the reserved super admin: the
// per-process internal token and the auth account's own service record.
func (a *API) superAdminToken(w http.ResponseWriter, r *http.Request, key string) {
	if _, err := a.svc.ResolveAdmin(r.Context(), auth.SuperAdminUser, key); err != nil {
		credentialError(w, r, err)
		return
	}
	token := a.svc.InternalToken()
	services := a.svc.InternalServices()
	w.Header().Set("X-Auth-Token", token)
	w.Header().Set("X-Storage-Token", token)
	if u := storageURL(services); u != "" {
		w.Header().Set("X-Storage-Url", u)
	}
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"user": auth.SuperAdminUser,
	})
	writeJSON(w, http.StatusOK, services)
}

// credentialError maps authentication failures on the token path. Unknown
// users and accounts surface as unauthorized, not as not found.
func credentialError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "auth store unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func storageURL(services auth.Services) string {
	storage := services["storage"]
	return storage[storage["default"]]
}

// handleValidateToken resolves GET v2/.token/<token>, usually called by the
// storage backend. Success is a 204 with X-Auth-TTL and X-Auth-Groups; the
// first group identifies the user.
func (a *API) handleValidateToken(w http.ResponseWriter, r *http.Request, tail []string) {
	if len(tail) != 2 || !strings.HasPrefix(tail[1], a.svc.ResellerPrefix()) {
		writeError(w, r, http.StatusBadRequest, "bad request")
		return
	}
	tok, err := a.svc.ValidateToken(r.Context(), tail[1])
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
			writeError(w, r, http.StatusNotFound, "token not found")
		case errors.Is(err, auth.ErrStoreUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "auth store unavailable")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	w.Header().Set("X-Auth-TTL", strconv.Itoa(int(tok.TTL(a.now())/time.Second)))
	w.Header().Set("X-Auth-Groups", strings.Join(tok.ResolvedGroups(), ","))
	w.WriteHeader(http.StatusNoContent)
}
