package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"ostiary.org/internal/auth"
	"ostiary.org/internal/obs"
)

// Identity headers stamped onto authorized upstream requests. Inbound values
// are always stripped.
const (
	headerIdentityUser   = "X-Identity-User"
	headerIdentityGroups = "X-Identity-Groups"
	headerIdentityOwner  = "X-Identity-Owner"
)

// ACL headers honored on container PUT and POST requests.
var aclHeaders = []string{"X-Container-Read", "X-Container-Write"}

// intercept authenticates and authorizes a storage request before it reaches
// the upstream. OPTIONS requests pass through untouched so the upstream's
// CORS handling sees them.
func (a *API) intercept(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		a.forward(w, r, nil, auth.Decision{})
		return
	}

	value := r.Header.Get("X-Auth-Token")
	if value == "" {
		value = r.Header.Get("X-Storage-Token")
	}
	if len(value) > auth.MaxTokenLength {
		writeError(w, r, http.StatusBadRequest, "token exceeds maximum length")
		return
	}

	res, ok := auth.ParseResource(r.URL.Path)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	// A token carrying our reseller prefix is ours to judge outright. Any
	// other token is ignored and the request proceeds as anonymous, standing
	// or falling on referrer ACLs.
	var token *auth.Token
	if value != "" && strings.HasPrefix(value, a.svc.ResellerPrefix()) {
		tok, err := a.svc.ValidateToken(r.Context(), value)
		switch {
		case err == nil:
			obs.TokenValidation("ok")
			token = &tok
		case errors.Is(err, auth.ErrTokenExpired):
			obs.TokenValidation("expired")
			writeError(w, r, http.StatusUnauthorized, "token expired")
			return
		case errors.Is(err, auth.ErrInvalidToken):
			obs.TokenValidation("invalid")
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		case errors.Is(err, auth.ErrStoreUnavailable):
			obs.TokenValidation("error")
			writeError(w, r, http.StatusServiceUnavailable, "auth store unavailable")
			return
		default:
			obs.TokenValidation("error")
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}

	decision, err := a.svc.Authorize(r.Context(), auth.AuthRequest{
		Method:   r.Method,
		Resource: res,
		Referrer: r.Header.Get("Referer"),
		Token:    token,
	})
	if err != nil {
		if errors.Is(err, auth.ErrStoreUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "auth store unavailable")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	obs.AuthzDecision(decision.Allowed)
	if !decision.Allowed {
		if token != nil {
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		}
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	aclChanged, err := prepareACLHeaders(r, res, decision)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.forward(w, r, token, decision)
	if aclChanged {
		a.svc.InvalidateContainerACL(res.Account, res.Container)
	}
}

// prepareACLHeaders normalizes container ACL headers on container PUT and
// POST requests. Only owners may change ACLs; headers from anyone else are
// dropped. Reports whether an ACL change is being forwarded so cached
// entries can be invalidated once the upstream has seen it.
func prepareACLHeaders(r *http.Request, res auth.Resource, d auth.Decision) (bool, error) {
	if res.Container == "" || res.Object != "" {
		return false, nil
	}
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		return false, nil
	}
	changed := false
	for _, name := range aclHeaders {
		if _, present := r.Header[name]; !present {
			continue
		}
		if !d.Owner {
			r.Header.Del(name)
			continue
		}
		cleaned, err := auth.CleanACL(name, r.Header.Get(name))
		if err != nil {
			return false, err
		}
		r.Header.Set(name, cleaned)
		changed = true
	}
	return changed, nil
}

// forward hands the request to the storage upstream with the caller's
// resolved identity stamped on.
func (a *API) forward(w http.ResponseWriter, r *http.Request, token *auth.Token, d auth.Decision) {
	if a.upstream == nil {
		writeError(w, r, http.StatusBadGateway, "no storage upstream configured")
		return
	}
	r.Header.Del(headerIdentityUser)
	r.Header.Del(headerIdentityGroups)
	r.Header.Del(headerIdentityOwner)
	if token != nil {
		groups := token.ResolvedGroups()
		if len(groups) > 0 {
			r.Header.Set(headerIdentityUser, groups[0])
		}
		r.Header.Set(headerIdentityGroups, strings.Join(groups, ","))
	}
	if d.Owner {
		r.Header.Set(headerIdentityOwner, "true")
	}
	a.upstream.ServeHTTP(w, r)
}
