package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ostiary.org/internal/store"
)

// MaxTokenLength bounds token values accepted from clients. Anything longer
// is rejected before lookup.
const MaxTokenLength = 5000

// tokenRecord is the stored form of a token.
type tokenRecord struct {
	Account   string  `json:"account"`
	User      string  `json:"user"`
	AccountID string  `json:"account_id"`
	Groups    []Group `json:"groups"`
	Expires   int64   `json:"expires"`
}

func (r tokenRecord) token(value string) Token {
	return Token{
		Value:     value,
		Account:   r.Account,
		User:      r.User,
		AccountID: r.AccountID,
		Groups:    GroupNames(r.Groups),
		ExpiresAt: time.Unix(r.Expires, 0).UTC(),
	}
}

// IssueRequest carries the inputs for issuing a token to an already
// authenticated user.
type IssueRequest struct {
	Account string
	User    string
	// Groups is the user's stored group list, copied into the token record.
	Groups []Group
	// Lifetime requests a validity period; zero means the configured
	// default and anything above the configured maximum is clamped.
	Lifetime time.Duration
	// ForceNew revokes a live token instead of reusing it.
	ForceNew bool
}

// IssueToken returns the user's current token, minting a new one when none
// exists, the existing one expired, or a fresh one was demanded. The caller
// must have verified the user's credentials.
func (s *Service) IssueToken(ctx context.Context, req IssueRequest) (Token, error) {
	if req.Account == "" || req.User == "" {
		return Token{}, fmt.Errorf("%w: account and user are required", ErrInvalidInput)
	}
	now := s.now()

	meta, err := s.store.HeadObject(ctx, req.Account, req.User)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Token{}, ErrNotFound
		}
		return Token{}, storeUnavailable("head user", err)
	}

	if candidate := meta[userMetaToken]; candidate != "" {
		concealed := s.concealToken(candidate)
		shard := tokenContainer(concealed)
		if req.ForceNew {
			s.discardToken(ctx, candidate, shard, concealed)
		} else {
			data, err := s.store.GetObject(ctx, shard, concealed)
			switch {
			case err == nil:
				var rec tokenRecord
				if err := json.Unmarshal(data, &rec); err != nil {
					return Token{}, fmt.Errorf("auth: decode token record: %w", err)
				}
				if rec.Expires > now.Unix() {
					return rec.token(candidate), nil
				}
				s.discardToken(ctx, candidate, shard, concealed)
			case errors.Is(err, store.ErrNotFound):
				// Stale pointer, mint below.
			default:
				return Token{}, storeUnavailable("read token", err)
			}
		}
	}

	accountMeta, err := s.store.ContainerMeta(ctx, req.Account)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Token{}, ErrNotFound
		}
		return Token{}, storeUnavailable("head account", err)
	}
	accountID := accountMeta[accountMetaID]
	if accountID == "" {
		return Token{}, fmt.Errorf("auth: account %q has no storage account id", req.Account)
	}

	expires := now.Add(s.clampLife(req.Lifetime))
	rec := tokenRecord{
		Account:   req.Account,
		User:      req.User,
		AccountID: accountID,
		Groups:    req.Groups,
		Expires:   expires.Unix(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return Token{}, fmt.Errorf("auth: encode token record: %w", err)
	}

	var value string
	for attempt := 0; attempt < 3; attempt++ {
		value = s.resellerPrefix + "tk" + randomHex()
		concealed := s.concealToken(value)
		err = s.store.PutObjectIfAbsent(ctx, tokenContainer(concealed), concealed, payload, nil)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrExists) {
			continue
		}
		return Token{}, storeUnavailable("write token", err)
	}
	if err != nil {
		return Token{}, fmt.Errorf("auth: could not allocate a token value: %w", err)
	}

	if err := s.store.SetObjectMeta(ctx, req.Account, req.User, map[string]string{userMetaToken: value}); err != nil {
		return Token{}, storeUnavailable("record token", err)
	}
	return rec.token(value), nil
}

// ValidateToken resolves a token value to its identity. Expired tokens are
// deleted on sight and reported as ErrTokenExpired; unknown values as
// ErrInvalidToken.
func (s *Service) ValidateToken(ctx context.Context, value string) (Token, error) {
	if value == "" {
		return Token{}, ErrInvalidToken
	}
	now := s.now()

	if exp, ok := s.matchInternalToken(value); ok && exp.After(now) {
		return Token{Value: value, Groups: s.internalGroups(), ExpiresAt: exp}, nil
	}
	if tok, ok := s.cache.GetToken(value, now); ok {
		return tok, nil
	}

	concealed := s.concealToken(value)
	shard := tokenContainer(concealed)
	data, err := s.store.GetObject(ctx, shard, concealed)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Token{}, ErrInvalidToken
		}
		return Token{}, storeUnavailable("read token", err)
	}
	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Token{}, fmt.Errorf("auth: decode token record: %w", err)
	}
	if rec.Expires <= now.Unix() {
		s.discardToken(ctx, value, shard, concealed)
		return Token{}, ErrTokenExpired
	}

	tok := rec.token(value)
	s.cache.PutToken(tok)
	return tok, nil
}

// RevokeToken removes a token from the store and cache. Revoking an unknown
// or empty value is a no-op.
func (s *Service) RevokeToken(ctx context.Context, value string) error {
	if value == "" {
		return nil
	}
	concealed := s.concealToken(value)
	err := s.store.DeleteObject(ctx, tokenContainer(concealed), concealed)
	s.cache.DropToken(value)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeUnavailable("delete token", err)
	}
	return nil
}

// discardToken best-effort removes a dead token's record and cache entry.
func (s *Service) discardToken(ctx context.Context, value, shard, concealed string) {
	_ = s.store.DeleteObject(ctx, shard, concealed)
	s.cache.DropToken(value)
}

func storeUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
