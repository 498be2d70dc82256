package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// Container ACL grammar. An ACL header value is a comma separated list of
// elements: group names, the any-authenticated marker "*", referrer
// designators ".r:<host>" (".r:*" for any referrer, ".r:-<host>" to revoke,
// ".<domain>" suffix patterns) and ".rlistings" which extends referrer
// grants to container listings. Referrer designators are only legal in read
// ACLs.

const (
	aclReferrerPrefix = ".r:"
	aclListings       = ".rlistings"
	aclAnyUser        = "*"
)

var referrerAliases = map[string]bool{
	".r":        true,
	".ref":      true,
	".referer":  true,
	".referrer": true,
}

// ParseACL splits an ACL string into referrer patterns and group names.
// Referrer patterns keep their negation prefix but lose the ".r:" tag.
func ParseACL(acl string) (referrers, groups []string) {
	if acl == "" {
		return nil, nil
	}
	for _, value := range strings.Split(acl, ",") {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if strings.HasPrefix(value, aclReferrerPrefix) {
			referrers = append(referrers, value[len(aclReferrerPrefix):])
		} else {
			groups = append(groups, value)
		}
	}
	return referrers, groups
}

// CleanACL validates and normalizes an ACL header value before it is stored
// on a container. The header name decides the rules: write ACLs must not
// carry referrer designators.
func CleanACL(name, value string) (string, error) {
	var values []string
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		first, second, hasColon := strings.Cut(raw, ":")
		if !hasColon {
			values = append(values, raw)
			continue
		}
		first = strings.TrimSpace(first)
		second = strings.TrimSpace(second)
		if !strings.HasPrefix(first, ".") {
			values = append(values, raw)
			continue
		}
		if !referrerAliases[strings.ToLower(first)] {
			return "", fmt.Errorf("unknown designator %q in ACL", raw)
		}
		if strings.Contains(strings.ToLower(name), "write") {
			return "", fmt.Errorf("referrers not allowed in write ACL: %q", raw)
		}
		negate := false
		if strings.HasPrefix(second, "-") {
			negate = true
			second = strings.TrimSpace(second[1:])
		}
		if second != "" && second != "*" && strings.HasPrefix(second, "*") {
			second = strings.TrimSpace(second[1:])
		}
		if second == "" || second == "." {
			return "", fmt.Errorf("no host or domain in referrer ACL: %q", raw)
		}
		second = strings.ToLower(second)
		if negate {
			second = "-" + second
		}
		values = append(values, aclReferrerPrefix+second)
	}
	return strings.Join(values, ","), nil
}

// ReferrerAllowed evaluates referrer patterns in order against the Referer
// header. Later entries win, so a trailing negation revokes an earlier
// grant.
func ReferrerAllowed(referrer string, referrerACL []string) bool {
	if len(referrerACL) == 0 {
		return false
	}
	host := referrerHost(referrer)
	allow := false
	for _, pattern := range referrerACL {
		if strings.HasPrefix(pattern, "-") {
			if matchHost(host, pattern[1:]) {
				allow = false
			}
		} else if matchHost(host, pattern) {
			allow = true
		}
	}
	return allow
}

func matchHost(host, pattern string) bool {
	if pattern == "*" || pattern == host {
		return true
	}
	return strings.HasPrefix(pattern, ".") && strings.HasSuffix(host, pattern)
}

func referrerHost(referrer string) string {
	if referrer == "" {
		return "unknown"
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return "unknown"
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "unknown"
	}
	return host
}
