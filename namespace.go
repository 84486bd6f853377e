package auth

import (
	"net/url"
	"strings"
)

// DefaultCookiePrefix is shared by every session cookie
const DefaultCookiePrefix = "pvt"

// RoleCookie maps an account type to its session cookie and landing page.
type RoleCookie struct {
	AccountType AccountType
	Suffix      string
	// Landing is a path template, "{username}" is replaced on use.
	Landing string
}

var defaultRoleCookies = []RoleCookie{
	{AccountType: AccountFreelancer, Suffix: "fr-ssid", Landing: "/{username}/dashboard"},
	{AccountType: AccountClient, Suffix: "cl-ssid", Landing: "/{username}/account"},
	{AccountType: AccountAdmin, Suffix: "adm-ssid", Landing: "/admin"},
}

const (
	pendingCookieSuffix = "profile"
	setupPathTemplate   = "/{username}/account-setup"
)

// CookieNamespace is the closed set of session cookie names. The same
// table is used to set a session cookie and to clear stale ones, so a
// role added here is always cleared on the next sign in.
type CookieNamespace struct {
	prefix  string
	roles   map[AccountType]RoleCookie
	order   []AccountType
	pending string
}

// NewCookieNamespace builds the namespace for the given prefix.
func NewCookieNamespace(prefix string) *CookieNamespace {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultCookiePrefix
	}

	ns := &CookieNamespace{
		prefix:  prefix,
		roles:   make(map[AccountType]RoleCookie, len(defaultRoleCookies)),
		pending: prefix + "-" + pendingCookieSuffix,
	}

	for _, rc := range defaultRoleCookies {
		ns.roles[rc.AccountType] = rc
		ns.order = append(ns.order, rc.AccountType)
	}

	return ns
}

// Prefix returns the namespace prefix
func (n *CookieNamespace) Prefix() string {
	return n.prefix
}

// CookieFor returns the session cookie name for the account type.
func (n *CookieNamespace) CookieFor(at AccountType) (string, bool) {
	rc, ok := n.roles[at]
	if !ok {
		return "", false
	}
	return n.prefix + "-" + rc.Suffix, true
}

// PendingCookie is the cookie set while a user still has to pick a role.
func (n *CookieNamespace) PendingCookie() string {
	return n.pending
}

// Names lists every cookie in the namespace, role cookies first in
// declaration order and the pending cookie last.
func (n *CookieNamespace) Names() []string {
	names := make([]string, 0, len(n.order)+1)
	for _, at := range n.order {
		name, _ := n.CookieFor(at)
		names = append(names, name)
	}
	return append(names, n.pending)
}

// RoleCookieNames lists the role cookies only
func (n *CookieNamespace) RoleCookieNames() []string {
	names := n.Names()
	return names[:len(names)-1]
}

// Contains reports whether name belongs to the namespace
func (n *CookieNamespace) Contains(name string) bool {
	for _, candidate := range n.Names() {
		if candidate == name {
			return true
		}
	}
	return false
}

// LandingPath returns where a freshly signed in user of the given type goes.
func (n *CookieNamespace) LandingPath(at AccountType, username string) string {
	rc, ok := n.roles[at]
	if !ok {
		return "/"
	}
	return expandPath(rc.Landing, username)
}

// SetupPath is the account setup page for a pending user
func (n *CookieNamespace) SetupPath(username string) string {
	return expandPath(setupPathTemplate, username)
}

func expandPath(template, username string) string {
	return strings.ReplaceAll(template, "{username}", url.PathEscape(username))
}
