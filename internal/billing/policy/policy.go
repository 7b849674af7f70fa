// Package policy applies client-specific invoicing rules before a draft is
// created: line-item splitting, purchase order requirements, and payment
// term overrides.
package policy

import "strings"

// DefaultPaymentTermDays applies when no client policy matches.
const DefaultPaymentTermDays = 30

// ClientPolicy is one rule set matched against a client identifier.
// Policies are data records checked in registration order; the first match
// wins.
type ClientPolicy struct {
	Name string

	// MatchDomains match the domain part of an email identifier.
	MatchDomains []string
	// MatchSubstrings match case-insensitively anywhere in the identifier.
	MatchSubstrings []string

	SplitByProduct bool
	ProductCatalog []string

	RequiresPurchaseOrder bool
	// DefaultPurchaseOrders maps fiscal year to the standing PO number.
	DefaultPurchaseOrders map[int]string

	PaymentTermDays int
}

// Matches reports whether the identifier falls under this policy.
func (p ClientPolicy) Matches(identifier string) bool {
	ident := strings.ToLower(strings.TrimSpace(identifier))
	if at := strings.LastIndex(ident, "@"); at >= 0 {
		domain := ident[at+1:]
		for _, d := range p.MatchDomains {
			if domain == strings.ToLower(d) {
				return true
			}
		}
	}
	for _, s := range p.MatchSubstrings {
		if s != "" && strings.Contains(ident, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// CatalogTag resolves a product tag to its canonical catalog spelling.
func (p ClientPolicy) CatalogTag(tag string) (string, bool) {
	for _, c := range p.ProductCatalog {
		if strings.EqualFold(c, tag) {
			return c, true
		}
	}
	return "", false
}

// Registry holds client policies in priority order.
type Registry struct {
	policies []ClientPolicy
}

// NewRegistry builds a registry from policies in priority order.
func NewRegistry(policies ...ClientPolicy) *Registry {
	return &Registry{policies: policies}
}

// Match returns the first matching policy, or the default terms when no
// policy matches.
func (r *Registry) Match(identifier string) ClientPolicy {
	for _, p := range r.policies {
		if p.Matches(identifier) {
			return p
		}
	}
	return ClientPolicy{Name: "default", PaymentTermDays: DefaultPaymentTermDays}
}

// DefaultRegistry returns the standing client policy table.
func DefaultRegistry() *Registry {
	return NewRegistry(
		ClientPolicy{
			Name:            "progress",
			MatchDomains:    []string{"progress.com"},
			MatchSubstrings: []string{"progress software"},
			SplitByProduct:  true,
			ProductCatalog:  []string{"SiteFinity", "MoveIT"},
			PaymentTermDays: DefaultPaymentTermDays,
		},
		ClientPolicy{
			Name:                  "outpost24",
			MatchDomains:          []string{"outpost24.com"},
			MatchSubstrings:       []string{"outpost24"},
			RequiresPurchaseOrder: true,
			DefaultPurchaseOrders: map[int]string{
				2026: "AR-FY26-ATA-Referral-NA",
			},
			PaymentTermDays: 60,
		},
	)
}
