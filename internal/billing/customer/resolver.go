// Package customer resolves client identifiers against the external
// customer directory. The directory is ground truth; results are never
// cached across calls.
package customer

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

// Record is an externally owned customer entry referenced by id.
type Record struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Organization string `json:"organization"`
}

// CreateInput carries the mandatory fields for customer creation.
type CreateInput struct {
	Email        string `json:"email" validate:"required,email"`
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	Organization string `json:"organization" validate:"required"`
}

// Directory is the external customer store capability.
type Directory interface {
	FindByEmail(ctx context.Context, email string) ([]Record, error)
	FindByOrganization(ctx context.Context, fragment string) ([]Record, error)
	Create(ctx context.Context, in CreateInput) (Record, error)
	Update(ctx context.Context, id string, fields map[string]string) error
}

// matchThreshold is the minimum fuzzy score counted as a candidate.
const matchThreshold = 0.5

// Resolver finds-or-creates customer records.
type Resolver struct {
	dir Directory
}

// NewResolver constructs a Resolver.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve looks up a customer by exact email, or by fuzzy organization
// match when the identifier is not a valid email address. It fails with
// AmbiguousMatch when more than one candidate scores above the threshold.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (Record, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Record{}, fmt.Errorf("customer identifier: %w", shared.ErrMissingRequiredField)
	}

	if isEmail(identifier) {
		records, err := r.dir.FindByEmail(ctx, identifier)
		if err != nil {
			return Record{}, err
		}
		switch len(records) {
		case 0:
			return Record{}, fmt.Errorf("customer with email %s: %w", identifier, shared.ErrNotFound)
		case 1:
			return records[0], nil
		default:
			return Record{}, fmt.Errorf("%w: %d customers share email %s", shared.ErrAmbiguousMatch, len(records), identifier)
		}
	}

	records, err := r.dir.FindByOrganization(ctx, identifier)
	if err != nil {
		return Record{}, err
	}
	var candidates []Record
	for _, rec := range records {
		if matchScore(rec.Organization, identifier) >= matchThreshold {
			candidates = append(candidates, rec)
		}
	}
	switch len(candidates) {
	case 0:
		return Record{}, fmt.Errorf("customer matching %q: %w", identifier, shared.ErrNotFound)
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, 0, len(candidates))
		for _, c := range candidates {
			names = append(names, c.Organization)
		}
		return Record{}, fmt.Errorf("%w: %q matches %s", shared.ErrAmbiguousMatch, identifier, strings.Join(names, ", "))
	}
}

// Create registers a new customer. All four fields are mandatory.
func (r *Resolver) Create(ctx context.Context, in CreateInput) (Record, error) {
	var missing []string
	if in.Email == "" {
		missing = append(missing, "email")
	}
	if in.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if in.LastName == "" {
		missing = append(missing, "last_name")
	}
	if in.Organization == "" {
		missing = append(missing, "organization")
	}
	if len(missing) > 0 {
		return Record{}, fmt.Errorf("%w: %s required", shared.ErrIncompleteCustomerInfo, strings.Join(missing, ", "))
	}
	return r.dir.Create(ctx, in)
}

func isEmail(s string) bool {
	if !strings.Contains(s, "@") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// matchScore ranks an organization name against a fragment.
func matchScore(org, fragment string) float64 {
	o := strings.ToLower(strings.TrimSpace(org))
	f := strings.ToLower(strings.TrimSpace(fragment))
	if o == "" || f == "" {
		return 0
	}
	switch {
	case o == f:
		return 1.0
	case strings.HasPrefix(o, f):
		return 0.8
	case strings.Contains(o, f):
		return 0.6
	default:
		return 0
	}
}
