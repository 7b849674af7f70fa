package freshbooks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/customer"
	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

type clientEnvelope struct {
	Response struct {
		Result struct {
			Client  clientBody   `json:"client"`
			Clients []clientBody `json:"clients"`
		} `json:"result"`
	} `json:"response"`
}

type clientBody struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	FirstName    string `json:"fname"`
	LastName     string `json:"lname"`
	Organization string `json:"organization"`
}

func (b clientBody) record() customer.Record {
	return customer.Record{
		ID:           strconv.FormatInt(b.ID, 10),
		Email:        b.Email,
		FirstName:    b.FirstName,
		LastName:     b.LastName,
		Organization: b.Organization,
	}
}

// FindByEmail looks up customers by exact email address.
func (c *Client) FindByEmail(ctx context.Context, email string) ([]customer.Record, error) {
	query := url.Values{"search[email]": {email}}
	path := fmt.Sprintf("/accounting/account/%s/users/clients", c.accountID)
	var envelope clientEnvelope
	if err := c.do(ctx, http.MethodGet, path, query, nil, &envelope, true); err != nil {
		return nil, err
	}
	records := make([]customer.Record, 0, len(envelope.Response.Result.Clients))
	for _, b := range envelope.Response.Result.Clients {
		records = append(records, b.record())
	}
	return records, nil
}

// FindByOrganization lists customers whose organization contains the
// fragment. The API has no organization search, so filtering happens
// client side against the full directory page.
func (c *Client) FindByOrganization(ctx context.Context, fragment string) ([]customer.Record, error) {
	query := url.Values{"per_page": {"100"}}
	path := fmt.Sprintf("/accounting/account/%s/users/clients", c.accountID)
	var envelope clientEnvelope
	if err := c.do(ctx, http.MethodGet, path, query, nil, &envelope, true); err != nil {
		return nil, err
	}
	frag := strings.ToLower(fragment)
	var records []customer.Record
	for _, b := range envelope.Response.Result.Clients {
		if strings.Contains(strings.ToLower(b.Organization), frag) {
			records = append(records, b.record())
		}
	}
	return records, nil
}

// Create registers a new customer in the external directory.
func (c *Client) Create(ctx context.Context, in customer.CreateInput) (customer.Record, error) {
	payload := map[string]map[string]string{"client": {
		"email":        in.Email,
		"fname":        in.FirstName,
		"lname":        in.LastName,
		"organization": in.Organization,
	}}
	path := fmt.Sprintf("/accounting/account/%s/users/clients", c.accountID)
	var envelope clientEnvelope
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &envelope, false); err != nil {
		return customer.Record{}, err
	}
	if envelope.Response.Result.Client.ID == 0 {
		return customer.Record{}, fmt.Errorf("%w: create returned no client id", shared.ErrExternalRejection)
	}
	return envelope.Response.Result.Client.record(), nil
}

// Update changes fields on an existing customer record.
func (c *Client) Update(ctx context.Context, id string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	payload := map[string]map[string]string{"client": fields}
	path := fmt.Sprintf("/accounting/account/%s/users/clients/%s", c.accountID, id)
	return c.do(ctx, http.MethodPut, path, nil, payload, nil, false)
}
