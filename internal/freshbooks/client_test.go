package freshbooks

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerpilot/ledgerpilot/internal/billing/invoicing"
	"github.com/ledgerpilot/ledgerpilot/internal/shared"
)

type memStore struct {
	mu    sync.Mutex
	token Token
}

func (s *memStore) Load(ctx context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *memStore) Save(ctx context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func validStore(access string) *memStore {
	return &memStore{token: Token{
		AccessToken:  access,
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}}
}

func newTestClient(t *testing.T, server *httptest.Server, store TokenStore) *Client {
	t.Helper()
	tokens := NewTokenManager(store, server.Client(), server.URL+"/auth/oauth/token", "cid", "secret", slog.Default())
	return New(Config{
		BaseURL:    server.URL,
		AccountID:  "AB12cd",
		HTTPClient: server.Client(),
		Tokens:     tokens,
		Logger:     slog.Default(),
	})
}

func TestGetInvoiceRetriesTransientFailures(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"result":{"invoice":{"id":77,"v3_status":"draft","amount":{"amount":"100.00","code":"USD"},"customerid":101}}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, validStore("tok"))

	snapshot, err := client.GetInvoice(context.Background(), "77")
	require.NoError(t, err)
	require.Equal(t, "77", snapshot.ID)
	require.Equal(t, "draft", snapshot.Status)
	require.Equal(t, 100.0, snapshot.Amount)
	require.Equal(t, 3, hits)
}

func TestCreateInvoiceDraftIsNeverRetried(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server, validStore("tok"))

	_, err := client.CreateInvoiceDraft(context.Background(), invoicing.CreateDraftInput{
		CustomerID:   "101",
		CurrencyCode: "USD",
		Lines:        []invoicing.LineItem{{Name: "work", Quantity: 1, UnitAmount: 100, CurrencyCode: "USD"}},
	})
	require.ErrorIs(t, err, shared.ErrExternalUnavailable)
	require.Equal(t, 1, hits)
}

func TestStaleTokenIsRefreshedAndReplayedOnce(t *testing.T) {
	var apiHits, tokenHits int
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenHits++
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		require.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","refresh_token":"refresh-2","expires_in":43200}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		apiHits++
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"result":{"invoice":{"id":5,"v3_status":"draft","amount":{"amount":"1.00","code":"USD"},"customerid":1}}}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := validStore("stale")
	client := newTestClient(t, server, store)

	snapshot, err := client.GetInvoice(context.Background(), "5")
	require.NoError(t, err)
	require.Equal(t, "5", snapshot.ID)
	require.Equal(t, 2, apiHits)
	require.Equal(t, 1, tokenHits)

	// Both halves of the new pair were persisted.
	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh", saved.AccessToken)
	require.Equal(t, "refresh-2", saved.RefreshToken)
}

func TestSendInvoiceRefusesWithoutApprovalFlag(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	client := newTestClient(t, server, validStore("tok"))

	err := client.SendInvoice(context.Background(), "77", false)
	require.ErrorIs(t, err, shared.ErrApprovalRequired)
	require.Zero(t, hits)
}

func TestErrorStatusMapping(t *testing.T) {
	status := http.StatusNotFound
	body := ""
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if body != "" {
			_, _ = w.Write([]byte(body))
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, validStore("tok"))
	ctx := context.Background()

	_, err := client.GetInvoice(ctx, "404")
	require.ErrorIs(t, err, shared.ErrNotFound)

	status = http.StatusUnprocessableEntity
	body = `{"response":{"errors":[{"message":"invoice amount must be positive"}]}}`
	err = client.DeleteInvoice(ctx, "77")
	require.ErrorIs(t, err, shared.ErrExternalRejection)
	require.Contains(t, err.Error(), "invoice amount must be positive")
}

func TestFindByOrganizationFiltersClientSide(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"result":{"clients":[
			{"id":1,"email":"a@x.example","organization":"Progress Software"},
			{"id":2,"email":"b@y.example","organization":"Outpost24"}
		]}}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, validStore("tok"))

	records, err := client.FindByOrganization(context.Background(), "progress")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "1", records[0].ID)
}
