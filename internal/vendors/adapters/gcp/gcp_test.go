package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	cloudbilling "google.golang.org/api/cloudbilling/v1"
	"google.golang.org/api/option"

	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

func newTestAdapter(server *httptest.Server) *Adapter {
	adapter := NewAdapter(zap.NewNop())
	adapter.newService = func(ctx context.Context, opts ...option.ClientOption) (*cloudbilling.APIService, error) {
		opts = append(opts, option.WithEndpoint(server.URL), option.WithHTTPClient(server.Client()))
		return cloudbilling.NewService(ctx, opts...)
	}
	return adapter
}

func testWindow() vendordomain.Window {
	return vendordomain.Window{
		Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchUsageEmitsProjectRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/billingAccounts":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"billingAccounts": []map[string]interface{}{
					{"name": "billingAccounts/01AB-CD", "displayName": "Main account"},
				},
			})
		case "/v1/billingAccounts/01AB-CD/projects":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"projectBillingInfo": []map[string]interface{}{
					{"projectId": "proj-alpha", "billingEnabled": true},
					{"projectId": "proj-beta", "billingEnabled": false},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	adapter := newTestAdapter(server)
	window := testWindow()
	groups, err := adapter.FetchUsage(context.Background(), vendordomain.AccountRef{}, vendordomain.Credentials{AccessToken: "tok"}, window)
	if err != nil {
		t.Fatalf("FetchUsage returned error: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 project rows, got %d", len(groups))
	}

	first := groups[0]
	if first.ServiceName != "Cloud Billing" || first.CostType != "BillingInfo" {
		t.Errorf("unexpected identity fields: %+v", first)
	}
	if first.ResourceID != "proj-alpha" {
		t.Errorf("unexpected resource id %q", first.ResourceID)
	}
	if first.Cost != 0 || first.UsageAmount != 1 || first.UsageUnit != "project" {
		t.Errorf("unexpected amounts: %+v", first)
	}
	if first.Empty() {
		t.Error("project row must carry usage so it survives ingestion")
	}
	if !first.UsageStart.Equal(window.Start) || !first.UsageEnd.Equal(window.End) {
		t.Errorf("unexpected window %v..%v", first.UsageStart, first.UsageEnd)
	}
	if first.Metadata["billing_account"] != "billingAccounts/01AB-CD" {
		t.Errorf("unexpected metadata: %+v", first.Metadata)
	}
}

func TestFetchUsageStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"forbidden", http.StatusForbidden, vendordomain.ErrAuthDenied},
		{"throttled", http.StatusTooManyRequests, vendordomain.ErrRateLimited},
		{"server error", http.StatusServiceUnavailable, vendordomain.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]interface{}{"code": tt.status, "message": tt.name},
				})
			}))
			defer server.Close()

			adapter := newTestAdapter(server)
			_, err := adapter.FetchUsage(context.Background(), vendordomain.AccountRef{}, vendordomain.Credentials{AccessToken: "tok"}, testWindow())
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFetchUsageRequiresToken(t *testing.T) {
	adapter := NewAdapter(zap.NewNop())
	_, err := adapter.FetchUsage(context.Background(), vendordomain.AccountRef{}, vendordomain.Credentials{}, testWindow())
	if !errors.Is(err, vendordomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}
