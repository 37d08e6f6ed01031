// Package azure pulls consumption usage details from the Azure management
// API using the customer's OAuth access token.
package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/cloudtally/cloudtally/internal/config"
	obstracing "github.com/cloudtally/cloudtally/internal/observability/tracing"
	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

const (
	subscriptionsAPIVersion = "2020-01-01"
	usageAPIVersion         = "2023-03-01"
	costType                = "ActualCost"
	maxBodyBytes            = 8 << 20
)

// Adapter lists the subscriptions visible to the token and fetches the
// Microsoft.Consumption usage detail lines for each one.
type Adapter struct {
	apiBase string
	client  *http.Client
	log     *zap.Logger
}

func NewAdapter(cfg config.Config, log *zap.Logger) *Adapter {
	return &Adapter{
		apiBase: cfg.Vendors.AzureAPIBase,
		client:  obstracing.WrapHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		log:     log.Named("vendor.azure"),
	}
}

func (a *Adapter) Provider() string {
	return vendordomain.ProviderAzure
}

func (a *Adapter) FetchUsage(ctx context.Context, ref vendordomain.AccountRef, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", vendordomain.ErrInvalidConfig)
	}

	subscriptions, err := a.listSubscriptions(ctx, creds.AccessToken)
	if err != nil {
		return nil, err
	}

	var groups []vendordomain.UsageGroup
	for _, sub := range subscriptions {
		lines, err := a.fetchSubscriptionUsage(ctx, creds.AccessToken, sub.SubscriptionID, window)
		if err != nil {
			return nil, err
		}
		groups = append(groups, lines...)
	}

	a.log.Debug("fetched usage details",
		zap.String("account_id", ref.AccountID.String()),
		zap.Int("subscriptions", len(subscriptions)),
		zap.Int("lines", len(groups)),
	)
	return groups, nil
}

type subscription struct {
	SubscriptionID string `json:"subscriptionId"`
	DisplayName    string `json:"displayName"`
}

type subscriptionsResponse struct {
	Value    []subscription `json:"value"`
	NextLink string         `json:"nextLink"`
}

func (a *Adapter) listSubscriptions(ctx context.Context, accessToken string) ([]subscription, error) {
	next := fmt.Sprintf("%s/subscriptions?api-version=%s", a.apiBase, subscriptionsAPIVersion)

	var subs []subscription
	for next != "" {
		var page subscriptionsResponse
		if err := a.getJSON(ctx, next, accessToken, &page); err != nil {
			return nil, err
		}
		subs = append(subs, page.Value...)
		next = page.NextLink
	}
	return subs, nil
}

type usageDetail struct {
	ID         string `json:"id"`
	Properties struct {
		UsageStart       string  `json:"usageStart"`
		UsageEnd         string  `json:"usageEnd"`
		MeterName        string  `json:"meterName"`
		InstanceName     string  `json:"instanceName"`
		ResourceLocation string  `json:"resourceLocation"`
		Cost             float64 `json:"cost"`
		Currency         string  `json:"currency"`
		Quantity         float64 `json:"quantity"`
		UnitOfMeasure    string  `json:"unitOfMeasure"`
	} `json:"properties"`
}

type usageDetailsResponse struct {
	Value    []usageDetail `json:"value"`
	NextLink string        `json:"nextLink"`
}

func (a *Adapter) fetchSubscriptionUsage(ctx context.Context, accessToken, subscriptionID string, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
	filter := fmt.Sprintf("properties/usageStart ge '%s' and properties/usageEnd le '%s'",
		window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))
	next := fmt.Sprintf("%s/subscriptions/%s/providers/Microsoft.Consumption/usageDetails?api-version=%s&$filter=%s",
		a.apiBase, subscriptionID, usageAPIVersion, url.QueryEscape(filter))

	var groups []vendordomain.UsageGroup
	for next != "" {
		var page usageDetailsResponse
		if err := a.getJSON(ctx, next, accessToken, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			group, err := normalizeDetail(item, subscriptionID)
			if err != nil {
				return nil, err
			}
			groups = append(groups, group)
		}
		next = page.NextLink
	}
	return groups, nil
}

func normalizeDetail(item usageDetail, subscriptionID string) (vendordomain.UsageGroup, error) {
	start, err := parseUsageTime(item.Properties.UsageStart)
	if err != nil {
		return vendordomain.UsageGroup{}, fmt.Errorf("%w: usageStart %q", vendordomain.ErrMalformed, item.Properties.UsageStart)
	}
	end, err := parseUsageTime(item.Properties.UsageEnd)
	if err != nil {
		return vendordomain.UsageGroup{}, fmt.Errorf("%w: usageEnd %q", vendordomain.ErrMalformed, item.Properties.UsageEnd)
	}

	currency := item.Properties.Currency
	if currency == "" {
		currency = "USD"
	}

	return vendordomain.UsageGroup{
		ServiceName: item.Properties.MeterName,
		CostType:    costType,
		Region:      item.Properties.ResourceLocation,
		ResourceID:  item.Properties.InstanceName,
		Cost:        item.Properties.Cost,
		Currency:    currency,
		UsageAmount: item.Properties.Quantity,
		UsageUnit:   item.Properties.UnitOfMeasure,
		UsageStart:  start,
		UsageEnd:    end,
		Metadata: map[string]interface{}{
			"subscription_id": subscriptionID,
			"detail_id":       item.ID,
		},
	}, nil
}

// parseUsageTime accepts both the date-only and RFC 3339 forms the API
// emits depending on the offer type.
func parseUsageTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (a *Adapter) getJSON(ctx context.Context, rawURL, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", vendordomain.ErrInvalidConfig, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", vendordomain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", vendordomain.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: http %d", vendordomain.ErrAuthDenied, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http %d", vendordomain.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: http %d", vendordomain.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: http %d", vendordomain.ErrMalformed, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", vendordomain.ErrMalformed, err)
	}
	return nil
}
