// Package gcp pulls billing account and project billing metadata from the
// Google Cloud Billing API using the customer's OAuth access token.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	cloudbilling "google.golang.org/api/cloudbilling/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

const (
	serviceName = "Cloud Billing"
	costType    = "BillingInfo"
)

// Adapter enumerates the billing accounts visible to the token and the
// projects attached to each one. The Billing API exposes account linkage,
// not per-line spend, so every row is a zero-cost metadata line counted as
// one project of usage.
type Adapter struct {
	log *zap.Logger

	// newService is swapped in tests to point the client at a fake server.
	newService func(ctx context.Context, opts ...option.ClientOption) (*cloudbilling.APIService, error)
}

func NewAdapter(log *zap.Logger) *Adapter {
	return &Adapter{
		log:        log.Named("vendor.gcp"),
		newService: cloudbilling.NewService,
	}
}

func (a *Adapter) Provider() string {
	return vendordomain.ProviderGCP
}

func (a *Adapter) FetchUsage(ctx context.Context, ref vendordomain.AccountRef, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", vendordomain.ErrInvalidConfig)
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken})
	svc, err := a.newService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("%w: build billing client: %v", vendordomain.ErrUnavailable, err)
	}

	var groups []vendordomain.UsageGroup
	err = svc.BillingAccounts.List().Pages(ctx, func(page *cloudbilling.ListBillingAccountsResponse) error {
		for _, account := range page.BillingAccounts {
			projects, err := a.listProjects(ctx, svc, account.Name)
			if err != nil {
				return err
			}
			for _, info := range projects {
				groups = append(groups, vendordomain.UsageGroup{
					ServiceName: serviceName,
					CostType:    costType,
					ResourceID:  info.ProjectId,
					Currency:    "USD",
					UsageAmount: 1,
					UsageUnit:   "project",
					UsageStart:  window.Start,
					UsageEnd:    window.End,
					Metadata: map[string]interface{}{
						"billing_account":      account.Name,
						"billing_account_name": account.DisplayName,
						"billing_enabled":      info.BillingEnabled,
					},
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, classifyError(err)
	}

	a.log.Debug("fetched billing metadata",
		zap.String("account_id", ref.AccountID.String()),
		zap.Int("projects", len(groups)),
	)
	return groups, nil
}

func (a *Adapter) listProjects(ctx context.Context, svc *cloudbilling.APIService, billingAccount string) ([]*cloudbilling.ProjectBillingInfo, error) {
	var infos []*cloudbilling.ProjectBillingInfo
	err := svc.BillingAccounts.Projects.List(billingAccount).Pages(ctx, func(page *cloudbilling.ListProjectBillingInfoResponse) error {
		infos = append(infos, page.ProjectBillingInfo...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: http %d", vendordomain.ErrAuthDenied, apiErr.Code)
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: http %d", vendordomain.ErrRateLimited, apiErr.Code)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: http %d", vendordomain.ErrUnavailable, apiErr.Code)
		}
		return fmt.Errorf("%w: http %d", vendordomain.ErrMalformed, apiErr.Code)
	}
	return fmt.Errorf("%w: %v", vendordomain.ErrUnavailable, err)
}
