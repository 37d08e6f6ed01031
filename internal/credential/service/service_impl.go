package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	"github.com/cloudtally/cloudtally/internal/clock"
	"github.com/cloudtally/cloudtally/internal/config"
	credentialdomain "github.com/cloudtally/cloudtally/internal/credential/domain"
	"github.com/cloudtally/cloudtally/internal/observability/metrics"
	obstracing "github.com/cloudtally/cloudtally/internal/observability/tracing"
	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

// tokenExpirySkew refreshes tokens slightly before they actually expire so
// in-flight vendor calls do not race the expiry.
const tokenExpirySkew = 2 * time.Minute

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Config     config.Config
	Repo       credentialdomain.Repository
	Prober     credentialdomain.RoleProber `optional:"true"`
	ObsMetrics *metrics.Metrics            `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node

	vendors    config.VendorConfig
	repo       credentialdomain.Repository
	prober     credentialdomain.RoleProber
	obsMetrics *metrics.Metrics

	httpClient *http.Client
	refresh    singleflight.Group
}

func NewService(p ServiceParam) credentialdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("credential.service"),
		clock: p.Clock,
		genID: p.GenID,

		vendors:    p.Config.Vendors,
		repo:       p.Repo,
		prober:     p.Prober,
		obsMetrics: p.ObsMetrics,

		httpClient: obstracing.WrapHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
}

func (s *Service) RegisterOAuth(ctx context.Context, req credentialdomain.RegisterOAuthRequest) (*credentialdomain.OAuthToken, error) {
	if strings.TrimSpace(req.RefreshToken) == "" {
		return nil, credentialdomain.ErrCredentialNotFound
	}

	now := s.clock.Now()
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		// Without an expiry the first EnsureValid refreshes immediately.
		expiresAt = now
	}

	token := credentialdomain.OAuthToken{
		ID:           s.genID.Generate(),
		AccountID:    req.AccountID,
		AccessToken:  strings.TrimSpace(req.AccessToken),
		RefreshToken: strings.TrimSpace(req.RefreshToken),
		TokenType:    defaultString(req.TokenType, "Bearer"),
		Scope:        strings.TrimSpace(req.Scope),
		TenantID:     strings.TrimSpace(req.TenantID),
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.UpsertToken(ctx, token); err != nil {
		return nil, err
	}

	s.log.Info("credential.oauth_registered", zap.String("account_id", req.AccountID.String()))
	return &token, nil
}

func (s *Service) RegisterAWSRole(ctx context.Context, req credentialdomain.RegisterAWSRoleRequest) (*credentialdomain.AWSRole, error) {
	roleARN := strings.TrimSpace(req.RoleARN)
	if !strings.HasPrefix(roleARN, "arn:aws:iam::") {
		return nil, credentialdomain.ErrInvalidRole
	}

	if s.prober != nil {
		if err := s.prober.Probe(ctx, roleARN, strings.TrimSpace(req.ExternalID)); err != nil {
			s.log.Warn("credential.role_probe_failed",
				zap.String("account_id", req.AccountID.String()),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %v", credentialdomain.ErrCredentialDenied, err)
		}
	}

	now := s.clock.Now()
	role := credentialdomain.AWSRole{
		ID:         s.genID.Generate(),
		AccountID:  req.AccountID,
		RoleARN:    roleARN,
		ExternalID: strings.TrimSpace(req.ExternalID),
		ReportName: sanitizeReportName(req.ReportName),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.UpsertRole(ctx, role); err != nil {
		return nil, err
	}

	s.log.Info("credential.aws_role_registered", zap.String("account_id", req.AccountID.String()))
	return &role, nil
}

func (s *Service) EnsureValid(ctx context.Context, account accountdomain.CloudAccount) (vendordomain.Credentials, error) {
	return s.credentials(ctx, account, false)
}

func (s *Service) ForceRefresh(ctx context.Context, account accountdomain.CloudAccount) (vendordomain.Credentials, error) {
	return s.credentials(ctx, account, true)
}

func (s *Service) credentials(ctx context.Context, account accountdomain.CloudAccount, force bool) (vendordomain.Credentials, error) {
	switch account.Provider {
	case vendordomain.ProviderAWS:
		role, err := s.repo.GetRoleByAccount(ctx, account.ID)
		if err != nil {
			return vendordomain.Credentials{}, err
		}
		return vendordomain.Credentials{
			RoleARN:    role.RoleARN,
			ExternalID: role.ExternalID,
		}, nil

	case vendordomain.ProviderGCP, vendordomain.ProviderAzure:
		token, err := s.repo.GetTokenByAccount(ctx, account.ID)
		if err != nil {
			return vendordomain.Credentials{}, err
		}
		if !force && !token.Expired(s.clock.Now(), tokenExpirySkew) {
			return vendordomain.Credentials{AccessToken: token.AccessToken}, nil
		}
		refreshed, err := s.refreshToken(ctx, account, token)
		if err != nil {
			return vendordomain.Credentials{}, err
		}
		return vendordomain.Credentials{AccessToken: refreshed.AccessToken}, nil

	default:
		return vendordomain.Credentials{}, accountdomain.ErrUnsupportedProvider
	}
}

// refreshToken performs the vendor refresh grant. Concurrent callers for the
// same account share a single round trip.
func (s *Service) refreshToken(ctx context.Context, account accountdomain.CloudAccount, token *credentialdomain.OAuthToken) (*credentialdomain.OAuthToken, error) {
	result, err, _ := s.refresh.Do(account.ID.String(), func() (interface{}, error) {
		refreshed, err := s.exchangeRefreshToken(ctx, account, token)
		outcome := "ok"
		if err != nil {
			outcome = metrics.ClassifyIngestReason(err)
		}
		s.obsMetrics.RecordCredentialRefresh(ctx, account.Provider, outcome)
		if err != nil {
			return nil, err
		}
		if err := s.repo.UpsertToken(ctx, *refreshed); err != nil {
			return nil, err
		}
		s.log.Info("credential.token_refreshed",
			zap.String("account_id", account.ID.String()),
			zap.String("provider", account.Provider),
			zap.Time("expires_at", refreshed.ExpiresAt),
		)
		return refreshed, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*credentialdomain.OAuthToken), nil
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
}

func (s *Service) exchangeRefreshToken(ctx context.Context, account accountdomain.CloudAccount, token *credentialdomain.OAuthToken) (*credentialdomain.OAuthToken, error) {
	tokenURL, form, err := s.refreshForm(account.Provider, token)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vendordomain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vendordomain.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, credentialdomain.ErrCredentialDenied
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, vendordomain.ErrRateLimited
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("%w: token endpoint returned %d", vendordomain.ErrUnavailable, resp.StatusCode)
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.AccessToken == "" {
		return nil, vendordomain.ErrMalformed
	}

	now := s.clock.Now()
	refreshed := *token
	refreshed.AccessToken = parsed.AccessToken
	refreshed.TokenType = defaultString(parsed.TokenType, token.TokenType)
	refreshed.Scope = defaultString(parsed.Scope, token.Scope)
	refreshed.ExpiresAt = now.Add(time.Duration(parsed.ExpiresIn) * time.Second)
	refreshed.UpdatedAt = now
	if strings.TrimSpace(parsed.RefreshToken) != "" {
		// Some tenants rotate the refresh token on every grant.
		refreshed.RefreshToken = parsed.RefreshToken
	}
	return &refreshed, nil
}

func (s *Service) refreshForm(provider string, token *credentialdomain.OAuthToken) (string, url.Values, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", token.RefreshToken)

	switch provider {
	case vendordomain.ProviderGCP:
		if s.vendors.GoogleClientID == "" || s.vendors.GoogleClientSecret == "" {
			return "", nil, vendordomain.ErrInvalidConfig
		}
		form.Set("client_id", s.vendors.GoogleClientID)
		form.Set("client_secret", s.vendors.GoogleClientSecret)
		return s.vendors.GoogleTokenURL, form, nil

	case vendordomain.ProviderAzure:
		if s.vendors.AzureClientID == "" || s.vendors.AzureClientSecret == "" {
			return "", nil, vendordomain.ErrInvalidConfig
		}
		tenant := defaultString(token.TenantID, "common")
		form.Set("client_id", s.vendors.AzureClientID)
		form.Set("client_secret", s.vendors.AzureClientSecret)
		if token.Scope != "" {
			form.Set("scope", token.Scope)
		}
		return strings.ReplaceAll(s.vendors.AzureTokenURL, "{tenant}", tenant), form, nil

	default:
		return "", nil, accountdomain.ErrUnsupportedProvider
	}
}

// sanitizeReportName normalizes a Cost and Usage Report name into a safe slug.
func sanitizeReportName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return slug.Make(name)
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
