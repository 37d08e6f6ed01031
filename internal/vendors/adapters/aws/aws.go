// Package aws fetches daily cost and usage lines from AWS Cost Explorer
// using a cross-account assumed role.
package aws

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/cloudtally/cloudtally/internal/config"
	vendordomain "github.com/cloudtally/cloudtally/internal/vendors/domain"
)

const (
	dateLayout    = "2006-01-02"
	metricCost    = "UnblendedCost"
	metricUsage   = "UsageQuantity"
	probeDuration = 900
)

// Adapter calls Cost Explorer on behalf of a customer account by assuming
// the role the customer registered for us.
type Adapter struct {
	region      string
	sessionName string
	log         *zap.Logger
}

func NewAdapter(cfg config.Config, log *zap.Logger) *Adapter {
	return &Adapter{
		region:      cfg.Vendors.AWSRegion,
		sessionName: cfg.Vendors.AWSSessionName,
		log:         log.Named("vendor.aws"),
	}
}

func (a *Adapter) Provider() string {
	return vendordomain.ProviderAWS
}

func (a *Adapter) FetchUsage(ctx context.Context, ref vendordomain.AccountRef, creds vendordomain.Credentials, window vendordomain.Window) ([]vendordomain.UsageGroup, error) {
	if creds.RoleARN == "" {
		return nil, fmt.Errorf("%w: missing role arn", vendordomain.ErrInvalidConfig)
	}

	client, err := a.costExplorerClient(ctx, creds)
	if err != nil {
		return nil, err
	}

	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(window.Start.Format(dateLayout)),
			End:   aws.String(window.End.Format(dateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{metricCost, metricUsage},
		GroupBy: []cetypes.GroupDefinition{
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
			{Type: cetypes.GroupDefinitionTypeDimension, Key: aws.String("USAGE_TYPE")},
		},
	}

	var groups []vendordomain.UsageGroup
	pages := 0
	for {
		output, err := client.GetCostAndUsage(ctx, input)
		if err != nil {
			return nil, classifyError(err)
		}
		pages++

		for _, result := range output.ResultsByTime {
			dayStart, dayEnd, err := parsePeriod(result.TimePeriod)
			if err != nil {
				return nil, err
			}
			for _, group := range result.Groups {
				parsed, err := parseGroup(group, dayStart, dayEnd)
				if err != nil {
					return nil, err
				}
				groups = append(groups, parsed)
			}
		}

		if output.NextPageToken == nil || *output.NextPageToken == "" {
			break
		}
		input.NextPageToken = output.NextPageToken
	}

	a.log.Debug("fetched cost and usage",
		zap.String("account_id", ref.AccountID.String()),
		zap.Int("pages", pages),
		zap.Int("groups", len(groups)),
	)
	return groups, nil
}

// costExplorerClient builds a Cost Explorer client whose credentials come
// from assuming the customer's role.
func (a *Adapter) costExplorerClient(ctx context.Context, creds vendordomain.Credentials) (*costexplorer.Client, error) {
	base, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.region))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", vendordomain.ErrUnavailable, err)
	}

	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), creds.RoleARN, func(opts *stscreds.AssumeRoleOptions) {
		opts.RoleSessionName = a.sessionName
		if creds.ExternalID != "" {
			opts.ExternalID = aws.String(creds.ExternalID)
		}
	})

	assumed := base.Copy()
	assumed.Credentials = aws.NewCredentialsCache(provider)
	return costexplorer.NewFromConfig(assumed), nil
}

func parsePeriod(period *cetypes.DateInterval) (time.Time, time.Time, error) {
	if period == nil || period.Start == nil || period.End == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: result missing time period", vendordomain.ErrMalformed)
	}
	start, err := time.Parse(dateLayout, *period.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad period start %q", vendordomain.ErrMalformed, *period.Start)
	}
	end, err := time.Parse(dateLayout, *period.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: bad period end %q", vendordomain.ErrMalformed, *period.End)
	}
	return start.UTC(), end.UTC(), nil
}

func parseGroup(group cetypes.Group, start, end time.Time) (vendordomain.UsageGroup, error) {
	if len(group.Keys) < 2 {
		return vendordomain.UsageGroup{}, fmt.Errorf("%w: group has %d keys", vendordomain.ErrMalformed, len(group.Keys))
	}

	cost, currency, err := parseMetric(group.Metrics, metricCost)
	if err != nil {
		return vendordomain.UsageGroup{}, err
	}
	usage, usageUnit, err := parseMetric(group.Metrics, metricUsage)
	if err != nil {
		return vendordomain.UsageGroup{}, err
	}

	return vendordomain.UsageGroup{
		ServiceName: group.Keys[0],
		CostType:    group.Keys[1],
		Cost:        cost,
		Currency:    currency,
		UsageAmount: usage,
		UsageUnit:   usageUnit,
		UsageStart:  start,
		UsageEnd:    end,
	}, nil
}

func parseMetric(metrics map[string]cetypes.MetricValue, name string) (float64, string, error) {
	value, ok := metrics[name]
	if !ok || value.Amount == nil {
		return 0, "", nil
	}
	amount, err := strconv.ParseFloat(*value.Amount, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: metric %s amount %q", vendordomain.ErrMalformed, name, *value.Amount)
	}
	return amount, aws.ToString(value.Unit), nil
}

// classifyError maps AWS API failures onto the shared vendor errors so the
// caller can decide whether a retry is worthwhile.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "AccessDenied" || code == "AccessDeniedException" ||
			code == "UnrecognizedClientException" || strings.HasPrefix(code, "ExpiredToken"):
			return fmt.Errorf("%w: %s", vendordomain.ErrAuthDenied, code)
		case strings.Contains(code, "Throttling") || code == "TooManyRequestsException" ||
			code == "LimitExceededException":
			return fmt.Errorf("%w: %s", vendordomain.ErrRateLimited, code)
		}
	}
	return fmt.Errorf("%w: %v", vendordomain.ErrUnavailable, err)
}
