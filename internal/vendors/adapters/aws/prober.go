package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/zap"

	"github.com/cloudtally/cloudtally/internal/config"
)

// Prober verifies a customer role is assumable before we persist it.
type Prober struct {
	region      string
	sessionName string
	log         *zap.Logger
}

func NewProber(cfg config.Config, log *zap.Logger) *Prober {
	return &Prober{
		region:      cfg.Vendors.AWSRegion,
		sessionName: cfg.Vendors.AWSSessionName,
		log:         log.Named("vendor.aws.prober"),
	}
}

// Probe performs a short-lived AssumeRole call and discards the session.
func (p *Prober) Probe(ctx context.Context, roleARN, externalID string) error {
	base, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	input := &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(p.sessionName),
		DurationSeconds: aws.Int32(probeDuration),
	}
	if externalID != "" {
		input.ExternalId = aws.String(externalID)
	}

	if _, err := sts.NewFromConfig(base).AssumeRole(ctx, input); err != nil {
		p.log.Warn("assume role probe failed", zap.String("role_arn", roleARN), zap.Error(err))
		return classifyError(err)
	}
	return nil
}
