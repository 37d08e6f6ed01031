package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	"github.com/cloudtally/cloudtally/internal/clock"
	orgdomain "github.com/cloudtally/cloudtally/internal/organization/domain"
	"github.com/cloudtally/cloudtally/pkg/db"
	"github.com/cloudtally/cloudtally/pkg/db/pagination"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    accountdomain.Repository
	OrgRepo orgdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	repo    accountdomain.Repository
	orgRepo orgdomain.Repository
}

func NewService(p ServiceParam) accountdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		clock: p.Clock,

		repo:    p.Repo,
		orgRepo: p.OrgRepo,
	}
}

func (s *Service) Create(ctx context.Context, req accountdomain.CreateRequest) (*accountdomain.CloudAccount, error) {
	provider, err := accountdomain.NormalizeProvider(req.Provider)
	if err != nil {
		return nil, err
	}

	exists, err := s.orgRepo.Exists(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, orgdomain.ErrOrganizationNotFound
	}

	now := s.clock.Now()
	account := accountdomain.CloudAccount{
		ID:                uuid.New(),
		OrgID:             req.OrgID,
		Name:              strings.TrimSpace(req.Name),
		Provider:          provider,
		ProviderAccountID: strings.TrimSpace(req.ProviderAccountID),
		Region:            strings.TrimSpace(req.Region),
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, accountdomain.ErrDuplicateAccount
		}
		return nil, err
	}

	s.log.Info("account.created",
		zap.String("org_id", account.OrgID.String()),
		zap.String("account_id", account.ID.String()),
		zap.String("provider", account.Provider),
	)
	return &account, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*accountdomain.CloudAccount, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, req accountdomain.ListRequest) ([]*accountdomain.CloudAccount, *pagination.PageInfo, error) {
	filter := accountdomain.ListFilter{
		OrgID: req.OrgID,
		Page:  req.Page,
	}
	if req.Provider != "" {
		provider, err := accountdomain.NormalizeProvider(req.Provider)
		if err != nil {
			return nil, nil, err
		}
		filter.Provider = provider
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) Update(ctx context.Context, req accountdomain.UpdateRequest) (*accountdomain.CloudAccount, error) {
	account, err := s.repo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		account.Name = strings.TrimSpace(*req.Name)
	}
	if req.Region != nil {
		account.Region = strings.TrimSpace(*req.Region)
	}
	if req.Active != nil {
		account.Active = *req.Active
	}
	account.UpdatedAt = s.clock.Now().Truncate(time.Microsecond)

	if err := s.repo.Update(ctx, *account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, accountdomain.ErrDuplicateAccount
		}
		return nil, err
	}
	return account, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
