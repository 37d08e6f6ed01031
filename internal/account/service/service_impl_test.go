package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	accountrepo "github.com/cloudtally/cloudtally/internal/account/repository"
	"github.com/cloudtally/cloudtally/internal/clock"
	orgdomain "github.com/cloudtally/cloudtally/internal/organization/domain"
	orgrepo "github.com/cloudtally/cloudtally/internal/organization/repository"
	"github.com/cloudtally/cloudtally/pkg/db"
	"github.com/cloudtally/cloudtally/pkg/db/pagination"
)

func newTestService(t *testing.T) (accountdomain.Service, uuid.UUID) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&orgdomain.Organization{}, &accountdomain.CloudAccount{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	orgs := orgrepo.NewRepository(dbConn)
	orgID := uuid.New()
	if err := orgs.Create(context.Background(), orgdomain.Organization{ID: orgID, Name: "acme"}); err != nil {
		t.Fatalf("failed to seed org: %v", err)
	}

	svc := NewService(ServiceParam{
		DB:      dbConn,
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)),
		Repo:    accountrepo.NewRepository(dbConn),
		OrgRepo: orgs,
	})
	return svc, orgID
}

func TestCreateRejectsUnknownProvider(t *testing.T) {
	svc, orgID := newTestService(t)

	_, err := svc.Create(context.Background(), accountdomain.CreateRequest{
		OrgID:             orgID,
		Name:              "prod",
		Provider:          "oracle",
		ProviderAccountID: "123",
	})
	if !errors.Is(err, accountdomain.ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestCreateRejectsUnknownOrg(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), accountdomain.CreateRequest{
		OrgID:             uuid.New(),
		Name:              "prod",
		Provider:          "aws",
		ProviderAccountID: "123456789012",
	})
	if !errors.Is(err, orgdomain.ErrOrganizationNotFound) {
		t.Fatalf("expected ErrOrganizationNotFound, got %v", err)
	}
}

func TestCreateDuplicateIdentity(t *testing.T) {
	svc, orgID := newTestService(t)
	ctx := context.Background()

	req := accountdomain.CreateRequest{
		OrgID:             orgID,
		Name:              "prod",
		Provider:          "aws",
		ProviderAccountID: "123456789012",
	}
	if _, err := svc.Create(ctx, req); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := svc.Create(ctx, req)
	if !errors.Is(err, accountdomain.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestCreateNormalizesGoogleProvider(t *testing.T) {
	svc, orgID := newTestService(t)

	account, err := svc.Create(context.Background(), accountdomain.CreateRequest{
		OrgID:             orgID,
		Name:              "analytics",
		Provider:          "Google",
		ProviderAccountID: "billingAccounts/ABC-DEF",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if account.Provider != "gcp" {
		t.Fatalf("expected provider gcp, got %s", account.Provider)
	}
}

func TestUpdateTogglesActive(t *testing.T) {
	svc, orgID := newTestService(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, accountdomain.CreateRequest{
		OrgID:             orgID,
		Name:              "prod",
		Provider:          "azure",
		ProviderAccountID: "sub-0001",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	inactive := false
	updated, err := svc.Update(ctx, accountdomain.UpdateRequest{ID: account.ID, Active: &inactive})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Active {
		t.Fatal("expected account to be inactive")
	}

	got, err := svc.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Active {
		t.Fatal("expected persisted account to be inactive")
	}
}

func TestListPaginates(t *testing.T) {
	svc, orgID := newTestService(t)
	ctx := context.Background()

	names := []string{"a", "b", "c"}
	for _, name := range names {
		if _, err := svc.Create(ctx, accountdomain.CreateRequest{
			OrgID:             orgID,
			Name:              name,
			Provider:          "aws",
			ProviderAccountID: "acct-" + name,
		}); err != nil {
			t.Fatalf("create %s failed: %v", name, err)
		}
	}

	accounts, pageInfo, err := svc.List(ctx, accountdomain.ListRequest{
		OrgID: orgID,
		Page:  pagination.Pagination{PageSize: 2},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if !pageInfo.HasMore {
		t.Fatal("expected more pages")
	}

	rest, pageInfo, err := svc.List(ctx, accountdomain.ListRequest{
		OrgID: orgID,
		Page:  pagination.Pagination{PageSize: 2, PageToken: pageInfo.NextPageToken},
	})
	if err != nil {
		t.Fatalf("second list failed: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected 1 account on last page, got %d", len(rest))
	}
	if pageInfo.HasMore {
		t.Fatal("expected no further pages")
	}
}
