// Package server exposes the HTTP API: account registry, credential
// registration, ingestion triggers, and cost reports.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	accountdomain "github.com/cloudtally/cloudtally/internal/account/domain"
	"github.com/cloudtally/cloudtally/internal/config"
	costreportdomain "github.com/cloudtally/cloudtally/internal/costreport/domain"
	credentialdomain "github.com/cloudtally/cloudtally/internal/credential/domain"
	ingestdomain "github.com/cloudtally/cloudtally/internal/ingest/domain"
	"github.com/cloudtally/cloudtally/internal/observability"
	obsmiddleware "github.com/cloudtally/cloudtally/internal/observability/logger"
	obsmetrics "github.com/cloudtally/cloudtally/internal/observability/metrics"
	obstracing "github.com/cloudtally/cloudtally/internal/observability/tracing"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	accountSvc    accountdomain.Service
	credentialSvc credentialdomain.Service
	ingestSvc     ingestdomain.Service
	reportSvc     costreportdomain.Service
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	AccountSvc    accountdomain.Service
	CredentialSvc credentialdomain.Service
	IngestSvc     ingestdomain.Service
	ReportSvc     costreportdomain.Service
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		accountSvc:    p.AccountSvc,
		credentialSvc: p.CredentialSvc,
		ingestSvc:     p.IngestSvc,
		reportSvc:     p.ReportSvc,
		obsMetrics:    p.ObsMetrics,
	}
}

func RegisterRoutes(s *Server) {
	r := s.engine
	v1 := r.Group("/v1")

	accounts := v1.Group("/accounts")
	accounts.GET("", s.ListAccounts)
	accounts.POST("", s.CreateAccount)
	accounts.GET("/:account_id", s.GetAccount)
	accounts.PATCH("/:account_id", s.UpdateAccount)
	accounts.DELETE("/:account_id", s.DeleteAccount)

	accounts.POST("/:account_id/credentials/oauth", s.RegisterOAuthCredential)
	accounts.POST("/:account_id/credentials/aws-role", s.RegisterAWSRole)

	accounts.POST("/:account_id/ingest", s.TriggerIngest)

	accounts.GET("/:account_id/costs/daily", s.DailyCosts)
	accounts.GET("/:account_id/costs/by-service", s.CostByService)
	accounts.GET("/:account_id/costs/by-region", s.CostByRegion)
	accounts.GET("/:account_id/usage/by-service-day", s.UsageByServiceDay)
	accounts.GET("/:account_id/usage/monthly", s.MonthlyServiceTotals)
	accounts.GET("/:account_id/summary", s.AccountSummary)

	orgs := v1.Group("/organizations")
	orgs.GET("/:org_id/summary", s.OrgSummary)
	orgs.POST("/summary", s.BatchOrgSummary)
}
