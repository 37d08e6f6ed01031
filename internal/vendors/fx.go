package vendor

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/cloudtally/cloudtally/internal/config"
	credentialdomain "github.com/cloudtally/cloudtally/internal/credential/domain"
	"github.com/cloudtally/cloudtally/internal/vendors/adapters"
	awsadapter "github.com/cloudtally/cloudtally/internal/vendors/adapters/aws"
	azureadapter "github.com/cloudtally/cloudtally/internal/vendors/adapters/azure"
	gcpadapter "github.com/cloudtally/cloudtally/internal/vendors/adapters/gcp"
)

var Module = fx.Module("vendor",
	fx.Provide(func(cfg config.Config, log *zap.Logger) *adapters.Registry {
		return adapters.NewRegistry(
			awsadapter.NewAdapter(cfg, log),
			gcpadapter.NewAdapter(log),
			azureadapter.NewAdapter(cfg, log),
		)
	}),
	fx.Provide(func(cfg config.Config, log *zap.Logger) credentialdomain.RoleProber {
		return awsadapter.NewProber(cfg, log)
	}),
)
