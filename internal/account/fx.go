package account

import (
	"go.uber.org/fx"

	"github.com/cloudtally/cloudtally/internal/account/repository"
	"github.com/cloudtally/cloudtally/internal/account/service"
)

var Module = fx.Module("account.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
