package credential

import (
	"go.uber.org/fx"

	"github.com/cloudtally/cloudtally/internal/credential/repository"
	"github.com/cloudtally/cloudtally/internal/credential/service"
)

var Module = fx.Module("credential.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
