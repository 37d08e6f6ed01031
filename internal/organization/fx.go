package organization

import (
	"go.uber.org/fx"

	"github.com/cloudtally/cloudtally/internal/organization/repository"
)

var Module = fx.Module("organization.repository",
	fx.Provide(repository.NewRepository),
)
