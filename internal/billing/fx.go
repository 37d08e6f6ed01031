package billing

import (
	"go.uber.org/fx"

	"github.com/cloudtally/cloudtally/internal/billing/repository"
)

var Module = fx.Module("billing.repository",
	fx.Provide(repository.NewRepository),
)
