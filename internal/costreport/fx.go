package costreport

import (
	"go.uber.org/fx"

	"github.com/cloudtally/cloudtally/internal/costreport/service"
)

var Module = fx.Module("costreport.service",
	fx.Provide(service.NewService),
)
