package ingest

import (
	"go.uber.org/fx"

	"github.com/cloudtally/cloudtally/internal/ingest/service"
)

var Module = fx.Module("ingest.service",
	fx.Provide(service.NewService),
)
