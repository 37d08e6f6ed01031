package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/cloudtally/cloudtally/internal/account"
	"github.com/cloudtally/cloudtally/internal/billing"
	"github.com/cloudtally/cloudtally/internal/clock"
	"github.com/cloudtally/cloudtally/internal/config"
	"github.com/cloudtally/cloudtally/internal/costreport"
	"github.com/cloudtally/cloudtally/internal/credential"
	"github.com/cloudtally/cloudtally/internal/ingest"
	"github.com/cloudtally/cloudtally/internal/migration"
	"github.com/cloudtally/cloudtally/internal/observability"
	"github.com/cloudtally/cloudtally/internal/organization"
	"github.com/cloudtally/cloudtally/internal/ratelimit"
	"github.com/cloudtally/cloudtally/internal/server"
	"github.com/cloudtally/cloudtally/internal/vendors"
	"github.com/cloudtally/cloudtally/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain modules
		organization.Module,
		account.Module,
		credential.Module,
		vendor.Module,
		billing.Module,
		ratelimit.Module,
		ingest.Module,
		costreport.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
