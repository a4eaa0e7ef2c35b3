package main

import (
	"go.uber.org/fx"

	"widget-controlplane/internal/httpapi"
	"widget-controlplane/internal/server"
	"widget-controlplane/pkg/asynq"
	"widget-controlplane/pkg/config"
	"widget-controlplane/pkg/db"
	"widget-controlplane/pkg/gen"
	"widget-controlplane/pkg/health"
	"widget-controlplane/pkg/logger"
	"widget-controlplane/pkg/minio"
	"widget-controlplane/pkg/redis"
	"widget-controlplane/services/bundle"
	"widget-controlplane/services/license"
	"widget-controlplane/services/widget"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		gen.Module,
		db.Module,
		redis.Module,
		asynq.Client,
		asynq.Server,
		minio.Client,
		health.Module,
		httpapi.Module,
		server.Module,

		license.ServerModule,
		license.TaskModule,
		widget.ServerModule,
		bundle.ServerModule,
	)

	app.Run()
}
