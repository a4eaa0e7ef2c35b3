package bundle

import (
	"go.uber.org/fx"

	"widget-controlplane/services/license"
)

var Module = fx.Module("bundle.module",
	fx.Provide(
		NewCache,
		ProvideSource,
		NewService,
		NewInvalidator,
		func(i *Invalidator) license.CacheInvalidator { return i },
	),
)

var ServerModule = fx.Module("bundle.server",
	Module,
	fx.Invoke(
		RegisterRoutes,
		Subscribe,
	),
)
