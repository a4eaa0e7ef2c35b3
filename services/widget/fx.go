package widget

import (
	"go.uber.org/fx"
)

var Module = fx.Module("widget.module",
	fx.Provide(NewService),
)

var ServerModule = fx.Module("widget.server",
	Module,
	fx.Invoke(RegisterRoutes),
)
