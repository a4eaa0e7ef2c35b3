package license

import (
	"go.uber.org/fx"
)

var Module = fx.Module("license.module",
	fx.Provide(NewService),
)

var ServerModule = fx.Module("license.server",
	Module,
	fx.Invoke(RegisterRoutes),
)

// TaskModule wires the expiry sweep handler and its daily scheduler.
var TaskModule = fx.Module("license.task",
	fx.Provide(
		NewTask,
		NewScheduler,
	),
	fx.Invoke(
		registerTaskHandlers,
		StartScheduler,
	),
)
