package logger

import "go.uber.org/fx"

// Module provides logger for fx DI
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)
