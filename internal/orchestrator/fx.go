package orchestrator

import (
	"go.uber.org/fx"
)

// Module wires the run orchestrator.
var Module = fx.Module("orchestrator",
	fx.Provide(NewRunner),
)
