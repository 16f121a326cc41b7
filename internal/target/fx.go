package target

import (
	"github.com/NeCTAR-RC/reporting-pollster/internal/config"
	"github.com/NeCTAR-RC/reporting-pollster/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the local reporting store gateway.
var Module = fx.Module("target",
	fx.Provide(provideGateway),
)

func provideGateway(cfg config.Config, log *zap.Logger) (*Gateway, error) {
	conn, err := db.Open(cfg.Local)
	if err != nil {
		return nil, err
	}
	return NewGateway(conn, log), nil
}
