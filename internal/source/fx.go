package source

import (
	"github.com/NeCTAR-RC/reporting-pollster/internal/config"
	"github.com/NeCTAR-RC/reporting-pollster/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the remote database gateway and the compute API client.
var Module = fx.Module("source",
	fx.Provide(
		provideGateway,
		provideComputeClient,
	),
)

func provideGateway(cfg config.Config, log *zap.Logger) (Gateway, error) {
	conn, err := db.Open(cfg.Remote)
	if err != nil {
		return nil, err
	}
	return NewGateway(conn, log), nil
}

func provideComputeClient(cfg config.Config, log *zap.Logger) ComputeClient {
	return NewComputeClient(cfg.Compute, log)
}
