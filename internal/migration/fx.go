package migration

import (
	"github.com/NeCTAR-RC/reporting-pollster/internal/target"
	"go.uber.org/fx"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(tgt *target.Gateway) error {
		sqlDB, err := tgt.DB().DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
