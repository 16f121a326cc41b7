package db

import (
	"fmt"

	"github.com/NeCTAR-RC/reporting-pollster/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Dialect builds a MySQL dialector for one of the configured endpoints.
// Both the remote source server and the local reporting store are MySQL;
// tests substitute an in-memory sqlite connection instead.
func Dialect(cfg config.DBConfig) gorm.Dialector {
	return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	))
}

// Open opens a gorm connection for the given endpoint.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	conn, err := gorm.Open(Dialect(cfg), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open %s:%s/%s: %w", cfg.Host, cfg.Port, cfg.Name, err)
	}
	return conn, nil
}
