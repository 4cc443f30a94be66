package utils

import (
	"context"
	"database/sql"
	"fmt"

	"auction-storefront/internal/config"
	"auction-storefront/pkg/logger"

	_ "github.com/go-sql-driver/mysql"
)

// InitializeMysql opens the pool described by cfg and verifies it with a ping.
func InitializeMysql(ctx context.Context, cfg config.MySQLConfig, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	log.Info("Connected to MySQL", "max_open_conns", cfg.MaxOpenConns)
	return db, nil
}
