package db

import (
	"fmt"

	"spacewh/mis/internal/config"
	"spacewh/mis/internal/metrics"
	"spacewh/mis/internal/providers"
)

// OpenRecordStore builds the record store selected by STORE_DRIVER.
func OpenRecordStore(cfg *config.Config, m *metrics.MetricsRegistry) (providers.RecordStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgREST:
		return providers.NewPostgRESTProvider(cfg.SupabaseURL, cfg.SupabaseServiceKey, providers.PostgRESTOptions{
			Timeout:         cfg.StoreTimeout,
			MaxConnsPerHost: cfg.HTTPPoolMaxSize,
			IdleConnTimeout: cfg.HTTPKeepaliveExpiry,
		}, m), nil
	case config.StoreDriverPostgres, config.StoreDriverSQLite:
		orm, err := InitORM(cfg.StoreDriver, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return NewGormRecordStore(orm, m), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
