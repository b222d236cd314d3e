package cli

import (
	"context"
	"os"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/common/logtrace"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/config"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/sqlstore"
)

func (o *rootOptions) configPath() string {
	if o.configFile != "" {
		return o.configFile
	}
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	return DefaultConfigFile
}

// loadConfig reads the configuration and initialises logging from it.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath())
	if err != nil {
		return nil, err
	}
	logtrace.InitLogger(cfg.Log.Level)
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (db.Database, error) {
	return db.Open(ctx, cfg.DBManagerConfig(), sqlstore.WithCompression(cfg.DB.CompressObjects))
}
