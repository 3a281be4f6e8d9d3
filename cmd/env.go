package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/export"
	"github.com/sells-group/emla-tracker/internal/ingest"
	"github.com/sells-group/emla-tracker/internal/mastersync"
	"github.com/sells-group/emla-tracker/internal/reconcile"
	"github.com/sells-group/emla-tracker/internal/resilience"
	"github.com/sells-group/emla-tracker/internal/schema"
	"github.com/sells-group/emla-tracker/internal/store"
	"github.com/sells-group/emla-tracker/internal/tabular"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "emla.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st.SetRetry(retryConfig())
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates cfg for mode, opens the store and applies migrations.
// Callers should defer Close.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func retryConfig() resilience.RetryConfig {
	return resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
}

func loadTables() (*schema.Tables, error) {
	if cfg.Schema.TablesFile != "" {
		zap.L().Info("loading dialect tables", zap.String("file", cfg.Schema.TablesFile))
		return schema.LoadTablesFile(cfg.Schema.TablesFile)
	}
	return schema.DefaultTables()
}

func newPipeline(st store.Store) (*ingest.Pipeline, error) {
	tables, err := loadTables()
	if err != nil {
		return nil, err
	}
	return ingest.New(tables, st, st, ingest.Config{
		Reconcile: reconcile.Config{
			ChunkSize:       cfg.Ingest.ChunkSize,
			ChunkPause:      time.Duration(cfg.Ingest.ChunkPauseMs) * time.Millisecond,
			LookupChunkSize: cfg.Ingest.LookupChunkSize,
		},
		RequireAdvisor: cfg.Ingest.RequireAdvisor,
	}), nil
}

func newSyncer(ctx context.Context, st store.Store) (*mastersync.Syncer, error) {
	client, err := mastersync.NewClient(ctx, mastersync.ClientConfig{
		BaseURL:           cfg.Sync.BaseURL,
		EntityPath:        cfg.Sync.EntityPath,
		Filter:            cfg.Sync.Filter,
		TokenURL:          cfg.Sync.TokenURL,
		ClientID:          cfg.Sync.ClientID,
		ClientSecret:      cfg.Sync.ClientSecret,
		Scopes:            cfg.Sync.Scopes,
		PageSize:          cfg.Sync.PageSize,
		RequestsPerSecond: cfg.Sync.RequestsPerSecond,
		Timeout:           time.Duration(cfg.Sync.TimeoutSecs) * time.Second,
		Retry:             retryConfig(),
	})
	if err != nil {
		return nil, err
	}
	return mastersync.NewSyncer(client, st, cfg.Ingest.LookupChunkSize), nil
}

func newSink(ctx context.Context) (export.Sink, error) {
	switch cfg.Export.Driver {
	case "s3":
		return export.NewS3Sink(ctx, export.S3Config{
			Bucket: cfg.Export.S3Bucket,
			Prefix: cfg.Export.S3Prefix,
			Region: cfg.Export.S3Region,
		})
	case "file", "":
		return export.FileSink{Dir: cfg.Export.Dir}, nil
	default:
		return nil, eris.Errorf("unsupported export driver: %s", cfg.Export.Driver)
	}
}

// readUpload returns the text of a CSV or XLSX file. Workbooks are rendered
// as comma-delimited text; other files are decoded to UTF-8.
func readUpload(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "read %s", path)
	}
	if tabular.IsXLSX(path) {
		records, err := tabular.ReadXLSXBytes(data, tabular.XLSXOptions{})
		if err != nil {
			return "", err
		}
		return tabular.RecordsToCSV(records)
	}
	text, enc, err := tabular.Decode(data)
	if err != nil {
		return "", eris.Wrapf(err, "decode %s", path)
	}
	zap.L().Debug("decoded upload", zap.String("file", path), zap.String("encoding", enc))
	return text, nil
}
