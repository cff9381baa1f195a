// Package catalog provides the registry of named dags: which on-disk
// directory backs each one, and the last head id recorded for it.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/segdag/segdag/pkg/config"
	"github.com/segdag/segdag/pkg/telemetry"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// DBType identifies the SQL dialect backing the catalog.
type DBType string

const (
	DBTypePostgres DBType = "postgres"
	DBTypeMySQL    DBType = "mysql"
	DBTypeSQLite   DBType = "sqlite"
)

// NewGormDB opens a GORM connection for the catalog database described
// by cfg.
func NewGormDB(cfg *config.CatalogConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch DBType(cfg.Type) {
	case DBTypePostgres, DBType("postgresql"):
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database,
		)
		dialector = postgres.Open(dsn)
	case DBTypeMySQL:
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		)
		dialector = mysql.Open(dsn)
	case DBTypeSQLite:
		path := cfg.Database
		if path == "" {
			path = "segdag_catalog.db"
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("unsupported catalog type: %s", cfg.Type)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	if telemetry.Enabled() {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("failed to enable telemetry: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	return db, nil
}

// DagRecord is the persisted row for one named dag.
type DagRecord struct {
	Name      string    `gorm:"column:name;type:varchar(256);primaryKey"`
	DataDir   string    `gorm:"column:data_dir;type:varchar(1024)"`
	HeadID    uint64    `gorm:"column:head_id"`
	HeadName  string    `gorm:"column:head_name;type:varchar(512)"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for DagRecord.
func (DagRecord) TableName() string {
	return "dag_catalog"
}

// Catalog is the registry of named dags backed by a SQL database.
type Catalog struct {
	db *gorm.DB
}

// Open wraps an existing GORM connection and ensures the catalog table
// exists.
func Open(db *gorm.DB) (*Catalog, error) {
	if err := db.AutoMigrate(&DagRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Register inserts or updates the record for name, recording its
// storage directory and current head.
func (c *Catalog) Register(ctx context.Context, name, dataDir string, headID uint64, headName string) error {
	rec := DagRecord{Name: name, DataDir: dataDir, HeadID: headID, HeadName: headName}
	return c.db.WithContext(ctx).Save(&rec).Error
}

// Get retrieves the record for name, if any.
func (c *Catalog) Get(ctx context.Context, name string) (*DagRecord, error) {
	var rec DagRecord
	err := c.db.WithContext(ctx).First(&rec, "name = ?", name).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns every registered dag, ordered by name.
func (c *Catalog) List(ctx context.Context) ([]DagRecord, error) {
	var recs []DagRecord
	if err := c.db.WithContext(ctx).Order("name").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// UpdateHead moves name's recorded head forward.
func (c *Catalog) UpdateHead(ctx context.Context, name string, headID uint64, headName string) error {
	return c.db.WithContext(ctx).Model(&DagRecord{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{"head_id": headID, "head_name": headName}).Error
}

// Delete removes name's catalog entry. It does not touch the
// underlying dag directory.
func (c *Catalog) Delete(ctx context.Context, name string) error {
	return c.db.WithContext(ctx).Delete(&DagRecord{}, "name = ?", name).Error
}

// Close releases the underlying database connection.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
