package semstore

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DatabaseConfig selects and configures the SQL backend for GormStore.
type DatabaseConfig struct {
	// Driver is one of "sqlite", "postgres", "mysql".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the driver-specific connection string. For sqlite this is the
	// database file path (":memory:" for an ephemeral store).
	DSN string `yaml:"dsn" json:"dsn"`
}

// factRecord is the GORM model backing one stored fact.
type factRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Subject   string `gorm:"size:255;index"`
	Predicate string `gorm:"size:255;index"`
	Object    string `gorm:"size:1024"`
	Source    string `gorm:"size:255"`
	Timestamp time.Time
}

func (factRecord) TableName() string { return "facts" }

// GormStore is a SQL-backed Store implementation for deployments that want
// the audit trail to survive restarts.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the configured database and migrates the fact table.
func NewGormStore(cfg DatabaseConfig) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&factRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate fact table: %w", err)
	}
	return &GormStore{db: db}, nil
}

// AddFact persists a fact row.
func (s *GormStore) AddFact(ctx context.Context, f Fact) error {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	rec := factRecord{
		Subject:   f.Subject,
		Predicate: f.Predicate,
		Object:    f.Object,
		Source:    f.Source,
		Timestamp: f.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to store fact: %w", err)
	}
	return nil
}

// QueryFacts returns all facts matching the pattern, oldest first.
func (s *GormStore) QueryFacts(ctx context.Context, p Pattern) ([]Fact, error) {
	q := s.db.WithContext(ctx).Model(&factRecord{}).Order("id asc")
	if p.Subject != "" {
		q = q.Where("subject = ?", p.Subject)
	}
	if p.Predicate != "" {
		q = q.Where("predicate = ?", p.Predicate)
	}
	if p.Object != "" {
		q = q.Where("object = ?", p.Object)
	}

	var recs []factRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	out := make([]Fact, 0, len(recs))
	for _, r := range recs {
		out = append(out, Fact{
			Subject:   r.Subject,
			Predicate: r.Predicate,
			Object:    r.Object,
			Source:    r.Source,
			Timestamp: r.Timestamp,
		})
	}
	return out, nil
}

// ExportSnapshot serializes every stored fact.
func (s *GormStore) ExportSnapshot(ctx context.Context, format string) ([]byte, error) {
	facts, err := s.QueryFacts(ctx, Pattern{})
	if err != nil {
		return nil, err
	}
	return encodeSnapshot(facts, format)
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
