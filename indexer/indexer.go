// Package indexer persists committed contract events into a SQL database so
// operators can audit deposits, withdrawals and reward forwarding after the
// fact.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"genproxy/core/events"
	"genproxy/core/vm"
	"genproxy/observability/logging"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// ErrDSNRequired is returned when no database DSN was supplied.
var ErrDSNRequired = errors.New("indexer: dsn required")

// EventRecord is one committed contract event. Seq increases with every
// stored event and orders events emitted within the same height.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex"`
	Height     uint64    `gorm:"index"`
	Contract   string    `gorm:"index;size:64"`
	Label      string    `gorm:"size:64"`
	Type       string    `gorm:"index;size:128"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// BeforeCreate assigns a random identifier.
func (r *EventRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Attrs decodes the stored attribute map.
func (r EventRecord) Attrs() map[string]string {
	out := make(map[string]string)
	if r.Attributes == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// Filter narrows List. Empty fields match everything. Before pages
// backwards: only events with a Seq below it are returned.
type Filter struct {
	Type     string
	Contract string
	Before   uint64
	Limit    int
}

// Indexer stores events emitted by the router. It implements events.Emitter.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger

	mu  sync.Mutex
	seq uint64
}

var _ events.Emitter = (*Indexer)(nil)

// Open connects to dsn and migrates the schema. Supported forms are
// "sqlite://<path>" and "postgres://..." (or "postgresql://...").
func Open(dsn string, logger *slog.Logger) (*Indexer, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open database: %w", err)
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	var last uint64
	if err := db.Model(&EventRecord{}).Select("COALESCE(MAX(seq), 0)").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("indexer: load sequence: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("event indexer ready", logging.DSN("dsn", dsn), slog.Uint64("seq", last))
	return &Indexer{db: db, logger: logger, seq: last}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case trimmed == "":
		return nil, ErrDSNRequired
	case strings.HasPrefix(trimmed, "sqlite://"):
		path := strings.TrimPrefix(trimmed, "sqlite://")
		if path == "" {
			return nil, ErrDSNRequired
		}
		return sqlite.Open(path), nil
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return postgres.Open(trimmed), nil
	default:
		return nil, fmt.Errorf("indexer: unsupported dsn scheme in %q", trimmed)
	}
}

// Emit records contract events. Storage failures are logged; they never
// affect the operation that produced the event.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || evt == nil {
		return
	}
	var ce vm.ContractEvent
	switch v := evt.(type) {
	case vm.ContractEvent:
		ce = v
	case *vm.ContractEvent:
		if v == nil {
			return
		}
		ce = *v
	default:
		return
	}
	if err := i.Record(context.Background(), ce); err != nil {
		i.logger.Error("index event", slog.String("type", ce.EventType()), slog.Any("error", err))
	}
}

// Record stores a single contract event.
func (i *Indexer) Record(ctx context.Context, evt vm.ContractEvent) error {
	if evt.Event == nil {
		return nil
	}
	attrs, err := json.Marshal(evt.Event.Attributes)
	if err != nil {
		return fmt.Errorf("indexer: encode attributes: %w", err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	rec := &EventRecord{
		Seq:        i.seq + 1,
		Height:     evt.Height,
		Contract:   evt.Contract.String(),
		Label:      evt.Label,
		Type:       evt.Event.Type,
		Attributes: string(attrs),
	}
	if err := i.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("indexer: insert: %w", err)
	}
	i.seq = rec.Seq
	return nil
}

// List returns matching events newest first.
func (i *Indexer) List(ctx context.Context, f Filter) ([]EventRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	q := i.db.WithContext(ctx).Model(&EventRecord{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Contract != "" {
		q = q.Where("contract = ?", f.Contract)
	}
	if f.Before > 0 {
		q = q.Where("seq < ?", f.Before)
	}
	var out []EventRecord
	if err := q.Order("seq desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: list: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (i *Indexer) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
