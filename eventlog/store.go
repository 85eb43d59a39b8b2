// Package eventlog persists committed escrow and deed events so they can be
// queried after the fact.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"homeescrow/core/events"
	"homeescrow/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultListLimit = 100
	maxListLimit     = 1000
)

// ErrDSNRequired is returned when no connection string is configured.
var ErrDSNRequired = errors.New("eventlog: dsn must be configured")

// Store writes events to a relational database and serves filtered reads.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDSNRequired
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("eventlog: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate event log: %w", err)
	}
	return New(db, log), nil
}

// New wraps an already migrated gorm handle.
func New(db *gorm.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		db:     db,
		logger: log.With(slog.String("component", "eventlog")),
		now:    time.Now,
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Events are appended in commit order; a
// failed write is logged and does not affect the committed state.
func (s *Store) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok {
		return
	}
	if err := s.Append(context.Background(), payload.Event()); err != nil {
		s.logger.Error("event log append failed",
			slog.String("type", evt.EventType()),
			slog.Any("error", err))
	}
}

// Append stores a single event.
func (s *Store) Append(ctx context.Context, evt *types.Event) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("eventlog: store not configured")
	}
	if evt == nil {
		return nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	record := Record{
		EventID:    uuid.New(),
		Type:       evt.Type,
		Attributes: string(attrs),
		CreatedAt:  s.now().UTC(),
	}
	if id, ok := evt.AssetID(); ok {
		record.AssetID = &id
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Type    string
	AssetID *uint64
	After   uint64
	Limit   int
}

// Entry is a stored event with its log sequence.
type Entry struct {
	Seq       uint64            `json:"seq"`
	Type      string            `json:"type"`
	AssetID   *uint64           `json:"assetId,omitempty"`
	Attrs     map[string]string `json:"attributes"`
	CreatedAt time.Time         `json:"createdAt"`
}

// List returns events in sequence order.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("eventlog: store not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := s.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", filter.After)
	if t := strings.TrimSpace(filter.Type); t != "" {
		query = query.Where("type = ?", t)
	}
	if filter.AssetID != nil {
		query = query.Where("asset_id = ?", *filter.AssetID)
	}
	var records []Record
	if err := query.Order("seq ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]Entry, 0, len(records))
	for _, rec := range records {
		attrs := make(map[string]string)
		if rec.Attributes != "" {
			if err := json.Unmarshal([]byte(rec.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("decode event %d: %w", rec.Seq, err)
			}
		}
		out = append(out, Entry{
			Seq:       rec.Seq,
			Type:      rec.Type,
			AssetID:   rec.AssetID,
			Attrs:     attrs,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}
