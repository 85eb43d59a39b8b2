package eventlog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record is one committed event.
type Record struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	EventID    uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Type       string    `gorm:"size:64;index"`
	AssetID    *uint64   `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName pins the table name.
func (Record) TableName() string { return "escrow_events" }

// AutoMigrate performs the schema migration for the event log.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}
