package schema

import (
	"time"

	"gorm.io/datatypes"
)

// EventJournal represents the event_journal table - the sequential audit log
// of committed mutations. A row is written in the same transaction as the
// mutation it describes, so the journal is the source of truth even when a
// downstream publish fails.
type EventJournal struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// EventID is the ULID assigned to the event, time-sortable
	EventID string `gorm:"column:event_id;not null;uniqueIndex;type:text"`
	// EventType is the kind of mutation
	EventType string `gorm:"column:event_type;not null;type:text;index:idx_event_journal_type"`
	// Owner is the identity the event concerns
	Owner string `gorm:"column:owner;not null;type:text;index:idx_event_journal_owner"`
	// Payload is the full event descriptor
	Payload datatypes.JSON `gorm:"column:payload;not null;type:jsonb"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the EventJournal model
func (EventJournal) TableName() string {
	return "event_journal"
}
