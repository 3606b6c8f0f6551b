package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventCreated     = "CREATED"
	EventBidPlaced   = "BID_PLACED"
	EventBidAccepted = "BID_ACCEPTED"
	EventBidRejected = "BID_REJECTED"
	EventFlagged     = "FLAGGED"
	EventUnflagged   = "UNFLAGGED"
	EventExpired     = "EXPIRED"
	EventRemoved     = "REMOVED"
)

// ListingEvent is an append-only audit record of everything that happened to a
// listing. ActorID is nil for clock-driven transitions.
type ListingEvent struct {
	EventID   uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	ListingID uuid.UUID      `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	EventType string         `gorm:"column:event_type;type:varchar(30);not null" json:"event_type"`
	EventData datatypes.JSON `gorm:"column:event_data;type:jsonb;not null" json:"event_data"`
	ActorID   *uuid.UUID     `gorm:"column:actor_id;type:uuid" json:"actor_id"`
	CreatedAt time.Time      `json:"createdAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ListingEvent) TableName() string {
	return "ListingEvents"
}

func (le *ListingEvent) BeforeCreate(tx *gorm.DB) error {
	if le.EventID == uuid.Nil {
		le.EventID = uuid.New()
	}
	return nil
}
