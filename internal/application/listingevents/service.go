package listingevents

import (
	"context"
	"encoding/json"
	"fmt"

	"agribid-backend/internal/domain"
	"agribid-backend/internal/pkg/auctionerrors"
	"agribid-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Record appends an audit event for a listing inside the caller's transaction.
// ActorID is nil for clock-driven transitions.
func Record(tx *gorm.DB, listingID uuid.UUID, eventType string, actorID *uuid.UUID, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("listingevents: marshal payload: %w", err)
	}
	return tx.Create(&domain.ListingEvent{
		ListingID: listingID,
		EventType: eventType,
		EventData: datatypes.JSON(b),
		ActorID:   actorID,
	}).Error
}

// Service reads the audit trail back out.
type Service struct {
	DB *gorm.DB
}

// ListForListing returns a listing's events newest first. Only the listing's
// farmer or an admin may read the trail.
func (s *Service) ListForListing(ctx context.Context, listingID, callerID uuid.UUID, callerRole string) ([]domain.ListingEvent, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("listing %s: %w", listingID, auctionerrors.ErrNotFound)
		}
		return nil, err
	}
	if callerRole != constants.Admin && listing.FarmerID != callerID {
		return nil, fmt.Errorf("listing events: %w", auctionerrors.ErrAuthorization)
	}
	var events []domain.ListingEvent
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
