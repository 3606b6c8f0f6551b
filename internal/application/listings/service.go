package listings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agribid-backend/internal/application/auctionclock"
	"agribid-backend/internal/application/listingevents"
	"agribid-backend/internal/domain"
	"agribid-backend/internal/pkg/auctionerrors"
	"agribid-backend/internal/pkg/keylock"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service owns the crop listing lifecycle. Status mutations (flag, unflag,
// remove) run under the listing's lock; reads lazily expire past-due listings
// through the auction clock.
type Service struct {
	DB    *gorm.DB
	Locks *keylock.Registry
	Clock *auctionclock.Service
}

type CreateListingInput struct {
	FarmerID    uuid.UUID
	CropName    string
	Quantity    float64
	Unit        string
	BasePrice   decimal.Decimal
	Location    string
	Description string
	HarvestDate *time.Time
	ClosesAt    time.Time
}

// CreateListing creates an active listing for a farmer. CurrentBid starts at
// the base price until the first bid arrives.
func (s *Service) CreateListing(ctx context.Context, in CreateListingInput) (*domain.Listing, error) {
	if strings.TrimSpace(in.CropName) == "" {
		return nil, fmt.Errorf("crop_name is required: %w", auctionerrors.ErrValidation)
	}
	if strings.TrimSpace(in.Location) == "" {
		return nil, fmt.Errorf("location is required: %w", auctionerrors.ErrValidation)
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be greater than zero: %w", auctionerrors.ErrValidation)
	}
	if !domain.IsValidUnit(in.Unit) {
		return nil, fmt.Errorf("unit must be one of %v: %w", domain.ValidUnits, auctionerrors.ErrValidation)
	}
	if !in.BasePrice.IsPositive() {
		return nil, fmt.Errorf("base_price must be greater than zero: %w", auctionerrors.ErrValidation)
	}
	if !in.ClosesAt.After(time.Now()) {
		return nil, fmt.Errorf("closes_at must be in the future: %w", auctionerrors.ErrValidation)
	}

	listing := &domain.Listing{
		FarmerID:    in.FarmerID,
		CropName:    strings.TrimSpace(in.CropName),
		Quantity:    in.Quantity,
		Unit:        in.Unit,
		BasePrice:   in.BasePrice,
		CurrentBid:  in.BasePrice,
		Location:    strings.TrimSpace(in.Location),
		Description: in.Description,
		HarvestDate: in.HarvestDate,
		ClosesAt:    in.ClosesAt,
		Status:      domain.ListingActive,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(listing).Error; err != nil {
			return err
		}
		return listingevents.Record(tx, listing.ListingID, domain.EventCreated, &in.FarmerID, map[string]interface{}{
			"crop_name":  listing.CropName,
			"base_price": listing.BasePrice,
			"closes_at":  listing.ClosesAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	return listing, nil
}

// Filter narrows GetListings. Zero values mean "no constraint".
type Filter struct {
	Status   string
	Search   string
	FarmerID uuid.UUID
}

// GetListings returns listings newest first. Past-due active listings are
// expired on access so callers never see a stale "active" status.
func (s *Service) GetListings(ctx context.Context, f Filter) ([]domain.Listing, error) {
	if f.Status != "" {
		switch f.Status {
		case domain.ListingActive, domain.ListingSold, domain.ListingExpired, domain.ListingFlagged:
		default:
			return nil, fmt.Errorf("unknown status %q: %w", f.Status, auctionerrors.ErrValidation)
		}
	}

	s.lazyExpire(ctx)

	q := s.DB.WithContext(ctx).Model(&domain.Listing{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.FarmerID != uuid.Nil {
		q = q.Where("farmer_id = ?", f.FarmerID)
	}
	if f.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(f.Search)) + "%"
		q = q.Where("LOWER(crop_name) LIKE ? OR LOWER(location) LIKE ?", pattern, pattern)
	}

	var listings []domain.Listing
	if err := q.Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

// GetListingByID returns one listing, expiring it first if its window elapsed.
func (s *Service) GetListingByID(ctx context.Context, listingID uuid.UUID) (*domain.Listing, error) {
	if err := s.Clock.ExpireIfDue(ctx, listingID.String()); err != nil {
		return nil, err
	}
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("listing %s: %w", listingID, auctionerrors.ErrNotFound)
		}
		return nil, err
	}
	return &listing, nil
}

// CurrentBid returns the highest non-rejected bid amount, or the base price
// when no such bid exists.
func (s *Service) CurrentBid(ctx context.Context, listingID uuid.UUID) (decimal.Decimal, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, fmt.Errorf("listing %s: %w", listingID, auctionerrors.ErrNotFound)
		}
		return decimal.Zero, err
	}
	var bids []domain.Bid
	if err := s.DB.WithContext(ctx).
		Where("listing_id = ? AND status <> ?", listingID, domain.BidRejected).
		Find(&bids).Error; err != nil {
		return decimal.Zero, err
	}
	highest := listing.BasePrice
	found := false
	for i := range bids {
		if !found || bids[i].Amount.GreaterThan(highest) {
			highest = bids[i].Amount
			found = true
		}
	}
	return highest, nil
}

// Flag marks a listing for moderation, blocking further bidding. Idempotent:
// flagging an already-flagged listing is a no-op success. Closed listings
// cannot be flagged.
func (s *Service) Flag(ctx context.Context, listingID, adminID uuid.UUID, reason string) (*domain.Listing, error) {
	return s.moderate(ctx, listingID, func(tx *gorm.DB, listing *domain.Listing) error {
		if listing.Status == domain.ListingFlagged {
			return nil
		}
		if !domain.ListingCanTransition(listing.Status, domain.ListingFlagged) {
			return fmt.Errorf("cannot flag a %s listing: %w", listing.Status, auctionerrors.ErrInvalidState)
		}
		listing.Status = domain.ListingFlagged
		if err := tx.Model(listing).Update("status", domain.ListingFlagged).Error; err != nil {
			return err
		}
		return listingevents.Record(tx, listing.ListingID, domain.EventFlagged, &adminID, map[string]interface{}{
			"reason": reason,
		})
	})
}

// Unflag clears moderation and reopens bidding. Only valid from flagged.
func (s *Service) Unflag(ctx context.Context, listingID, adminID uuid.UUID) (*domain.Listing, error) {
	return s.moderate(ctx, listingID, func(tx *gorm.DB, listing *domain.Listing) error {
		if !domain.ListingCanTransition(listing.Status, domain.ListingActive) {
			return fmt.Errorf("cannot unflag a %s listing: %w", listing.Status, auctionerrors.ErrInvalidState)
		}
		listing.Status = domain.ListingActive
		if err := tx.Model(listing).Update("status", domain.ListingActive).Error; err != nil {
			return err
		}
		return listingevents.Record(tx, listing.ListingID, domain.EventUnflagged, &adminID, nil)
	})
}

// Remove archives a listing (soft delete). Removal is explicit admin
// moderation and works from any status; records stay queryable via Unscoped.
func (s *Service) Remove(ctx context.Context, listingID, adminID uuid.UUID) error {
	_, err := s.moderate(ctx, listingID, func(tx *gorm.DB, listing *domain.Listing) error {
		if err := listingevents.Record(tx, listing.ListingID, domain.EventRemoved, &adminID, map[string]interface{}{
			"status_at_removal": listing.Status,
		}); err != nil {
			return err
		}
		return tx.Delete(listing).Error
	})
	return err
}

// moderate runs an admin status mutation under the listing's lock.
func (s *Service) moderate(ctx context.Context, listingID uuid.UUID, fn func(tx *gorm.DB, listing *domain.Listing) error) (*domain.Listing, error) {
	key := listingID.String()
	if err := s.Locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer s.Locks.Release(key)

	var listing domain.Listing
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("listing %s: %w", listingID, auctionerrors.ErrNotFound)
			}
			return err
		}
		return fn(tx, &listing)
	})
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// lazyExpire is the on-access sweep; failures only log, reads proceed.
func (s *Service) lazyExpire(ctx context.Context) {
	if _, err := s.Clock.SweepOnce(ctx); err != nil {
		log.Error().Err(err).Msg("Lazy expiry sweep failed")
	}
}
