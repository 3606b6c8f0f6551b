package auctionclock

import (
	"context"
	"time"

	"agribid-backend/internal/application/listingevents"
	"agribid-backend/internal/domain"
	"agribid-backend/internal/pkg/keylock"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service drives time-based listing transitions. Every transition runs under
// the listing's lock so a sweep can never race a concurrent bid or accept.
type Service struct {
	DB    *gorm.DB
	Locks *keylock.Registry

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// TimeRemaining returns closes_at minus now, clamped to zero once elapsed.
func (s *Service) TimeRemaining(l *domain.Listing) time.Duration {
	rem := l.ClosesAt.Sub(s.now())
	if rem < 0 {
		return 0
	}
	return rem
}

// ExpireIfDue transitions an active, past-due listing to expired. No-op for
// listings that are not active (sold, flagged, expired) or not yet due, so
// repeated calls are safe.
func (s *Service) ExpireIfDue(ctx context.Context, listingID string) error {
	if err := s.Locks.Acquire(ctx, listingID); err != nil {
		return err
	}
	defer s.Locks.Release(listingID)
	return s.expireLocked(ctx, listingID)
}

// expireLocked does the actual transition; caller holds the listing lock.
func (s *Service) expireLocked(ctx context.Context, listingID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing domain.Listing
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if listing.Status != domain.ListingActive || !listing.PastDue(s.now()) {
			return nil
		}
		if err := tx.Model(&listing).Update("status", domain.ListingExpired).Error; err != nil {
			return err
		}
		return listingevents.Record(tx, listing.ListingID, domain.EventExpired, nil, map[string]interface{}{
			"closes_at": listing.ClosesAt,
		})
	})
}

// SweepOnce expires every active listing whose close time has passed. A listing
// whose lock is held by an in-flight bid is skipped, not waited on; the next
// sweep picks it up. Returns how many listings were visited.
func (s *Service) SweepOnce(ctx context.Context) (int, error) {
	var due []domain.Listing
	err := s.DB.WithContext(ctx).
		Where("status = ? AND closes_at <= ?", domain.ListingActive, s.now()).
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range due {
		id := due[i].ListingID.String()
		if !s.Locks.TryAcquire(id) {
			continue
		}
		err := s.expireLocked(ctx, id)
		s.Locks.Release(id)
		if err != nil {
			log.Error().Err(err).Str("listing_id", id).Msg("Sweep: expire failed")
			continue
		}
		swept++
	}
	return swept, nil
}

// Run sweeps on the given interval until the context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Info().Dur("interval", interval).Msg("Auction clock started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Auction clock stopped")
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("expired", n).Msg("Sweep expired listings")
			}
		}
	}
}
