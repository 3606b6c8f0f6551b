package bids

import (
	"context"
	"fmt"
	"time"

	"agribid-backend/internal/application/listingevents"
	"agribid-backend/internal/domain"
	"agribid-backend/internal/pkg/auctionerrors"
	"agribid-backend/internal/pkg/constants"
	"agribid-backend/internal/pkg/keylock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service owns the bid lifecycle. Every mutation of a listing's bid set
// (place, accept, reject) acquires that listing's lock and then runs one
// transaction, so read-validate-write is a single atomic step. Concurrent
// equal bids serialize on the lock; the second one revalidates and fails.
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

// PlaceBid validates and records a buyer's bid on a listing. On success the
// new bid is winning, the previous winning bid is demoted to outbid, and the
// listing's denormalized current_bid / bids_count are updated in the same
// transaction. Any validation failure leaves no partial state.
func (s *Service) PlaceBid(ctx context.Context, listingID, bidderID uuid.UUID, amount decimal.Decimal) (*domain.Bid, error) {
	key := listingID.String()
	if err := s.Locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer s.Locks.Release(key)

	var bid *domain.Bid
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing domain.Listing
		if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("listing %s: %w", listingID, auctionerrors.ErrNotFound)
			}
			return err
		}

		// A past-due listing expires inside this critical section, so the
		// bidder sees the terminal state rather than a stale "active".
		if listing.Status == domain.ListingActive && listing.PastDue(s.now()) {
			if err := tx.Model(&listing).Update("status", domain.ListingExpired).Error; err != nil {
				return err
			}
			if err := listingevents.Record(tx, listing.ListingID, domain.EventExpired, nil, map[string]interface{}{
				"closes_at": listing.ClosesAt,
			}); err != nil {
				return err
			}
			return fmt.Errorf("auction has closed: %w", auctionerrors.ErrInvalidState)
		}
		if listing.Status != domain.ListingActive {
			return fmt.Errorf("listing is %s, not open for bidding: %w", listing.Status, auctionerrors.ErrInvalidState)
		}
		if listing.FarmerID == bidderID {
			return fmt.Errorf("place bid: %w", auctionerrors.ErrSelfBid)
		}

		highest, err := highestActiveBid(tx, &listing)
		if err != nil {
			return err
		}
		if !amount.GreaterThan(highest) {
			return fmt.Errorf("%w - current highest is %s", auctionerrors.ErrBidTooLow, highest.StringFixed(2))
		}

		// Demote the previous winning bid before the new one takes over.
		if err := tx.Model(&domain.Bid{}).
			Where("listing_id = ? AND status = ?", listing.ListingID, domain.BidWinning).
			Update("status", domain.BidOutbid).Error; err != nil {
			return err
		}

		bid = &domain.Bid{
			ListingID: listing.ListingID,
			BidderID:  bidderID,
			Amount:    amount,
			Status:    domain.BidWinning,
		}
		if err := tx.Create(bid).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"current_bid": amount,
			"bids_count":  listing.BidsCount + 1,
		}
		if err := tx.Model(&listing).Updates(updates).Error; err != nil {
			return err
		}

		return listingevents.Record(tx, listing.ListingID, domain.EventBidPlaced, &bidderID, map[string]interface{}{
			"bid_id": bid.BidID,
			"amount": amount,
		})
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// AcceptBid closes the auction in the bidder's favor: the bid becomes
// accepted, every sibling bid is rejected, and the listing is sold with
// current_bid set to the accepted amount. Whole-lot, single winner. The farmer
// may accept any non-rejected bid, not only the current highest. Only the
// listing's farmer may accept.
func (s *Service) AcceptBid(ctx context.Context, bidID, farmerID uuid.UUID) (*domain.Bid, error) {
	return s.decide(ctx, bidID, farmerID, func(tx *gorm.DB, bid *domain.Bid, listing *domain.Listing) error {
		if !domain.BidCanTransition(bid.Status, domain.BidAccepted) {
			return fmt.Errorf("bid is already %s: %w", bid.Status, auctionerrors.ErrInvalidState)
		}
		bid.Status = domain.BidAccepted
		if err := tx.Model(bid).Update("status", domain.BidAccepted).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Bid{}).
			Where("listing_id = ? AND bid_id <> ? AND status <> ?", listing.ListingID, bid.BidID, domain.BidRejected).
			Update("status", domain.BidRejected).Error; err != nil {
			return err
		}
		if err := tx.Model(listing).Updates(map[string]interface{}{
			"status":      domain.ListingSold,
			"current_bid": bid.Amount,
		}).Error; err != nil {
			return err
		}
		return listingevents.Record(tx, listing.ListingID, domain.EventBidAccepted, &farmerID, map[string]interface{}{
			"bid_id": bid.BidID,
			"amount": bid.Amount,
		})
	})
}

// RejectBid declines one bid without closing the listing. If the rejected bid
// was winning, the highest remaining non-rejected bid is promoted and the
// listing's current_bid recomputed (base price when none remain).
func (s *Service) RejectBid(ctx context.Context, bidID, farmerID uuid.UUID) (*domain.Bid, error) {
	return s.decide(ctx, bidID, farmerID, func(tx *gorm.DB, bid *domain.Bid, listing *domain.Listing) error {
		if !domain.BidCanTransition(bid.Status, domain.BidRejected) {
			return fmt.Errorf("bid is already %s: %w", bid.Status, auctionerrors.ErrInvalidState)
		}
		wasWinning := bid.Status == domain.BidWinning
		bid.Status = domain.BidRejected
		if err := tx.Model(bid).Update("status", domain.BidRejected).Error; err != nil {
			return err
		}

		if wasWinning {
			runner, err := highestActiveBidRecord(tx, listing.ListingID)
			if err != nil {
				return err
			}
			newCurrent := listing.BasePrice
			if runner != nil {
				if err := tx.Model(runner).Update("status", domain.BidWinning).Error; err != nil {
					return err
				}
				newCurrent = runner.Amount
			}
			if err := tx.Model(listing).Update("current_bid", newCurrent).Error; err != nil {
				return err
			}
		}

		return listingevents.Record(tx, listing.ListingID, domain.EventBidRejected, &farmerID, map[string]interface{}{
			"bid_id": bid.BidID,
			"amount": bid.Amount,
		})
	})
}

// decide runs a farmer's accept/reject under the listing's lock with
// ownership and state checks shared by both.
func (s *Service) decide(ctx context.Context, bidID, farmerID uuid.UUID, fn func(tx *gorm.DB, bid *domain.Bid, listing *domain.Listing) error) (*domain.Bid, error) {
	// Resolve the listing outside the lock; all checks rerun inside it.
	var probe domain.Bid
	if err := s.DB.WithContext(ctx).Where("bid_id = ?", bidID).First(&probe).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("bid %s: %w", bidID, auctionerrors.ErrNotFound)
		}
		return nil, err
	}

	key := probe.ListingID.String()
	if err := s.Locks.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer s.Locks.Release(key)

	var bid domain.Bid
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("bid_id = ?", bidID).First(&bid).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("bid %s: %w", bidID, auctionerrors.ErrNotFound)
			}
			return err
		}
		var listing domain.Listing
		if err := tx.Where("listing_id = ?", bid.ListingID).First(&listing).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("listing %s: %w", bid.ListingID, auctionerrors.ErrNotFound)
			}
			return err
		}
		if listing.FarmerID != farmerID {
			return fmt.Errorf("bid belongs to another farmer's listing: %w", auctionerrors.ErrAuthorization)
		}
		if listing.Status != domain.ListingActive {
			return fmt.Errorf("listing is %s: %w", listing.Status, auctionerrors.ErrInvalidState)
		}
		return fn(tx, &bid, &listing)
	})
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// ListForListing returns a listing's bids newest first. Only the listing's
// farmer or an admin may see the full set.
func (s *Service) ListForListing(ctx context.Context, listingID, callerID uuid.UUID, callerRole string) ([]domain.Bid, error) {
	var listing domain.Listing
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("listing %s: %w", listingID, auctionerrors.ErrNotFound)
		}
		return nil, err
	}
	if callerRole != constants.Admin && listing.FarmerID != callerID {
		return nil, fmt.Errorf("listing bids: %w", auctionerrors.ErrAuthorization)
	}
	var out []domain.Bid
	if err := s.DB.WithContext(ctx).Where("listing_id = ?", listingID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// BidderBidView pairs a buyer's bid with the listing it targets.
// ListingRemoved is set when an admin has since archived the listing.
type BidderBidView struct {
	Bid            domain.Bid     `json:"bid"`
	Listing        domain.Listing `json:"listing"`
	ListingRemoved bool           `json:"listing_removed"`
}

// ListForBidder returns a buyer's bids newest first, each with its listing.
// Admin-removed listings are looked up past the soft delete so the buyer still
// sees what they bid on.
func (s *Service) ListForBidder(ctx context.Context, bidderID uuid.UUID) ([]BidderBidView, error) {
	var myBids []domain.Bid
	if err := s.DB.WithContext(ctx).Where("bidder_id = ?", bidderID).Order("created_at DESC").Find(&myBids).Error; err != nil {
		return nil, err
	}
	if len(myBids) == 0 {
		return []BidderBidView{}, nil
	}

	ids := make([]uuid.UUID, 0, len(myBids))
	for i := range myBids {
		ids = append(ids, myBids[i].ListingID)
	}
	var listings []domain.Listing
	if err := s.DB.WithContext(ctx).Unscoped().Where("listing_id IN ?", ids).Find(&listings).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]domain.Listing, len(listings))
	for i := range listings {
		byID[listings[i].ListingID] = listings[i]
	}

	out := make([]BidderBidView, 0, len(myBids))
	for i := range myBids {
		listing := byID[myBids[i].ListingID]
		out = append(out, BidderBidView{
			Bid:            myBids[i],
			Listing:        listing,
			ListingRemoved: listing.DeletedAt.Valid,
		})
	}
	return out, nil
}

// highestActiveBid computes the current price floor for a new bid: the highest
// non-rejected bid amount, or the base price when none exist. Comparison is
// done in Go so decimal ordering never depends on the column's storage type.
func highestActiveBid(tx *gorm.DB, listing *domain.Listing) (decimal.Decimal, error) {
	rec, err := highestActiveBidRecord(tx, listing.ListingID)
	if err != nil {
		return decimal.Zero, err
	}
	if rec == nil {
		return listing.BasePrice, nil
	}
	return rec.Amount, nil
}

func highestActiveBidRecord(tx *gorm.DB, listingID uuid.UUID) (*domain.Bid, error) {
	var all []domain.Bid
	if err := tx.Where("listing_id = ? AND status <> ?", listingID, domain.BidRejected).Find(&all).Error; err != nil {
		return nil, err
	}
	var best *domain.Bid
	for i := range all {
		if best == nil || all[i].Amount.GreaterThan(best.Amount) {
			best = &all[i]
		}
	}
	return best, nil
}
