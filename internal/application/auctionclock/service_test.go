package auctionclock

import (
	"context"
	"testing"
	"time"

	"agribid-backend/internal/domain"
	"agribid-backend/internal/pkg/keylock"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupClockTest(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Listing{}, &domain.Bid{}, &domain.ListingEvent{}))
	return &Service{DB: db, Locks: keylock.New(time.Second)}, db
}

func seedListingAt(t *testing.T, db *gorm.DB, status string, closesAt time.Time) *domain.Listing {
	listing := &domain.Listing{
		FarmerID:   uuid.New(),
		CropName:   "Turmeric",
		Quantity:   200,
		Unit:       "kg",
		BasePrice:  decimal.NewFromInt(80),
		CurrentBid: decimal.NewFromInt(80),
		Location:   "Erode",
		ClosesAt:   closesAt,
		Status:     status,
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

func TestTimeRemaining_ClampsToZero(t *testing.T) {
	s, _ := setupClockTest(t)
	base := time.Now()
	s.Now = func() time.Time { return base }

	open := &domain.Listing{ClosesAt: base.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, s.TimeRemaining(open))

	closed := &domain.Listing{ClosesAt: base.Add(-time.Hour)}
	assert.Equal(t, time.Duration(0), s.TimeRemaining(closed))
}

func TestExpireIfDue(t *testing.T) {
	s, db := setupClockTest(t)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	due := seedListingAt(t, db, domain.ListingActive, past)
	notDue := seedListingAt(t, db, domain.ListingActive, future)
	sold := seedListingAt(t, db, domain.ListingSold, past)

	require.NoError(t, s.ExpireIfDue(context.Background(), due.ListingID.String()))
	require.NoError(t, s.ExpireIfDue(context.Background(), notDue.ListingID.String()))
	require.NoError(t, s.ExpireIfDue(context.Background(), sold.ListingID.String()))

	var fresh domain.Listing
	require.NoError(t, db.Where("listing_id = ?", due.ListingID).First(&fresh).Error)
	assert.Equal(t, domain.ListingExpired, fresh.Status)

	require.NoError(t, db.Where("listing_id = ?", notDue.ListingID).First(&fresh).Error)
	assert.Equal(t, domain.ListingActive, fresh.Status)

	require.NoError(t, db.Where("listing_id = ?", sold.ListingID).First(&fresh).Error)
	assert.Equal(t, domain.ListingSold, fresh.Status)

	// Unknown listing is a silent no-op.
	require.NoError(t, s.ExpireIfDue(context.Background(), uuid.New().String()))
}

func TestExpireIfDue_Idempotent(t *testing.T) {
	s, db := setupClockTest(t)
	listing := seedListingAt(t, db, domain.ListingActive, time.Now().Add(-time.Hour))

	require.NoError(t, s.ExpireIfDue(context.Background(), listing.ListingID.String()))
	require.NoError(t, s.ExpireIfDue(context.Background(), listing.ListingID.String()))

	// Exactly one expiry event despite the repeated call.
	var count int64
	require.NoError(t, db.Model(&domain.ListingEvent{}).
		Where("listing_id = ? AND event_type = ?", listing.ListingID, domain.EventExpired).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSweepOnce(t *testing.T) {
	s, db := setupClockTest(t)
	past := time.Now().Add(-time.Minute)

	a := seedListingAt(t, db, domain.ListingActive, past)
	b := seedListingAt(t, db, domain.ListingActive, past)
	seedListingAt(t, db, domain.ListingActive, time.Now().Add(time.Hour))
	seedListingAt(t, db, domain.ListingFlagged, past)

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []uuid.UUID{a.ListingID, b.ListingID} {
		var fresh domain.Listing
		require.NoError(t, db.Where("listing_id = ?", id).First(&fresh).Error)
		assert.Equal(t, domain.ListingExpired, fresh.Status)
	}

	// Second sweep finds nothing left to do.
	n, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepOnce_SkipsLockedListing(t *testing.T) {
	s, db := setupClockTest(t)
	listing := seedListingAt(t, db, domain.ListingActive, time.Now().Add(-time.Minute))

	// Simulate an in-flight bid holding the listing's lock.
	id := listing.ListingID.String()
	require.True(t, s.Locks.TryAcquire(id))

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var fresh domain.Listing
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&fresh).Error)
	assert.Equal(t, domain.ListingActive, fresh.Status)

	s.Locks.Release(id)

	// Next sweep picks it up.
	n, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
