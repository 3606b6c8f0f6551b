package listings

import (
	"context"
	"errors"
	"testing"
	"time"

	"agribid-backend/internal/application/auctionclock"
	"agribid-backend/internal/domain"
	"agribid-backend/internal/pkg/auctionerrors"
	"agribid-backend/internal/pkg/keylock"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupListingsTest(t *testing.T) (*Service, *gorm.DB, *auctionclock.Service) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Listing{}, &domain.Bid{}, &domain.ListingEvent{}))

	locks := keylock.New(time.Second)
	clock := &auctionclock.Service{DB: db, Locks: locks}
	return &Service{DB: db, Locks: locks, Clock: clock}, db, clock
}

func validInput(farmerID uuid.UUID) CreateListingInput {
	return CreateListingInput{
		FarmerID:  farmerID,
		CropName:  "Alphonso Mango",
		Quantity:  500,
		Unit:      "kg",
		BasePrice: decimal.NewFromInt(120),
		Location:  "Ratnagiri",
		ClosesAt:  time.Now().Add(48 * time.Hour),
	}
}

func TestCreateListing_Valid(t *testing.T) {
	s, db, _ := setupListingsTest(t)
	farmerID := uuid.New()

	listing, err := s.CreateListing(context.Background(), validInput(farmerID))
	require.NoError(t, err)
	assert.Equal(t, domain.ListingActive, listing.Status)
	assert.True(t, listing.CurrentBid.Equal(listing.BasePrice))
	assert.NotEqual(t, uuid.Nil, listing.ListingID)

	var event domain.ListingEvent
	require.NoError(t, db.Where("listing_id = ?", listing.ListingID).First(&event).Error)
	assert.Equal(t, domain.EventCreated, event.EventType)
}

func TestCreateListing_Validation(t *testing.T) {
	s, _, _ := setupListingsTest(t)
	farmerID := uuid.New()

	cases := []struct {
		name   string
		mutate func(*CreateListingInput)
	}{
		{"empty crop name", func(in *CreateListingInput) { in.CropName = "  " }},
		{"empty location", func(in *CreateListingInput) { in.Location = "" }},
		{"zero quantity", func(in *CreateListingInput) { in.Quantity = 0 }},
		{"negative quantity", func(in *CreateListingInput) { in.Quantity = -3 }},
		{"bad unit", func(in *CreateListingInput) { in.Unit = "litre" }},
		{"zero base price", func(in *CreateListingInput) { in.BasePrice = decimal.Zero }},
		{"negative base price", func(in *CreateListingInput) { in.BasePrice = decimal.NewFromInt(-5) }},
		{"closes in the past", func(in *CreateListingInput) { in.ClosesAt = time.Now().Add(-time.Hour) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput(farmerID)
			tc.mutate(&in)
			_, err := s.CreateListing(context.Background(), in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, auctionerrors.ErrValidation))
		})
	}
}

func TestGetListings_Filters(t *testing.T) {
	s, db, _ := setupListingsTest(t)
	farmerA := uuid.New()
	farmerB := uuid.New()

	mango, err := s.CreateListing(context.Background(), validInput(farmerA))
	require.NoError(t, err)

	wheat := validInput(farmerB)
	wheat.CropName = "Durum Wheat"
	wheat.Location = "Madhya Pradesh"
	_, err = s.CreateListing(context.Background(), wheat)
	require.NoError(t, err)

	require.NoError(t, db.Model(mango).Update("status", domain.ListingSold).Error)

	all, err := s.GetListings(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := s.GetListings(context.Background(), Filter{Status: domain.ListingActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Durum Wheat", active[0].CropName)

	mine, err := s.GetListings(context.Background(), Filter{FarmerID: farmerA})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Alphonso Mango", mine[0].CropName)

	_, err = s.GetListings(context.Background(), Filter{Status: "archived"})
	assert.True(t, errors.Is(err, auctionerrors.ErrValidation))
}

func TestGetListings_SearchIsCaseInsensitive(t *testing.T) {
	s, _, _ := setupListingsTest(t)

	_, err := s.CreateListing(context.Background(), validInput(uuid.New()))
	require.NoError(t, err)

	byName, err := s.GetListings(context.Background(), Filter{Search: "alphonso"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	byLocation, err := s.GetListings(context.Background(), Filter{Search: "RATNAGIRI"})
	require.NoError(t, err)
	assert.Len(t, byLocation, 1)

	none, err := s.GetListings(context.Background(), Filter{Search: "turmeric"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetListings_LazilyExpiresPastDue(t *testing.T) {
	s, _, clock := setupListingsTest(t)

	listing, err := s.CreateListing(context.Background(), validInput(uuid.New()))
	require.NoError(t, err)

	clock.Now = func() time.Time { return listing.ClosesAt.Add(time.Minute) }

	out, err := s.GetListings(context.Background(), Filter{Status: domain.ListingExpired})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, listing.ListingID, out[0].ListingID)
}

func TestGetListingByID(t *testing.T) {
	s, _, clock := setupListingsTest(t)

	listing, err := s.CreateListing(context.Background(), validInput(uuid.New()))
	require.NoError(t, err)

	got, err := s.GetListingByID(context.Background(), listing.ListingID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingActive, got.Status)

	_, err = s.GetListingByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, auctionerrors.ErrNotFound))

	// A past-due listing is expired on read.
	clock.Now = func() time.Time { return listing.ClosesAt.Add(time.Minute) }
	got, err = s.GetListingByID(context.Background(), listing.ListingID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingExpired, got.Status)
}

func TestCurrentBid(t *testing.T) {
	s, db, _ := setupListingsTest(t)

	listing, err := s.CreateListing(context.Background(), validInput(uuid.New()))
	require.NoError(t, err)

	// No bids yet: base price.
	cur, err := s.CurrentBid(context.Background(), listing.ListingID)
	require.NoError(t, err)
	assert.True(t, cur.Equal(decimal.NewFromInt(120)))

	bids := []domain.Bid{
		{ListingID: listing.ListingID, BidderID: uuid.New(), Amount: decimal.NewFromInt(130), Status: domain.BidOutbid},
		{ListingID: listing.ListingID, BidderID: uuid.New(), Amount: decimal.NewFromInt(150), Status: domain.BidWinning},
		{ListingID: listing.ListingID, BidderID: uuid.New(), Amount: decimal.NewFromInt(200), Status: domain.BidRejected},
	}
	for i := range bids {
		require.NoError(t, db.Create(&bids[i]).Error)
	}

	// Rejected bids are excluded from the maximum.
	cur, err = s.CurrentBid(context.Background(), listing.ListingID)
	require.NoError(t, err)
	assert.True(t, cur.Equal(decimal.NewFromInt(150)))
}

func TestFlag_Unflag(t *testing.T) {
	s, db, _ := setupListingsTest(t)
	adminID := uuid.New()

	listing, err := s.CreateListing(context.Background(), validInput(uuid.New()))
	require.NoError(t, err)

	flagged, err := s.Flag(context.Background(), listing.ListingID, adminID, "suspected duplicate")
	require.NoError(t, err)
	assert.Equal(t, domain.ListingFlagged, flagged.Status)

	// Flagging again is a no-op success.
	again, err := s.Flag(context.Background(), listing.ListingID, adminID, "still flagged")
	require.NoError(t, err)
	assert.Equal(t, domain.ListingFlagged, again.Status)

	var eventCount int64
	require.NoError(t, db.Model(&domain.ListingEvent{}).
		Where("listing_id = ? AND event_type = ?", listing.ListingID, domain.EventFlagged).
		Count(&eventCount).Error)
	assert.EqualValues(t, 1, eventCount)

	unflagged, err := s.Unflag(context.Background(), listing.ListingID, adminID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingActive, unflagged.Status)
}

func TestFlag_ClosedListingRejected(t *testing.T) {
	s, db, _ := setupListingsTest(t)

	listing, err := s.CreateListing(context.Background(), validInput(uuid.New()))
	require.NoError(t, err)
	require.NoError(t, db.Model(listing).Update("status", domain.ListingSold).Error)

	_, err = s.Flag(context.Background(), listing.ListingID, uuid.New(), "too late")
	assert.True(t, errors.Is(err, auctionerrors.ErrInvalidState))

	_, err = s.Unflag(context.Background(), listing.ListingID, uuid.New())
	assert.True(t, errors.Is(err, auctionerrors.ErrInvalidState))
}

func TestRemove_SoftDeletes(t *testing.T) {
	s, db, _ := setupListingsTest(t)

	listing, err := s.CreateListing(context.Background(), validInput(uuid.New()))
	require.NoError(t, err)

	require.NoError(t, s.Remove(context.Background(), listing.ListingID, uuid.New()))

	var gone domain.Listing
	err = db.Where("listing_id = ?", listing.ListingID).First(&gone).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Still present for audit via Unscoped.
	var archived domain.Listing
	require.NoError(t, db.Unscoped().Where("listing_id = ?", listing.ListingID).First(&archived).Error)
	assert.True(t, archived.DeletedAt.Valid)

	err = s.Remove(context.Background(), listing.ListingID, uuid.New())
	assert.True(t, errors.Is(err, auctionerrors.ErrNotFound))
}
