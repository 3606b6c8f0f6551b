package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ListingActive  = "active"
	ListingSold    = "sold"
	ListingExpired = "expired"
	ListingFlagged = "flagged"
)

// ValidUnits are the quantity units a farmer may list in.
var ValidUnits = []string{"kg", "ton", "bag", "piece"}

func IsValidUnit(unit string) bool {
	for _, u := range ValidUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// listingNext encodes the listing state machine. sold and expired are terminal;
// flagged can be cleared back to active by an admin.
var listingNext = map[string]map[string]bool{
	ListingActive:  {ListingSold: true, ListingExpired: true, ListingFlagged: true},
	ListingFlagged: {ListingActive: true},
	ListingSold:    {},
	ListingExpired: {},
}

// ListingCanTransition reports whether a listing may move from one status to another.
func ListingCanTransition(from, to string) bool {
	return listingNext[from][to]
}

// Listing is a farmer's crop lot offered for bidding. CurrentBid and BidsCount
// are denormalized from the bid set and maintained under the listing's lock.
type Listing struct {
	ListingID   uuid.UUID       `gorm:"column:listing_id;type:uuid;primaryKey" json:"listing_id"`
	FarmerID    uuid.UUID       `gorm:"column:farmer_id;type:uuid;not null;index" json:"farmer_id"`
	CropName    string          `gorm:"column:crop_name;not null" json:"crop_name"`
	Quantity    float64         `gorm:"column:quantity;type:decimal(18,2);not null" json:"quantity"`
	Unit        string          `gorm:"column:unit;type:varchar(10);not null" json:"unit"`
	BasePrice   decimal.Decimal `gorm:"column:base_price;type:decimal(18,2);not null" json:"base_price"`
	CurrentBid  decimal.Decimal `gorm:"column:current_bid;type:decimal(18,2);not null" json:"current_bid"`
	BidsCount   int             `gorm:"column:bids_count;not null;default:0" json:"bids_count"`
	Location    string          `gorm:"column:location;not null" json:"location"`
	Description string          `gorm:"column:description" json:"description"`
	HarvestDate *time.Time      `gorm:"column:harvest_date" json:"harvest_date"`
	ClosesAt    time.Time       `gorm:"column:closes_at;not null" json:"closes_at"`
	Status      string          `gorm:"column:status;type:varchar(20);not null;default:'active'" json:"status"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Listing) TableName() string {
	return "Listings"
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ListingID == uuid.Nil {
		l.ListingID = uuid.New()
	}
	return nil
}

// PastDue reports whether the auction window has elapsed.
func (l *Listing) PastDue(now time.Time) bool {
	return !l.ClosesAt.After(now)
}
