package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	BidWinning  = "winning"
	BidOutbid   = "outbid"
	BidAccepted = "accepted"
	BidRejected = "rejected"
)

// bidNext encodes the bid state machine. A freshly placed bid is winning; it is
// demoted to outbid when a higher bid arrives. The farmer may accept any open
// bid, not only the current highest. accepted and rejected are terminal.
var bidNext = map[string]map[string]bool{
	BidWinning:  {BidOutbid: true, BidAccepted: true, BidRejected: true},
	BidOutbid:   {BidWinning: true, BidAccepted: true, BidRejected: true},
	BidAccepted: {},
	BidRejected: {},
}

// BidCanTransition reports whether a bid may move from one status to another.
func BidCanTransition(from, to string) bool {
	return bidNext[from][to]
}

// Rejected is the only status excluded when computing the current highest bid.
func (b *Bid) Rejected() bool {
	return b.Status == BidRejected
}

// Bid is a buyer's offer against a listing. PlacedAt is CreatedAt; amounts are
// strictly increasing across the listing's non-rejected bids.
type Bid struct {
	BidID     uuid.UUID       `gorm:"column:bid_id;type:uuid;primaryKey" json:"bid_id"`
	ListingID uuid.UUID       `gorm:"column:listing_id;type:uuid;not null;index" json:"listing_id"`
	BidderID  uuid.UUID       `gorm:"column:bidder_id;type:uuid;not null;index" json:"bidder_id"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Status    string          `gorm:"column:status;type:varchar(20);not null;default:'winning'" json:"status"`
	CreatedAt time.Time       `json:"placedAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Bid) TableName() string {
	return "Bids"
}

func (b *Bid) BeforeCreate(tx *gorm.DB) error {
	if b.BidID == uuid.Nil {
		b.BidID = uuid.New()
	}
	return nil
}
