package listings

import (
	"time"

	clocksvc "agribid-backend/internal/application/auctionclock"
	eventsvc "agribid-backend/internal/application/listingevents"
	listsvc "agribid-backend/internal/application/listings"
	"agribid-backend/internal/middleware"
	"agribid-backend/internal/pkg/auctionerrors"
	"agribid-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handlers holds dependencies for listing endpoints.
type Handlers struct {
	Service *listsvc.Service
	Events  *eventsvc.Service
	Clock   *clocksvc.Service
}

// CreateListingRequest is the POST /api/v1/listings body.
type CreateListingRequest struct {
	CropName    string  `json:"crop_name"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	BasePrice   float64 `json:"base_price"`
	Location    string  `json:"location"`
	Description string  `json:"description"`
	HarvestDate string  `json:"harvest_date"`
	ClosesAt    string  `json:"closes_at"`
}

// CreateListing POST /api/v1/listings — farmer publishes a crop lot.
func (h *Handlers) CreateListing(c *fiber.Ctx) error {
	farmerID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	var req CreateListingRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	closesAt, err := time.Parse(time.RFC3339, req.ClosesAt)
	if err != nil {
		return response.Error(c, "closes_at must be an RFC3339 timestamp", fiber.StatusBadRequest, nil)
	}
	var harvestDate *time.Time
	if req.HarvestDate != "" {
		t, err := time.Parse(time.RFC3339, req.HarvestDate)
		if err != nil {
			return response.Error(c, "harvest_date must be an RFC3339 timestamp", fiber.StatusBadRequest, nil)
		}
		harvestDate = &t
	}

	listing, err := h.Service.CreateListing(c.Context(), listsvc.CreateListingInput{
		FarmerID:    farmerID,
		CropName:    req.CropName,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		BasePrice:   decimal.NewFromFloat(req.BasePrice),
		Location:    req.Location,
		Description: req.Description,
		HarvestDate: harvestDate,
		ClosesAt:    closesAt,
	})
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.SuccessCreated(c, "Listing created successfully", listing, nil)
}

// GetListings GET /api/v1/listings?status=&search=&mine= — browse listings.
func (h *Handlers) GetListings(c *fiber.Ctx) error {
	f := listsvc.Filter{
		Status: c.Query("status"),
		Search: c.Query("search"),
	}
	if c.Query("mine") == "true" {
		id, err := sessionUserID(c)
		if err != nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		f.FarmerID = id
	}
	listings, err := h.Service.GetListings(c.Context(), f)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Listings fetched successfully", listings, fiber.Map{"count": len(listings)})
}

// GetListingByID GET /api/v1/listings/:listing_id — one listing plus its
// remaining auction time.
func (h *Handlers) GetListingByID(c *fiber.Ctx) error {
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", fiber.StatusBadRequest, nil)
	}
	listing, err := h.Service.GetListingByID(c.Context(), listingID)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Listing fetched successfully", listing, fiber.Map{
		"time_remaining_seconds": int64(h.Clock.TimeRemaining(listing).Seconds()),
	})
}

// FlagRequest is the POST .../flag body.
type FlagRequest struct {
	Reason string `json:"reason"`
}

// Flag POST /api/v1/listings/:listing_id/flag — admin moderation.
func (h *Handlers) Flag(c *fiber.Ctx) error {
	adminID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", fiber.StatusBadRequest, nil)
	}
	var req FlagRequest
	_ = c.BodyParser(&req)

	listing, err := h.Service.Flag(c.Context(), listingID, adminID, req.Reason)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Listing flagged", listing, nil)
}

// Unflag POST /api/v1/listings/:listing_id/unflag — admin clears a flag.
func (h *Handlers) Unflag(c *fiber.Ctx) error {
	adminID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", fiber.StatusBadRequest, nil)
	}
	listing, err := h.Service.Unflag(c.Context(), listingID, adminID)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Listing unflagged", listing, nil)
}

// Remove DELETE /api/v1/listings/:listing_id — admin archives a listing.
func (h *Handlers) Remove(c *fiber.Ctx) error {
	adminID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.Remove(c.Context(), listingID, adminID); err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Listing removed", nil, nil)
}

// ListEvents GET /api/v1/listings/:listing_id/events — audit trail (owner/admin).
func (h *Handlers) ListEvents(c *fiber.Ctx) error {
	callerID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", fiber.StatusBadRequest, nil)
	}
	events, err := h.Events.ListForListing(c.Context(), listingID, callerID, middleware.GetUserRole(c))
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Listing events fetched", events, fiber.Map{"count": len(events)})
}

func sessionUserID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(middleware.GetUserID(c))
}
