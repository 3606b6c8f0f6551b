package bids

import (
	"encoding/json"

	bidsvc "agribid-backend/internal/application/bids"
	"agribid-backend/internal/middleware"
	"agribid-backend/internal/pkg/auctionerrors"
	"agribid-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handlers holds dependencies for bid endpoints.
type Handlers struct {
	Service *bidsvc.Service
}

// PlaceBidRequest is the POST /api/v1/listings/:listing_id/bids body. Amount
// is decoded as a JSON number literal, not a float64, so values like 70.10
// reach the service with their exact decimal representation.
type PlaceBidRequest struct {
	Amount json.Number `json:"amount"`
}

// PlaceBid POST /api/v1/listings/:listing_id/bids — buyer submits an offer.
func (h *Handlers) PlaceBid(c *fiber.Ctx) error {
	bidderID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", fiber.StatusBadRequest, nil)
	}
	var req PlaceBidRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		return response.Error(c, "amount must be a number", fiber.StatusBadRequest, nil)
	}
	if !amount.IsPositive() {
		return response.Error(c, "amount must be greater than zero", fiber.StatusBadRequest, nil)
	}

	bid, err := h.Service.PlaceBid(c.Context(), listingID, bidderID, amount)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.SuccessCreated(c, "Bid placed successfully", bid, nil)
}

// AcceptBid POST /api/v1/bids/:bid_id/accept — farmer closes the sale.
func (h *Handlers) AcceptBid(c *fiber.Ctx) error {
	farmerID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	bidID, err := uuid.Parse(c.Params("bid_id"))
	if err != nil {
		return response.Error(c, "Invalid bid_id format", fiber.StatusBadRequest, nil)
	}
	bid, err := h.Service.AcceptBid(c.Context(), bidID, farmerID)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Bid accepted", bid, nil)
}

// RejectBid POST /api/v1/bids/:bid_id/reject — farmer declines one offer.
func (h *Handlers) RejectBid(c *fiber.Ctx) error {
	farmerID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	bidID, err := uuid.Parse(c.Params("bid_id"))
	if err != nil {
		return response.Error(c, "Invalid bid_id format", fiber.StatusBadRequest, nil)
	}
	bid, err := h.Service.RejectBid(c.Context(), bidID, farmerID)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Bid rejected", bid, nil)
}

// ListForListing GET /api/v1/listings/:listing_id/bids — a listing's bid set
// (owner or admin).
func (h *Handlers) ListForListing(c *fiber.Ctx) error {
	callerID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	listingID, err := uuid.Parse(c.Params("listing_id"))
	if err != nil {
		return response.Error(c, "Invalid listing_id format", fiber.StatusBadRequest, nil)
	}
	out, err := h.Service.ListForListing(c.Context(), listingID, callerID, middleware.GetUserRole(c))
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Listing bids fetched", out, fiber.Map{"count": len(out)})
}

// MyBids GET /api/v1/bids/my-bids — the buyer's own bids with their listings.
func (h *Handlers) MyBids(c *fiber.Ctx) error {
	bidderID, err := sessionUserID(c)
	if err != nil {
		return response.Unauthorized(c, "Unauthorized")
	}
	out, err := h.Service.ListForBidder(c.Context(), bidderID)
	if err != nil {
		return response.Error(c, err.Error(), auctionerrors.HTTPStatus(err), nil)
	}
	return response.Success(c, "Bids fetched successfully", out, fiber.Map{"count": len(out)})
}

func sessionUserID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(middleware.GetUserID(c))
}
