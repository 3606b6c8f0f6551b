package listings

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clocksvc "agribid-backend/internal/application/auctionclock"
	eventsvc "agribid-backend/internal/application/listingevents"
	listsvc "agribid-backend/internal/application/listings"
	"agribid-backend/internal/domain"
	"agribid-backend/internal/pkg/keylock"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupListingsApp(t *testing.T) (*fiber.App, *gorm.DB, uuid.UUID) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Listing{}, &domain.Bid{}, &domain.ListingEvent{}))

	locks := keylock.New(time.Second)
	clock := &clocksvc.Service{DB: db, Locks: locks}
	h := &Handlers{
		Service: &listsvc.Service{DB: db, Locks: locks, Clock: clock},
		Events:  &eventsvc.Service{DB: db},
		Clock:   clock,
	}

	userID := uuid.New()
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id": userID.String(),
			"role":    "farmer",
		})
		return c.Next()
	})
	app.Post("/api/v1/listings", h.CreateListing)
	app.Get("/api/v1/listings", h.GetListings)
	app.Get("/api/v1/listings/:listing_id", h.GetListingByID)
	app.Get("/api/v1/listings/:listing_id/events", h.ListEvents)
	app.Post("/api/v1/listings/:listing_id/flag", h.Flag)
	app.Post("/api/v1/listings/:listing_id/unflag", h.Unflag)
	app.Delete("/api/v1/listings/:listing_id", h.Remove)
	return app, db, userID
}

func jsonReq(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createReqBody() map[string]interface{} {
	return map[string]interface{}{
		"crop_name":  "Sona Masoori Rice",
		"quantity":   750.0,
		"unit":       "kg",
		"base_price": 45.5,
		"location":   "Nellore",
		"closes_at":  time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	}
}

func TestCreateListingHandler(t *testing.T) {
	app, db, userID := setupListingsApp(t)

	resp, err := app.Test(jsonReq("POST", "/api/v1/listings", createReqBody()))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])

	var listing domain.Listing
	require.NoError(t, db.Where("farmer_id = ?", userID).First(&listing).Error)
	assert.Equal(t, "Sona Masoori Rice", listing.CropName)
	assert.Equal(t, domain.ListingActive, listing.Status)
}

func TestCreateListingHandler_BadTimestamp(t *testing.T) {
	app, _, _ := setupListingsApp(t)

	body := createReqBody()
	body["closes_at"] = "tomorrow"
	resp, err := app.Test(jsonReq("POST", "/api/v1/listings", body))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateListingHandler_ValidationError(t *testing.T) {
	app, _, _ := setupListingsApp(t)

	body := createReqBody()
	body["base_price"] = 0
	resp, err := app.Test(jsonReq("POST", "/api/v1/listings", body))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetListingsHandler(t *testing.T) {
	app, _, _ := setupListingsApp(t)

	resp, err := app.Test(jsonReq("POST", "/api/v1/listings", createReqBody()))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/listings?status=active", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	metadata := body["metadata"].(map[string]interface{})
	assert.EqualValues(t, 1, metadata["count"])

	// mine=true scopes to the session farmer.
	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/listings?mine=true", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.EqualValues(t, 1, body["metadata"].(map[string]interface{})["count"])
}

func TestGetListingByIDHandler(t *testing.T) {
	app, db, userID := setupListingsApp(t)

	resp, err := app.Test(jsonReq("POST", "/api/v1/listings", createReqBody()))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var listing domain.Listing
	require.NoError(t, db.Where("farmer_id = ?", userID).First(&listing).Error)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/listings/"+listing.ListingID.String(), nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	metadata := body["metadata"].(map[string]interface{})
	assert.Greater(t, metadata["time_remaining_seconds"].(float64), float64(0))

	// Bad id format and unknown id.
	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/listings/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/listings/"+uuid.NewString(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestFlagUnflagRemoveHandlers(t *testing.T) {
	app, db, userID := setupListingsApp(t)

	resp, err := app.Test(jsonReq("POST", "/api/v1/listings", createReqBody()))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var listing domain.Listing
	require.NoError(t, db.Where("farmer_id = ?", userID).First(&listing).Error)
	id := listing.ListingID.String()

	resp, err = app.Test(jsonReq("POST", "/api/v1/listings/"+id+"/flag", map[string]string{"reason": "price manipulation"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(jsonReq("POST", "/api/v1/listings/"+id+"/unflag", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("DELETE", "/api/v1/listings/"+id, nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/listings/"+id, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestListEventsHandler(t *testing.T) {
	app, db, userID := setupListingsApp(t)

	resp, err := app.Test(jsonReq("POST", "/api/v1/listings", createReqBody()))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var listing domain.Listing
	require.NoError(t, db.Where("farmer_id = ?", userID).First(&listing).Error)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/listings/"+listing.ListingID.String()+"/events", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.EqualValues(t, 1, body["metadata"].(map[string]interface{})["count"])
}
