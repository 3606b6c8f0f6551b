package router

import (
	authsvc "agribid-backend/internal/application/auth"
	clocksvc "agribid-backend/internal/application/auctionclock"
	bidsvc "agribid-backend/internal/application/bids"
	eventsvc "agribid-backend/internal/application/listingevents"
	listsvc "agribid-backend/internal/application/listings"
	userssvc "agribid-backend/internal/application/users"
	"agribid-backend/internal/config"
	"agribid-backend/internal/infrastructure/database"
	authhandler "agribid-backend/internal/interfaces/handlers/auth"
	bidhandler "agribid-backend/internal/interfaces/handlers/bids"
	healthhandler "agribid-backend/internal/interfaces/handlers/health"
	listhandler "agribid-backend/internal/interfaces/handlers/listings"
	userhandler "agribid-backend/internal/interfaces/handlers/users"
	"agribid-backend/internal/middleware"
	"agribid-backend/internal/pkg/constants"
	"agribid-backend/internal/pkg/keylock"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return nil
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp builds the Fiber app with all global middleware and routes, and
// returns the DB, Redis client, and auction clock so main can run the sweeper.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, *clocksvc.Service, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	// CORS before session
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendURLEndsWith,
		DevPassword:   cfg.DevPassword,
	}))

	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	app.Use(sessionHandler)

	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}

	// Health (no auth)
	healthHandlers := &healthhandler.Handlers{Rdb: rdb, DB: &gormDBPinger{db: db}}
	app.Get("/health/json", healthHandlers.JSON)

	locks := keylock.New(cfg.LockWait)
	clock := &clocksvc.Service{DB: db, Locks: locks}

	// Auth (no auth middleware): signup, login, me, logout
	var userFinder authsvc.UserFinder
	var usersService *userssvc.Service
	if db != nil {
		userFinder = &authsvc.GormUserFinder{DB: db}
		usersService = &userssvc.Service{DB: db, Rdb: rdb}
	}
	authHandlers := &authhandler.Handlers{
		UserFinder: userFinder,
		Users:      usersService,
		Rdb:        rdb,
		Config:     sessionCfg,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/signup", authHandlers.Signup)
	authGroup.Post("/login", authHandlers.Login)
	authGroup.Get("/me", authHandlers.Me)
	authGroup.Delete("/logout", authHandlers.Logout)

	// Protected modules (auth + permission gates before any feature logic)
	if db != nil && rdb != nil {
		eventsService := &eventsvc.Service{DB: db}
		listingsService := &listsvc.Service{DB: db, Locks: locks, Clock: clock}
		bidsService := &bidsvc.Service{DB: db, Locks: locks}

		listingsHandlers := &listhandler.Handlers{Service: listingsService, Events: eventsService, Clock: clock}
		bidsHandlers := &bidhandler.Handlers{Service: bidsService}
		usersHandlers := &userhandler.Handlers{Service: usersService}

		listingsGroup := app.Group("/api/v1/listings", middleware.RequireAuth())
		listingsGroup.Get("/", middleware.AuthorizePermission(constants.ViewListings), listingsHandlers.GetListings)
		listingsGroup.Post("/", middleware.AuthorizePermission(constants.CreateListing), listingsHandlers.CreateListing)
		listingsGroup.Get("/:listing_id", middleware.AuthorizePermission(constants.ViewListings), listingsHandlers.GetListingByID)
		listingsGroup.Get("/:listing_id/events", middleware.AuthorizePermission(constants.ViewListings), listingsHandlers.ListEvents)
		listingsGroup.Post("/:listing_id/bids", middleware.AuthorizePermission(constants.PlaceBid), bidsHandlers.PlaceBid)
		listingsGroup.Get("/:listing_id/bids", middleware.AuthorizePermission(constants.ViewListings), bidsHandlers.ListForListing)
		listingsGroup.Post("/:listing_id/flag", middleware.AuthorizePermission(constants.FlagListing), listingsHandlers.Flag)
		listingsGroup.Post("/:listing_id/unflag", middleware.AuthorizePermission(constants.FlagListing), listingsHandlers.Unflag)
		listingsGroup.Delete("/:listing_id", middleware.AuthorizePermission(constants.RemoveListing), listingsHandlers.Remove)

		bidsGroup := app.Group("/api/v1/bids", middleware.RequireAuth())
		bidsGroup.Get("/my-bids", middleware.AuthorizePermission(constants.PlaceBid), bidsHandlers.MyBids)
		bidsGroup.Post("/:bid_id/accept", middleware.AuthorizePermission(constants.AcceptBid), bidsHandlers.AcceptBid)
		bidsGroup.Post("/:bid_id/reject", middleware.AuthorizePermission(constants.RejectBid), bidsHandlers.RejectBid)

		usersGroup := app.Group("/api/v1/users", middleware.RequireAuth())
		usersGroup.Get("/", middleware.AuthorizePermission(constants.ViewUsers), usersHandlers.ListUsers)
		usersGroup.Get("/:user_id", usersHandlers.ViewUser)
		usersGroup.Post("/:user_id/ban", middleware.AuthorizePermission(constants.BanUser), usersHandlers.BanUser)
		usersGroup.Post("/:user_id/reinstate", middleware.AuthorizePermission(constants.BanUser), usersHandlers.ReinstateUser)
	}

	return app, db, rdb, clock, nil
}
