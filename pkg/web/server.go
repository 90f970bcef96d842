// Package web serves the REST API and websocket streams for the dashboard.
package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"platewatch/internal/store"
	"platewatch/pkg/capture"
	"platewatch/pkg/dedup"
	"platewatch/pkg/hub"
)

// Server is the HTTP/websocket front of the service. It owns the broadcast
// hubs and forwards control requests to the capture loop's inbox.
type Server struct {
	app  *fiber.App
	port string
	log  zerolog.Logger

	loop    *capture.Loop
	cache   *dedup.Cache
	db      *store.Store
	sources []string

	videoHub *hub.Hub
	eventHub *hub.Hub
}

// NewServer wires the API over the loop, cache and store. sources is the set
// of configured camera identifiers, used for validation and /api/status. The
// hubs are shared with the capture sink so loop output reaches ws clients.
func NewServer(port string, loop *capture.Loop, cache *dedup.Cache, db *store.Store, sources []string, videoHub, eventHub *hub.Hub, log zerolog.Logger) *Server {
	s := &Server{
		port:     port,
		log:      log,
		loop:     loop,
		cache:    cache,
		db:       db,
		sources:  sources,
		videoHub: videoHub,
		eventHub: eventHub,
	}

	app := fiber.New(fiber.Config{
		AppName:               "platewatch",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/plates", s.handleLatestPlates)
	api.Get("/plates/count", s.handlePlateCount)
	api.Post("/plates/clear", s.handleClearPlates)
	api.Post("/plates/delete", s.handleDeletePlate)
	api.Get("/settings/deduplication", s.handleGetDedupWindow)
	api.Post("/settings/deduplication", s.handleSetDedupWindow)
	api.Post("/cache/clear", s.handleClearCache)
	api.Get("/cache/stats", s.handleCacheStats)
	api.Post("/stream/start", s.handleStreamStart)
	api.Post("/stream/stop", s.handleStreamStop)
	api.Post("/stream/switch", s.handleStreamSwitch)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/video", websocket.New(s.handleVideoWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Start runs the hubs and blocks serving HTTP.
func (s *Server) Start() error {
	go s.videoHub.Run()
	go s.eventHub.Run()

	s.log.Info().Str("port", s.port).Msg("http server listening")
	return s.app.Listen(":" + s.port)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleVideoWS(c *websocket.Conn) {
	hub.NewClient(s.videoHub, c).Run()
}

func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.NewClient(s.eventHub, c).Run()
}

func (s *Server) knownSource(id string) bool {
	for _, name := range s.sources {
		if name == id {
			return true
		}
	}
	return false
}
