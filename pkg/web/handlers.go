package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"platewatch/internal/config"
	"platewatch/internal/store"
)

// handleStatus reports the loop state and the configured sources.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	st := s.loop.Status()
	return c.JSON(fiber.Map{
		"running":              st.Running,
		"source":               st.Source,
		"sources":              s.sources,
		"dedup_window_seconds": s.loop.WindowSeconds(),
	})
}

// handleLatestPlates returns recent sightings, newest first.
func (s *Server) handleLatestPlates(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 15)
	records, err := s.db.Latest(c.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("latest plates query failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "query failed"})
	}
	if records == nil {
		records = []store.Record{}
	}
	return c.JSON(records)
}

func (s *Server) handlePlateCount(c *fiber.Ctx) error {
	n, err := s.db.Count(c.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("plate count query failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "query failed"})
	}
	return c.JSON(fiber.Map{"count": n})
}

// handleClearPlates deletes every stored record. The dedup cache is cleared
// too so freshly-seen plates are re-recorded immediately.
func (s *Server) handleClearPlates(c *fiber.Ctx) error {
	if err := s.db.DeleteAll(c.Context()); err != nil {
		s.log.Error().Err(err).Msg("plate clear failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "delete failed"})
	}
	s.cache.Clear()
	s.broadcastDB("clear", "")
	return c.JSON(fiber.Map{"status": "cleared"})
}

type deletePlateRequest struct {
	Code      string `json:"plate"`
	Timestamp string `json:"timestamp,omitempty"`
}

// handleDeletePlate removes one sighting: the exact one when a timestamp is
// given, otherwise the most recent sighting of the code.
func (s *Server) handleDeletePlate(c *fiber.Ctx) error {
	var req deletePlateRequest
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "plate is required"})
	}

	var ts *time.Time
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "timestamp must be RFC3339"})
		}
		ts = &parsed
	}

	if err := s.db.DeleteOne(c.Context(), req.Code, ts); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "record not found"})
		}
		s.log.Error().Err(err).Str("plate", req.Code).Msg("plate delete failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "delete failed"})
	}

	s.broadcastDB("delete", req.Code)
	return c.JSON(fiber.Map{"status": "deleted", "plate": req.Code})
}

func (s *Server) handleGetDedupWindow(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"window_seconds": s.loop.WindowSeconds()})
}

type dedupWindowRequest struct {
	WindowSeconds int `json:"window_seconds"`
}

// handleSetDedupWindow updates the suppression window within its bounds.
func (s *Server) handleSetDedupWindow(c *fiber.Ctx) error {
	var req dedupWindowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.WindowSeconds < config.MinDedupWindow || req.WindowSeconds > config.MaxDedupWindow {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "window_seconds out of range",
			"min":   config.MinDedupWindow,
			"max":   config.MaxDedupWindow,
		})
	}
	s.loop.SetWindow(req.WindowSeconds)
	return c.JSON(fiber.Map{"window_seconds": req.WindowSeconds})
}

func (s *Server) handleClearCache(c *fiber.Ctx) error {
	s.cache.Clear()
	return c.JSON(fiber.Map{"status": "cleared"})
}

func (s *Server) handleCacheStats(c *fiber.Ctx) error {
	return c.JSON(s.cache.Stats())
}

type streamRequest struct {
	Source string `json:"source"`
}

func (s *Server) handleStreamStart(c *fiber.Ctx) error {
	var req streamRequest
	if err := c.BodyParser(&req); err != nil || req.Source == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "source is required"})
	}
	if !s.knownSource(req.Source) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown source", "source": req.Source})
	}
	if err := s.loop.Start(req.Source); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "starting", "source": req.Source})
}

func (s *Server) handleStreamStop(c *fiber.Ctx) error {
	if err := s.loop.Stop(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "stopping"})
}

func (s *Server) handleStreamSwitch(c *fiber.Ctx) error {
	var req streamRequest
	if err := c.BodyParser(&req); err != nil || req.Source == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "source is required"})
	}
	if !s.knownSource(req.Source) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown source", "source": req.Source})
	}
	if err := s.loop.Switch(req.Source); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "switching", "source": req.Source})
}

// broadcastDB notifies event clients that stored records changed.
func (s *Server) broadcastDB(action, code string) {
	payload := fiber.Map{"action": action}
	if code != "" {
		payload["plate"] = code
	}
	if err := s.eventHub.BroadcastJSON(event{Type: "db", Data: payload}); err != nil {
		s.log.Warn().Err(err).Msg("db event broadcast failed")
	}
}
