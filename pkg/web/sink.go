package web

import (
	"github.com/rs/zerolog"

	"platewatch/pkg/capture"
	"platewatch/pkg/hub"
)

// event is the envelope for /ws/events messages.
type event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// eventSink bridges the capture loop to the websocket hubs. All methods are
// fire-and-forget; a full hub queue drops the message, never blocks the loop.
type eventSink struct {
	videoHub *hub.Hub
	eventHub *hub.Hub
	log      zerolog.Logger
}

// NewSink creates the capture sink that broadcasts records, frames and status
// transitions through the given hubs.
func NewSink(videoHub, eventHub *hub.Hub, log zerolog.Logger) capture.Sink {
	return &eventSink{videoHub: videoHub, eventHub: eventHub, log: log}
}

func (s *eventSink) OnRecord(rec capture.Record) bool {
	if err := s.eventHub.BroadcastJSON(event{Type: "plates", Data: rec}); err != nil {
		s.log.Warn().Err(err).Str("plate", rec.Code).Msg("record broadcast failed")
		return false
	}
	return true
}

func (s *eventSink) OnFrame(jpeg []byte) {
	s.videoHub.BroadcastBinary(jpeg)
}

func (s *eventSink) OnStatus(st capture.Status) {
	if err := s.eventHub.BroadcastJSON(event{Type: "status", Data: st}); err != nil {
		s.log.Warn().Err(err).Msg("status broadcast failed")
	}
}
