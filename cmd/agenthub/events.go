package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// handleEvents upgrades the connection and relays workflow execution events
// as JSON text frames until the client disconnects. The subscription is
// drop-on-full, so a slow client can never stall the engine.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	events, cancel := s.orc.Engine().Events().Subscribe()
	defer cancel()

	ctx := r.Context()
	s.logger.Info("event relay connected", zap.String("remote", r.RemoteAddr))

	// Reads are discarded; their only purpose is surfacing client closure.
	go func() {
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("event marshal failed", zap.Error(err))
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				s.logger.Debug("event relay disconnected", zap.Error(err))
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
