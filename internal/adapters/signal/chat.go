package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"echoroom/internal/adapters/metrics"
	"echoroom/internal/core"
	"echoroom/internal/domain"
)

func (ctl *SignalWSController) handleChatMessage(connID domain.ConnID, data []byte) {
	type messagePayload struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		return
	}
	if p.Text == "" {
		return
	}
	ctl.Coord.Chat(connID, p.Text)
	metrics.MessagesRelayed.Inc()
}

func (ctl *SignalWSController) handleScreenShare(connID domain.ConnID, isSharing bool) {
	ctl.Coord.ScreenShare(connID, isSharing)
}

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	resp := struct {
		Type core.EventType `json:"type"`
	}{
		Type: core.EventPong,
	}
	ctl.sendJSON(conn, resp)
}
