package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"echoroom/internal/adapters/metrics"
	"echoroom/internal/core"
	"echoroom/internal/domain"
)

// handleRelay forwards an opaque signaling body to the named target. The
// payload is never inspected here; the peers own the handshake.
func (ctl *SignalWSController) handleRelay(connID domain.ConnID, data []byte) {
	type relayPayload struct {
		Type   string          `json:"type"`
		To     string          `json:"to"`
		Signal core.SignalBody `json:"signal"`
	}
	var p relayPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad signal payload")
		return
	}
	if p.To == "" {
		return
	}
	ctl.Coord.Relay(connID, domain.ConnID(p.To), p.Signal)
	metrics.SignalsRelayed.Inc()
}
