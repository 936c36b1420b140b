package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"echoroom/internal/core"
	"echoroom/internal/domain"
)

// Relay forwards a signaling body to the target connection, stamping the
// sender id server-side. Signaling only flows between members of the same
// room. Fire-and-forget: an unbound sender, a missing target or a saturated
// target drops the message with no error back to the sender, matching
// WebRTC's tolerance for stale signaling.
func (c *Coordinator) Relay(from, to domain.ConnID, sig core.SignalBody) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sender, ok := c.conns[from]
	if !ok || !sender.bound() {
		log.Debug().Str("module", "app.relay").
			Str("from", string(from)).Str("to", string(to)).
			Msg("relay from unbound sender, dropping")
		return
	}
	target, ok := c.conns[to]
	if !ok || !target.bound() || target.roomID != sender.roomID {
		log.Debug().Str("module", "app.relay").
			Str("from", string(from)).Str("to", string(to)).
			Msg("relay target gone or outside the room, dropping")
		return
	}

	data, err := json.Marshal(core.SignalEvent{
		Type:   core.EventSignal,
		From:   from,
		Signal: sig,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("relay marshal")
		return
	}
	if err := target.conn.TrySend(core.Frame(data)); err != nil {
		log.Debug().Err(err).Str("module", "app.relay").
			Str("to", string(to)).
			Msg("relay send failed, dropping")
	}
}
