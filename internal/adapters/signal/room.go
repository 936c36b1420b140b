package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"echoroom/internal/adapters/metrics"
	"echoroom/internal/core"
	"echoroom/internal/domain"
)

func (ctl *SignalWSController) handleCreateRoom(connID domain.ConnID, conn *WsSignalConn) {
	if !ctl.Limiter.Allow(connID) {
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": "too many rooms, slow down",
		})
		return
	}

	roomID := ctl.Coord.CreateRoom(connID)
	metrics.RoomsCreated.Inc()
	ctl.sendJSON(conn, core.RoomCreatedEvent{
		Type:   core.EventRoomCreated,
		RoomID: roomID,
	})
}

func (ctl *SignalWSController) handleJoin(connID domain.ConnID, conn *WsSignalConn, data []byte) {
	type joinPayload struct {
		Type     string `json:"type"`
		Room     string `json:"roomId"`
		Username string `json:"username,omitempty"`
		Avatar   string `json:"avatarRef,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(conn, core.JoinAckEvent{
			Type:  core.EventJoinAck,
			Error: "bad_payload",
		})
		return
	}

	snap, err := ctl.Coord.Join(connID, domain.RoomID(p.Room), p.Username, p.Avatar)
	if err != nil {
		if errors.Is(err, core.ErrRoomNotFound) {
			log.Info().Str("module", "signal").Str("room_id", p.Room).Msg("join: room not found")
		} else {
			log.Error().Err(err).Str("module", "signal").Str("room_id", p.Room).Msg("join failed")
		}
		ctl.sendJSON(conn, core.JoinAckEvent{
			Type:  core.EventJoinAck,
			Error: err.Error(),
		})
		return
	}

	log.Info().Str("module", "signal").
		Str("conn", string(connID)).Str("room_id", string(snap.ID)).
		Msg("join")
	ctl.sendJSON(conn, core.JoinAckEvent{
		Type:    core.EventJoinAck,
		Success: true,
		Self:    connID,
		Room:    &snap,
	})
}

// handleLeave leaves the current room without dropping the connection.
func (ctl *SignalWSController) handleLeave(connID domain.ConnID, conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("leave")
	ctl.Coord.Leave(connID)
	ctl.sendJSON(conn, map[string]any{
		"type": core.EventLeft,
	})
}
