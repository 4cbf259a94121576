package signal

import (
	"encoding/json"
	"errors"
)

func (h *Handle) handlePingTick() {
	if err := h.sendJSON(envelope{Type: msgPing}); err != nil {
		h.logger.Debug().Err(err).Msg("ping")
	}
}

func (h *Handle) handlePong() {
	h.logger.Debug().Msg("pong")
}

func (h *Handle) handleError(data []byte) {
	var p errorMessage
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Error().Err(err).Msg("bad error payload")
		return
	}
	h.logger.Error().Str("error", p.Error).Msg("server error")
}

func (h *Handle) handleLeave(data []byte) error {
	var p leaveMessage
	_ = json.Unmarshal(data, &p)
	h.logger.Info().Str("reason", p.Reason).Msg("server leave")
	if p.Reason != "" {
		return errors.New(p.Reason)
	}
	return errAgentLeft
}
