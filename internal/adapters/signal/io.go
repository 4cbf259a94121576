package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/VoiceAgent/internal/core"
)

func (h *Handle) writePump(c *wsSignalConn) {
	ticker := time.NewTicker(h.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(h.opts.WriteWait)); err != nil {
				h.logger.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.opts.WriteWait)); err != nil {
				h.logger.Warn().Err(err).Msg("writePump ping")
				return
			}
			h.handlePingTick()
		}
	}
}

func (h *Handle) readPump(ctx context.Context, c *wsSignalConn) {
	pongWait := h.opts.PingPeriod * 10 / 9
	if pongWait <= h.opts.PingPeriod {
		pongWait = h.opts.PingPeriod + time.Second
	}
	extend := func() { _ = c.ws.SetReadDeadline(time.Now().Add(pongWait)) }
	extend()
	c.ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	var reason error
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				h.logger.Warn().Err(err).Msg("readPump read error")
			}
			reason = err
			break
		}
		extend()
		if stop := h.handleSignal(data); stop != nil {
			reason = stop
			break
		}
	}
	h.shutdown(reason, true)
}

// handleSignal dispatches one server message. A non-nil result ends the session.
func (h *Handle) handleSignal(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Error().Err(err).Msg("bad json")
		return nil
	}

	switch env.Type {
	case msgRPCRequest:
		h.handleRPCRequest(data)
	case msgAnswer:
		h.handleAnswer(data)
	case msgCandidate:
		h.handleCandidate(data)
	case msgPong:
		h.handlePong()
	case msgError:
		h.handleError(data)
	case msgLeave:
		return h.handleLeave(data)
	case msgJoined:
		h.logger.Warn().Msg("duplicate joined")
	default:
		h.logger.Warn().Str("type", env.Type).Msg("unknown signal")
	}
	return nil
}

func (h *Handle) sendJSON(v any) error {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("sendJSON marshal")
		return err
	}
	if err := conn.TrySend(core.Frame(b)); err != nil {
		if errors.Is(err, errConnClosed) {
			return ErrNotConnected
		}
		return err
	}
	return nil
}
