package server

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/minaorangina/gamehost/engine"
	"github.com/minaorangina/gamehost/messenger"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// seatConn pumps frames between one websocket and one seat
type seatConn struct {
	server *GameServer
	hub    *hub
	client *client
	ticket Ticket
	conn   *websocket.Conn
	logger *zap.Logger
}

func (sc *seatConn) reply(frame OutboundFrame) {
	if err := sc.hub.sendFrame(messenger.Whisper(sc.ticket.Seat), frame); err != nil {
		sc.logger.Warn("could not reply", zap.Error(err))
	}
}

// readPump hands the seat's frames to its match until the connection drops
func (sc *seatConn) readPump() {
	defer func() {
		sc.hub.detach(sc.client)
		sc.conn.Close()
	}()

	sc.conn.SetReadLimit(maxMessageSize)
	sc.conn.SetReadDeadline(time.Now().Add(pongWait))
	sc.conn.SetPongHandler(func(string) error {
		sc.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := sc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.logger.Info("connection lost", zap.Error(err))
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			sc.reply(OutboundFrame{Error: "could not parse frame"})
			continue
		}
		sc.handle(frame)
	}
}

func (sc *seatConn) handle(frame InboundFrame) {
	match := sc.server.store.FindMatch(sc.ticket.MatchID)
	if match == nil {
		sc.reply(OutboundFrame{Error: engine.ErrNotStarted.Error()})
		return
	}

	switch {
	case frame.Leave:
		if err := match.Leave(sc.ticket.Seat); err != nil {
			sc.reply(OutboundFrame{Error: err.Error()})
			return
		}
		sc.reply(OutboundFrame{Event: "left"})

	case frame.Auto:
		out, err := match.Act(sc.ticket.Seat)
		if err != nil {
			sc.reply(OutboundFrame{Error: err.Error()})
			return
		}
		sc.reply(OutboundFrame{Result: out.String()})

	case frame.Text != "":
		res, err := match.Request(sc.ticket.Seat, frame.Public, frame.Text)
		if err != nil {
			if !errors.Is(err, engine.ErrMatchOver) {
				sc.logger.Debug("request refused", zap.Error(err))
			}
			sc.reply(OutboundFrame{Error: err.Error()})
			return
		}
		sc.reply(OutboundFrame{Result: res.String()})

	default:
		sc.reply(OutboundFrame{Error: "empty frame"})
	}
}

// writePump writes queued frames and keeps the connection alive
func (sc *seatConn) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		sc.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sc.client.send:
			sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				sc.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := sc.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			sc.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sc.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
