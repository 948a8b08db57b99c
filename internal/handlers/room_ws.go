// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/landlord/internal/game"
	"github.com/jason-s-yu/landlord/internal/middleware"
	"github.com/jason-s-yu/landlord/internal/models"
	"github.com/jason-s-yu/landlord/internal/room"
)

// RoomMessage is one incoming WebSocket frame. Player moves carry the
// command fields directly; the remaining types are room controls.
type RoomMessage struct {
	Type      string               `json:"type"`
	Property  string               `json:"property,omitempty"`
	Increment int                  `json:"increment,omitempty"`
	Dice      *models.DiceOverride `json:"dice,omitempty"`

	// Name is used by the add_bot control message.
	Name string `json:"name,omitempty"`
}

// commandTypes maps wire message types onto engine commands. Anything not
// in this table is a control message or an error.
var commandTypes = map[string]models.CommandType{
	"roll_dice":           models.CmdRollDice,
	"buy_property":        models.CmdBuyProperty,
	"decline_property":    models.CmdDeclineProperty,
	"auction_bid":         models.CmdAuctionBid,
	"auction_pass":        models.CmdAuctionPass,
	"pay_jail_fine":       models.CmdPayJailFine,
	"use_jail_card":       models.CmdUseJailCard,
	"build_house":         models.CmdBuildHouse,
	"destroy_house":       models.CmdDestroyHouse,
	"mortgage_property":   models.CmdMortgage,
	"unmortgage_property": models.CmdUnmortgage,
	"sell_property":       models.CmdSellProperty,
	"end_turn":            models.CmdEndTurn,
	"bankrupt":            models.CmdBankrupt,
}

// wsMember adapts a WebSocket connection to the room.Member interface.
// Sends are asynchronous with a write timeout so a slow client can never
// stall the room worker.
type wsMember struct {
	conn   *websocket.Conn
	logger *logrus.Logger
	roomID uuid.UUID
}

func (m *wsMember) Send(ev game.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		m.logger.WithError(err).Errorf("failed to marshal event %s for room %s", ev.Type, m.roomID)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := m.conn.Write(ctx, websocket.MessageText, data); err != nil {
			m.logger.Warnf("failed to write event to client in room %s: %v", m.roomID, err)
		}
	}()
}

// RoomWSHandler upgrades the connection for a specific room. New players
// join with ?name=...; a returning player reconnects with ?player=<uuid>.
func RoomWSHandler(logger *logrus.Logger, srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract room id from the URL path: /room/ws/{room_id}
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/room/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "Missing room_id in path (/room/ws/{room_id})", http.StatusBadRequest)
			return
		}
		roomID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "Invalid room_id format", http.StatusBadRequest)
			return
		}

		sess, ok := srv.Store.GetRoom(roomID)
		if !ok {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for room %s: %v", roomID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "game" {
			logger.Warnf("Client for room %s connected with invalid subprotocol: %s", roomID, c.Subprotocol())
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'game' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		member := &wsMember{conn: c, logger: logger, roomID: roomID}

		// Resolve the player: reconnect by id, or join with a name.
		var playerID uuid.UUID
		if idStr := r.URL.Query().Get("player"); idStr != "" {
			playerID, err = uuid.Parse(idStr)
			if err != nil {
				c.Close(websocket.StatusPolicyViolation, "Invalid player id.")
				return
			}
			if err := sess.Reconnect(playerID, member); err != nil {
				logger.Warnf("Reconnect rejected for room %s: %v", roomID, err)
				c.Close(websocket.StatusPolicyViolation, err.Error())
				return
			}
		} else {
			name := r.URL.Query().Get("name")
			if name == "" {
				name = "Player"
			}
			p, err := sess.Join(name, false, member)
			if err != nil {
				logger.Warnf("Join rejected for room %s: %v", roomID, err)
				c.Close(websocket.StatusPolicyViolation, err.Error())
				return
			}
			playerID = p.ID
			// Tell the client its assigned id so it can reconnect later.
			sendWsMessage(logger, c, map[string]interface{}{
				"type":     "joined",
				"playerId": playerID,
				"roomId":   roomID,
			})
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readErr := readRoomMessages(ctx, c, sess, playerID, logger)

		sess.Disconnect(playerID)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
	}
}

// readRoomMessages reads frames until the connection drops, translating each
// into either a room control call or a queued engine command.
func readRoomMessages(ctx context.Context, c *websocket.Conn, sess *room.Session, playerID uuid.UUID, logger *logrus.Logger) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message type %d from player %s in room %s. Ignoring.", msgType, playerID, sess.ID)
			continue
		}

		var msg RoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON from player %s in room %s: %v", playerID, sess.ID, err)
			sendWsError(logger, c, "Invalid JSON format.")
			continue
		}

		logger.Debugf("Received '%s' from player %s in room %s.", msg.Type, playerID, sess.ID)

		if cmdType, ok := commandTypes[msg.Type]; ok {
			cmd := models.Command{
				Type:      cmdType,
				Property:  msg.Property,
				Increment: msg.Increment,
				Dice:      msg.Dice,
			}
			if err := sess.Enqueue(playerID, cmd); err != nil {
				sendWsError(logger, c, err.Error())
			}
			continue
		}

		switch msg.Type {
		case "start":
			if err := sess.Start(); err != nil {
				sendWsError(logger, c, err.Error())
			}
		case "add_bot":
			name := msg.Name
			if name == "" {
				name = "Bot"
			}
			if _, err := sess.AddBot(name); err != nil {
				sendWsError(logger, c, err.Error())
			}
		case "get_log":
			sendWsMessage(logger, c, map[string]interface{}{
				"type":    "gameLog",
				"entries": sess.Log(),
			})
		case "ping":
			sendWsMessage(logger, c, map[string]string{"type": "pong"})
		default:
			sendWsError(logger, c, fmt.Sprintf("Unknown message type: %s", msg.Type))
		}
	}
}

// sendWsMessage marshals a message and writes it with a timeout. Write
// failures are left for the read loop to surface as a closed connection.
func sendWsMessage(logger *logrus.Logger, c *websocket.Conn, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		logger.Errorf("failed to marshal WebSocket message: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			logger.Warnf("failed to write WebSocket message: %v", err)
		}
	}
}

// sendWsError sends a structured error frame to the client.
func sendWsError(logger *logrus.Logger, c *websocket.Conn, errorMsg string) {
	sendWsMessage(logger, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
