// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/landlord/internal/board"
	"github.com/jason-s-yu/landlord/internal/game"
	"github.com/jason-s-yu/landlord/internal/room"
)

// createRoomRequest carries room creation options: a board map name and raw
// settings overrides applied onto the defaults.
type createRoomRequest struct {
	BoardMap string                 `json:"boardMap,omitempty"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// CreateRoomHandler creates a new room session and returns its id.
func CreateRoomHandler(logger *logrus.Logger, srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}

		var req createRoomRequest
		if r.Body != nil {
			// An empty body means all defaults.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		mapName := req.BoardMap
		if mapName == "" {
			mapName = "classic"
		}
		m, err := board.LoadMap(mapName)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		settings, err := game.ParseSettings(req.Settings, game.DefaultSettings())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		sess := room.NewSession(logger, m, settings)
		sess.OnEmpty = func(id uuid.UUID) {
			srv.Store.DeleteRoom(id)
		}
		srv.Store.AddRoom(sess)
		logger.WithField("room", sess.ID).Info("room created")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"roomId":   sess.ID,
			"boardMap": mapName,
			"settings": settings,
		})
	}
}

// roomSummary is one row of the room listing.
type roomSummary struct {
	RoomID   string `json:"roomId"`
	Players  int    `json:"players"`
	Started  bool   `json:"started"`
	GameOver bool   `json:"gameOver"`
}

// ListRoomsHandler returns a summary of live rooms.
func ListRoomsHandler(srv *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var out []roomSummary
		for _, sess := range srv.Store.ListRooms() {
			snap := sess.Snapshot()
			if snap == nil {
				continue
			}
			out = append(out, roomSummary{
				RoomID:   snap.RoomID.String(),
				Players:  len(snap.Players),
				Started:  snap.Started,
				GameOver: snap.GameOver,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}
