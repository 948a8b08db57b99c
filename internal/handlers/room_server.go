// internal/handlers/room_server.go
package handlers

import (
	"github.com/jason-s-yu/landlord/internal/room"
)

// RoomServer is a high-level struct that holds the room store and creates
// new sessions for the HTTP/WS handlers.
type RoomServer struct {
	Store *room.Store
}

func NewRoomServer() *RoomServer {
	return &RoomServer{Store: room.NewStore()}
}
