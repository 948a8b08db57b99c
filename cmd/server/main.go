// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/landlord/internal/cache"
	"github.com/jason-s-yu/landlord/internal/database"
	"github.com/jason-s-yu/landlord/internal/handlers"
	"github.com/jason-s-yu/landlord/internal/middleware"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Redis and Postgres are optional collaborators: the game runs fully
	// in memory, so a missing backend only disables log/result persistence.
	if err := cache.ConnectRedis(); err != nil {
		logger.WithError(err).Warn("running without Redis; game log persistence disabled")
	}
	if err := database.ConnectDB(); err != nil {
		logger.WithError(err).Warn("running without Postgres; result persistence disabled")
	}

	srv := handlers.NewRoomServer()

	mux := http.NewServeMux()

	// room endpoints
	mux.Handle("/room/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(logger, srv),
	)))
	mux.Handle("/room/list", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListRoomsHandler(srv),
	)))

	// room websocket; not wrapped in LogMiddleware because the status
	// recorder does not support hijacking the connection for the upgrade.
	mux.Handle("/room/ws/", http.HandlerFunc(
		handlers.RoomWSHandler(logger, srv),
	))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
