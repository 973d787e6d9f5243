// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/seungho-lim/numrace/internal/auth"
	"github.com/seungho-lim/numrace/internal/broadcast"
	"github.com/seungho-lim/numrace/internal/cache"
	"github.com/seungho-lim/numrace/internal/database"
	"github.com/seungho-lim/numrace/internal/handlers"
	"github.com/seungho-lim/numrace/internal/match"
	"github.com/seungho-lim/numrace/internal/middleware"
)

func main() {
	logger := logrus.New()
	if os.Getenv("DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := auth.Init(); err != nil {
		log.Fatalf("auth init: %v", err)
	}

	ctx := context.Background()

	pool, err := database.Connect(ctx)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer pool.Close()
	store := database.New(pool)

	broker := broadcast.NewBroker()

	deps := match.Deps{
		Matches:     store,
		Submissions: store,
		Profiles:    store,
		Rooms:       store,
		Publisher:   broker,
		Logger:      logger,
	}

	// The submission journal is optional; the server runs without Redis.
	journal, err := cache.Connect(ctx)
	if err != nil {
		logger.Warnf("redis unavailable, submission journal disabled: %v", err)
	} else {
		deps.Journal = journal
	}

	matches := match.NewService(deps)
	srv := handlers.NewServer(store, matches, broker, logger)

	go matches.RunSweeper(ctx, 15*time.Second)
	go runRoomCleanup(ctx, store, broker, logger)

	logged := middleware.LogMiddleware(logger)

	mux := http.NewServeMux()

	// user endpoints
	mux.Handle("/user/create", logged(http.HandlerFunc(srv.CreateUserHandler)))
	mux.Handle("/user/login", logged(http.HandlerFunc(srv.LoginHandler)))
	mux.Handle("/user/me", logged(http.HandlerFunc(srv.MeHandler)))
	mux.Handle("/user/leaderboard", logged(http.HandlerFunc(srv.LeaderboardHandler)))

	// room endpoints
	mux.Handle("/rooms/create", logged(http.HandlerFunc(srv.CreateRoomHandler)))
	mux.Handle("/rooms/list", logged(http.HandlerFunc(srv.ListRoomsHandler)))
	mux.Handle("/rooms/join", logged(http.HandlerFunc(srv.JoinRoomHandler)))
	mux.Handle("/rooms/", logged(http.HandlerFunc(srv.RoomRouter)))

	// practice evaluation
	mux.Handle("/analyze", logged(http.HandlerFunc(srv.AnalyzeHandler)))

	// special game mode
	mux.Handle("/special/context", logged(http.HandlerFunc(srv.SpecialContextHandler)))
	mux.Handle("/special/submit", logged(http.HandlerFunc(srv.SpecialSubmitHandler)))
	mux.Handle("/special/leaderboard", logged(http.HandlerFunc(srv.SpecialLeaderboardHandler)))

	// dashboard
	mux.Handle("/dashboard/summary", logged(http.HandlerFunc(srv.DashboardSummaryHandler)))

	// websockets
	mux.Handle("/ws/rooms/", logged(srv.RoomWSHandler()))
	mux.Handle("/ws/dashboard", logged(srv.DashboardWSHandler()))
	mux.Handle("/ws/lobby", logged(srv.LobbyWSHandler()))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// runRoomCleanup sweeps rooms nobody uses: empty rooms on a short cadence,
// idle WAITING rooms after an hour. Deleted rooms are announced so any
// straggler clients drop their subscriptions.
func runRoomCleanup(ctx context.Context, store *database.Store, broker *broadcast.Broker, logger *logrus.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			empty, err := store.DeleteEmptyRooms(ctx)
			if err != nil {
				logger.Warnf("room cleanup: delete empty rooms: %v", err)
			}
			idle, err := store.DeleteIdleRooms(ctx, time.Now().Add(-time.Hour))
			if err != nil {
				logger.Warnf("room cleanup: delete idle rooms: %v", err)
			}
			for _, id := range append(empty, idle...) {
				broker.BroadcastRoom(id, match.RoomClosed{
					Type:   match.EventRoomClosed,
					RoomID: id,
					Reason: "cleanup",
				})
				logger.Infof("room cleanup: removed room %s", id)
			}
		}
	}
}
