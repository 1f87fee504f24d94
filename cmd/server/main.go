package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/anubhav-n-mishra/anubhav-meet/internal/logging"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/server"
	"github.com/anubhav-n-mishra/anubhav-meet/internal/signaling"
)

func main() {
	logging.Init()

	// 1. Create the hub and run its event loop.
	hub := signaling.NewHub()
	go hub.Run()

	// 2. Wire the HTTP surface: /ws, /health, /rooms/{id}.
	mux := server.NewMux(hub)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	addr := ":" + port
	slog.Info("starting signaling relay", "addr", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}
