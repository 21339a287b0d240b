// Command agent runs a headless sync client: it logs in, then pulls and
// pushes the terminal's state on timers until interrupted.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tokosync/backend/internal/config"
	"tokosync/backend/internal/localstore"
	"tokosync/backend/internal/syncclient"
)

func main() {
	cfg := config.Load()
	if cfg.SyncUsername == "" || cfg.SyncPassword == "" {
		log.Fatal("SYNC_USERNAME and SYNC_PASSWORD must be set")
	}

	timeout := time.Duration(cfg.SyncTimeoutSeconds) * time.Second
	client := syncclient.NewClient(cfg.SyncServerURL, timeout)

	loginCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	resp, err := client.Login(loginCtx, cfg.SyncUsername, cfg.SyncPassword)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}
	log.Printf("logged in as %s (%s)", resp.Username, resp.UserID)

	local := localstore.New()
	session := syncclient.NewSession(client, local,
		time.Duration(cfg.PullIntervalSeconds)*time.Second,
		time.Duration(cfg.PushIntervalSeconds)*time.Second,
		timeout)
	session.Start()
	log.Printf("sync loops running (pull every %ds, push every %ds)", cfg.PullIntervalSeconds, cfg.PushIntervalSeconds)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	session.Close()
	log.Println("agent stopped")
}
