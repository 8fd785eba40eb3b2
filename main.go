package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"
)

func main() {
	config := LoadConfig()

	if err := initJWT(); err != nil {
		log.Fatalf("❌ Failed to initialize JWT: %v", err)
	}

	db, err := sql.Open("sqlite", config.DBPath)
	if err != nil {
		log.Fatalf("❌ Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}

	users, err := NewUserStore(db)
	if err != nil {
		log.Fatalf("❌ Failed to initialize user store: %v", err)
	}
	doctors, err := NewDoctorStore(db)
	if err != nil {
		log.Fatalf("❌ Failed to initialize doctor store: %v", err)
	}
	appointments, err := NewAppointmentStore(db)
	if err != nil {
		log.Fatalf("❌ Failed to initialize appointment store: %v", err)
	}
	documents, err := NewDocumentStore(db)
	if err != nil {
		log.Fatalf("❌ Failed to initialize document store: %v", err)
	}

	if err := seedData(users, doctors); err != nil {
		log.Printf("⚠️ Seeding skipped: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := NewRateLimiter(config.LoginRateWindow, config.LoginRateMax)
	limiter.StartSweeper(ctx, config.SweepInterval)

	sessions := NewSessionRegistry(config.SessionIdleTimeout)
	sessions.StartSweeper(ctx, config.SweepInterval)

	server := &Server{
		config:       config,
		users:        users,
		doctors:      doctors,
		appointments: appointments,
		documents:    documents,
		identity:     users,
		limiter:      limiter,
		sessions:     sessions,
		clients:      NewClientManager(),
	}

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      server.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if config.EnableHTTPS {
			log.Printf("🔒 HTTPS server running on https://localhost:%s", config.Port)
			if err := srv.ListenAndServeTLS("server.crt", "server.key"); err != nil && err != http.ErrServerClosed {
				log.Fatalf("❌ HTTPS server failed: %v", err)
			}
		} else {
			log.Printf("🚀 HTTP server running on http://localhost:%s", config.Port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("❌ HTTP server failed: %v", err)
			}
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ Server shutdown error: %v", err)
	} else {
		log.Println("✅ Server shutdown complete")
	}
}
