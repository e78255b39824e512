package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/snode/goqtt/internal/auth"
	"github.com/snode/goqtt/internal/broker"
	"github.com/snode/goqtt/internal/config"
	"github.com/snode/goqtt/internal/logger"
	"github.com/snode/goqtt/internal/store"
	"github.com/snode/goqtt/internal/transport"
)

func gracefulShutdown(srv *transport.Server, cancel context.CancelFunc, done chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Println("Graceful shutdown has triggered...")

	defer cancel()
	if err := srv.Stop(); err != nil {
		log.Println(err)
	}
	time.Sleep(1 * time.Second)

	close(done)
}

func main() {
	done := make(chan struct{}, 1)

	configPath := "config.yml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadBrokerConfig(configPath)
	if err != nil {
		log.Panicf("failed to load config: %v", err)
	}

	authDBPath := cfg.AuthDBPath
	if authDBPath == "" {
		authDBPath = "./store/store.db"
	}
	db, err := sql.Open("sqlite3", authDBPath)
	if err != nil {
		log.Panicf("failed to open sqlite db: %v", err)
	}
	defer db.Close()

	authStore := auth.New(db)
	if err := authStore.EnsureSchema(); err != nil {
		log.Panicf("failed to ensure auth schema: %v", err)
	}

	mqttLog := logger.New(logger.ProductionConfig())

	ctx, cancel := context.WithCancel(context.Background())

	b := broker.New(mqttLog)
	go b.Run(ctx)

	sessionDB := db
	if cfg.SessionStorePath != "" && cfg.SessionStorePath != authDBPath {
		var err error
		sessionDB, err = sql.Open("sqlite3", cfg.SessionStorePath)
		if err != nil {
			log.Panicf("failed to open session store db: %v", err)
		}
		defer sessionDB.Close()
	}
	sessionStore := store.New(sessionDB)
	if err := sessionStore.EnsureSchema(); err != nil {
		log.Panicf("failed to ensure session store schema: %v", err)
	}
	b.SetStore(sessionStore)
	if err := b.LoadPersisted(); err != nil {
		log.Panicf("failed to load persisted sessions: %v", err)
	}

	srv := transport.New(b, authStore, mqttLog)

	if cfg.TCPAddr != "" {
		if err := srv.ListenTCP(ctx, cfg.TCPAddr); err != nil {
			log.Panicf("failed to listen on %s: %v", cfg.TCPAddr, err)
		}
		log.Printf("listening for MQTT over TCP on %s", cfg.TCPAddr)
	}
	if cfg.TLSAddr != "" {
		tlsCfg, err := loadTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			log.Panicf("failed to load TLS config: %v", err)
		}
		if err := srv.ListenTLS(ctx, cfg.TLSAddr, tlsCfg); err != nil {
			log.Panicf("failed to listen on %s: %v", cfg.TLSAddr, err)
		}
		log.Printf("listening for MQTT over TLS on %s", cfg.TLSAddr)
	}
	if cfg.UnixSocket != "" {
		if err := srv.ListenUnix(ctx, cfg.UnixSocket); err != nil {
			log.Panicf("failed to listen on %s: %v", cfg.UnixSocket, err)
		}
		log.Printf("listening for MQTT over UNIX socket at %s", cfg.UnixSocket)
	}
	if cfg.WebSocketAddr != "" {
		path := cfg.WebSocketPath
		if path == "" {
			path = "/mqtt"
		}
		if err := srv.ListenWebSocket(ctx, cfg.WebSocketAddr, path); err != nil {
			log.Panicf("failed to listen on %s: %v", cfg.WebSocketAddr, err)
		}
		log.Printf("listening for MQTT over WebSocket on %s%s", cfg.WebSocketAddr, path)
	}

	go gracefulShutdown(srv, cancel, done)

	<-done
	log.Println("Graceful shutdown complete.")
}
