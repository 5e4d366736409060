package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kaydenvu/CPSC455-Project1/internal/api"
	"github.com/kaydenvu/CPSC455-Project1/internal/blob"
	"github.com/kaydenvu/CPSC455-Project1/internal/config"
	"github.com/kaydenvu/CPSC455-Project1/internal/database"
	"github.com/kaydenvu/CPSC455-Project1/internal/presence"
	"github.com/kaydenvu/CPSC455-Project1/internal/ratelimit"
	"github.com/kaydenvu/CPSC455-Project1/internal/scanner"
	"github.com/kaydenvu/CPSC455-Project1/internal/server"
	"github.com/kaydenvu/CPSC455-Project1/internal/stats"
	"github.com/redis/go-redis/v9"
)

const (
	defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="
	scanTimeout       = 10 * time.Second
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr             string
	dsn              string
	signingKey       string
	allowedOrigins   stringSliceFlag
	redisAddr        string
	natsURL          string
	blobBucket       string
	scannerURL       string
	scanFailOpen     bool
	persistEncrypted bool
	transcriptPath   string
	defaultRooms     stringSliceFlag
	roomIdle         time.Duration
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&redisAddr, "redis-addr", "", "redis address for shared rate limits and presence")
	flag.StringVar(&natsURL, "nats-url", "", "NATS URL for the file object store")
	flag.StringVar(&blobBucket, "blob-bucket", config.DefaultBlobBucket, "object store bucket for uploaded files")
	flag.StringVar(&scannerURL, "scanner-url", "", "malware scanner endpoint")
	flag.BoolVar(&scanFailOpen, "scan-fail-open", false, "accept uploads when the scanner is unreachable")
	flag.BoolVar(&persistEncrypted, "persist-encrypted", false, "store encrypted messages in history")
	flag.StringVar(&transcriptPath, "transcript", "", "chat transcript file")
	flag.Var(&defaultRooms, "default-rooms", "comma-separated rooms always listed in the directory")
	flag.DurationVar(&roomIdle, "room-idle", config.DefaultRoomIdle, "inactivity after which a room leaves the directory")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-chat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}
	cfg.RedisAddr = redisAddr
	cfg.NatsURL = natsURL
	cfg.BlobBucket = blobBucket
	cfg.ScannerURL = scannerURL
	cfg.ScanFailOpen = scanFailOpen
	cfg.PersistEncrypted = persistEncrypted
	cfg.TranscriptPath = transcriptPath
	cfg.RoomIdle = roomIdle
	if len(defaultRooms) > 0 {
		cfg.DefaultRooms = defaultRooms
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgRelayRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate:", err)
	}

	opts := server.Options{
		History:          dbConn,
		ScanFailOpen:     cfg.ScanFailOpen,
		PersistEncrypted: cfg.PersistEncrypted,
		RoomIdle:         cfg.RoomIdle,
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal("redis ping:", err)
		}

		opts.Limiter = ratelimit.NewRedis(rdb, ratelimit.DefaultRules, logger)
		opts.Presence = presence.NewRedis(rdb, logger)
		logger.Printf("using redis at %s for rate limits and presence\n", cfg.RedisAddr)
	} else {
		opts.Limiter = ratelimit.NewMemory(ratelimit.DefaultRules)
	}

	if cfg.NatsURL != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := blob.NewJetStreamStore(connectCtx, cfg.NatsURL, cfg.BlobBucket)
		cancel()
		if err != nil {
			logger.Fatal("object store:", err)
		}
		defer store.Close()

		opts.Blobs = store
		logger.Printf("storing files in bucket %q\n", cfg.BlobBucket)
	} else {
		opts.Blobs = blob.NewMemory()
	}

	if cfg.ScannerURL != "" {
		opts.Scanner = scanner.NewHTTPScanner(cfg.ScannerURL, scanTimeout)
	}

	if cfg.TranscriptPath != "" {
		f, err := os.OpenFile(cfg.TranscriptPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Fatal("open transcript:", err)
		}
		defer f.Close()

		opts.Transcript = server.NewTranscript(f)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, opts, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewGoChatApp(mux, logger, chatServer, dbConn, opts.Blobs, opts.Limiter, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
