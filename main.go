package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-api/api"
	"board-api/board"
	"board-api/events"
	"board-api/gateway"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	store, err := buildStore(logger)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	rc, err := buildRedis()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}

	cacheTTL := 5 * time.Minute
	if v := os.Getenv("BOARD_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid BOARD_CACHE_TTL: %v", err)
		}
		cacheTTL = d
	}
	store = gateway.NewCachedStore(store, rc, cacheTTL)

	dedupeTTL := 24 * time.Hour
	if v := os.Getenv("DEDUPER_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid DEDUPER_TTL: %v", err)
		}
		dedupeTTL = d
	}
	var deduper board.Deduper
	if rc != nil {
		deduper = api.NewRedisDeduper(rc, dedupeTTL)
	}

	var activity *gateway.ActivityRecorder
	if queueName := os.Getenv("ACTIVITY_QUEUE"); queueName != "" {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("ACTIVITY_QUEUE set without STORAGE_CONNECTION_STRING")
		}
		activity, err = gateway.NewActivityRecorder(connStr, queueName, logger)
		if err != nil {
			log.Fatalf("activity queue: %v", err)
		}
	}

	testMode := os.Getenv("AUTH_TEST_MODE") == "1" || os.Getenv("LOCAL_AUTH_MODE") != ""
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	idleTTL := 30 * time.Minute
	if v := os.Getenv("SESSION_IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid SESSION_IDLE_TTL: %v", err)
		}
		idleTTL = d
	}
	sessions := api.NewSessions(api.SessionConfig{
		Store:     store,
		Deduper:   deduper,
		Publisher: events.NewPublisher(rc, logger),
		Activity:  activity,
		Logger:    logger,
		IdleTTL:   idleTTL,
	})
	go sessions.Sweep(context.Background())

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())
	e.Use(echoprometheus.NewMiddleware("board_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, sessions, auth, rc, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// buildStore picks the task gateway. Azure Table Storage is the production
// backend; BOARD_BACKEND=sqlite selects the embedded database for local
// development and tests.
func buildStore(logger *log.Logger) (gateway.TaskStore, error) {
	switch backend := os.Getenv("BOARD_BACKEND"); backend {
	case "", "aztables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		tableName := os.Getenv("TASKS_TABLE")
		if connStr == "" || tableName == "" {
			return nil, fmt.Errorf("missing storage config")
		}
		return gateway.NewTableStore(connStr, tableName)
	case "sqlite":
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "board.db"
		}
		logger.Infof("using sqlite store at %s", path)
		return gateway.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown BOARD_BACKEND %q", backend)
	}
}

// buildRedis parses REDIS_CONNECTION_STRING, accepting either a redis URL or
// the Azure comma-separated form (host:port,password=...,ssl=true). Redis is
// optional; without it caching, idempotency and live events degrade
// gracefully.
func buildRedis() (*redis.Client, error) {
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		return nil, nil
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	return redis.NewClient(redisOpts), nil
}
