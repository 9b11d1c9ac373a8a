package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/Jaabir-Mahmud/folioxe/pkg/logger"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/cart"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/catalog"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/checkout"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/docstore"
	h "github.com/Jaabir-Mahmud/folioxe/storefront/internal/http"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/objectstore"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/payment"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/publisher"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/repository"
	"github.com/Jaabir-Mahmud/folioxe/storefront/internal/slot"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"
)

type Config struct {
	HTTPPort                   string
	SlotBackend                string
	SQLitePath                 string
	RedisAddr                  string
	RedisPassword              string
	MongoURI                   string
	MongoDBName                string
	FirestoreProjectID         string
	FirestoreCredentialsFile   string
	FirebaseProjectID          string
	GCSBucket                  string
	DownloadURLTTL             time.Duration
	PaymentServiceURL          string
	KafkaBrokers               []string
	RequirePaymentConfirmation bool
	RequestTimeout             time.Duration
	CartIdleTTL                time.Duration
	OutboxInterval             time.Duration
	ShutdownTimeout            time.Duration
}

func loadConfig() *Config {
	cfg := &Config{
		HTTPPort:                   getEnv("HTTP_PORT", "8080"),
		SlotBackend:                getEnv("CART_SLOT_BACKEND", "sqlite"),
		SQLitePath:                 getEnv("CART_SQLITE_PATH", "./folioxe-cart.db"),
		RedisAddr:                  getEnv("REDIS_ADDR", ""),
		RedisPassword:              getEnv("REDIS_PASSWORD", ""),
		MongoURI:                   getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:                getEnv("MONGO_DB_NAME", "folioxe"),
		FirestoreProjectID:         getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreCredentialsFile:   getEnv("FIRESTORE_CREDENTIALS_FILE", ""),
		GCSBucket:                  getEnv("GCS_BUCKET", ""),
		DownloadURLTTL:             getDuration("DOWNLOAD_URL_TTL", objectstore.DefaultURLTTL),
		PaymentServiceURL:          getEnv("PAYMENT_SERVICE_URL", "http://localhost:8081"),
		RequirePaymentConfirmation: getBool("REQUIRE_PAYMENT_CONFIRMATION", true),
		RequestTimeout:             getDuration("REQUEST_TIMEOUT", 30*time.Second),
		CartIdleTTL:                getDuration("CART_IDLE_TTL", 30*time.Minute),
		OutboxInterval:             getDuration("OUTBOX_POLL_INTERVAL", time.Second),
		ShutdownTimeout:            10 * time.Second,
	}
	cfg.FirebaseProjectID = getEnv("FIREBASE_PROJECT_ID", cfg.FirestoreProjectID)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return d
}

func getBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using %t", key, raw, defaultValue)
		return defaultValue
	}
	return b
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := loadConfig()
	ctx := context.Background()
	appLog := logger.New("storefront")
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	var closers []io.Closer

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal("Redis connection failed:", err)
		}
		closers = append(closers, redisClient)
		log.Printf("Redis ping succeeded")
	}

	slots, err := openSlotStore(ctx, cfg, redisClient, &closers)
	if err != nil {
		log.Fatalf("Failed to open cart slot store: %v", err)
	}
	log.Printf("Cart slots stored in %s backend", cfg.SlotBackend)

	var docs docstore.Store
	if cfg.FirestoreProjectID != "" {
		fsClient, err := docstore.NewFirestoreClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile)
		if err != nil {
			log.Fatalf("Failed to connect to Firestore: %v", err)
		}
		closers = append(closers, fsClient)
		docs = docstore.NewFirestoreStore(fsClient)
		log.Printf("Connected to Firestore project %s", cfg.FirestoreProjectID)
	} else {
		docs = docstore.NewMemoryStore()
		log.Printf("FIRESTORE_PROJECT_ID not set, using in-memory document store")
	}

	if cfg.GCSBucket == "" {
		log.Fatal("GCS_BUCKET is required")
	}
	var gcsOpts []option.ClientOption
	if cfg.FirestoreCredentialsFile != "" {
		gcsOpts = append(gcsOpts, option.WithCredentialsFile(cfg.FirestoreCredentialsFile))
	}
	gcsClient, err := storage.NewClient(ctx, gcsOpts...)
	if err != nil {
		log.Fatalf("Failed to create storage client: %v", err)
	}
	closers = append(closers, gcsClient)

	var verifier h.TokenVerifier
	if cfg.FirebaseProjectID != "" {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.FirebaseProjectID}, gcsOpts...)
		if err != nil {
			log.Fatalf("Failed to init firebase app: %v", err)
		}
		authClient, err := app.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to init firebase auth: %v", err)
		}
		verifier = authClient
		log.Printf("Firebase Auth initialized")
	} else {
		log.Printf("FIREBASE_PROJECT_ID not set, all requests are anonymous")
	}

	var productCache catalog.ProductCache
	if redisClient != nil {
		productCache = catalog.NewRedisCache(redisClient)
	}
	purchases := repository.NewRepository(docs)
	payments := payment.NewClient(cfg.PaymentServiceURL, cfg.RequestTimeout)

	deps := checkout.Dependencies{
		Provider:  payments,
		Verifier:  payments,
		Resolver:  objectstore.NewGCS(gcsClient, cfg.GCSBucket, cfg.DownloadURLTTL),
		Purchases: purchases,
		Logger:    appLog,
	}
	if len(cfg.KafkaBrokers) > 0 {
		events := publisher.NewKafkaPublisher(cfg.KafkaBrokers...)
		closers = append(closers, events)
		go publisher.NewOutboxPoller(purchases, events, cfg.OutboxInterval, appLog).Run(bgCtx)
		log.Printf("Publishing purchase events to %v", cfg.KafkaBrokers)
	} else {
		log.Printf("KAFKA_BROKERS not set, purchases stay unpublished until a broker is configured")
	}
	checkoutCfg := checkout.DefaultConfig()
	checkoutCfg.RequirePaymentConfirmation = cfg.RequirePaymentConfirmation
	if !cfg.RequirePaymentConfirmation {
		log.Printf("WARNING: payment confirmation disabled, downloads are released on return without verification")
	}

	carts := cart.NewRegistry(slots, appLog)
	checkouts := checkout.NewRegistry(deps, checkoutCfg)
	carts.OnEvict(checkouts.Forget)
	go carts.RunEviction(bgCtx, time.Minute, cfg.CartIdleTTL)

	products := catalog.NewService(docs, productCache)
	if productCache != nil {
		stopWatch, err := products.Watch(bgCtx)
		if err != nil {
			log.Fatalf("Failed to watch products: %v", err)
		}
		closers = append(closers, closerFunc(func() error { stopWatch(); return nil }))
	}

	router := h.NewRouter(
		h.RouterConfig{RequestTimeout: cfg.RequestTimeout, Verifier: verifier, Logger: appLog},
		h.NewCartHandler(carts, products, cfg.RequestTimeout, appLog),
		h.NewCheckoutHandler(carts, checkouts, cfg.RequestTimeout, appLog),
		h.NewPurchaseHandler(purchases, cfg.RequestTimeout, appLog),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Storefront starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.Printf("close error: %v", err)
		}
	}
	log.Println("server exited")
}

func openSlotStore(ctx context.Context, cfg *Config, redisClient *redis.Client, closers *[]io.Closer) (slot.Store, error) {
	switch cfg.SlotBackend {
	case "sqlite":
		s, err := slot.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := s.RunMigrations(); err != nil {
			return nil, err
		}
		*closers = append(*closers, s)
		return s, nil
	case "redis":
		if redisClient == nil {
			return nil, errors.New("CART_SLOT_BACKEND=redis needs REDIS_ADDR")
		}
		return slot.NewRedisStore(redisClient, 0), nil
	case "mongo":
		db, err := slot.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		s := slot.NewMongoStore(db)
		if err := s.CreateIndexes(ctx); err != nil {
			return nil, err
		}
		*closers = append(*closers, closerFunc(func() error { return db.Client().Disconnect(context.Background()) }))
		return s, nil
	case "memory":
		return slot.NewMemoryStore(), nil
	}
	return nil, errors.New("unknown CART_SLOT_BACKEND " + cfg.SlotBackend)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
