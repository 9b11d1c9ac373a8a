package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	smpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	ph "github.com/Jaabir-Mahmud/folioxe/payment-service/internal/http"
	"github.com/Jaabir-Mahmud/folioxe/payment-service/internal/provider"
	"github.com/Jaabir-Mahmud/folioxe/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	port := getEnv("HTTP_PORT", "5001")
	successURL := getEnv("SUCCESS_URL", "http://localhost:5173/download?session_id={CHECKOUT_SESSION_ID}")
	cancelURL := getEnv("CANCEL_URL", "http://localhost:5173/cart")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	secretKey, err := loadStripeKey(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Stripe secret key not available: %v", err)
	}

	handler := ph.NewHandler(provider.NewStripe(secretKey, successURL, cancelURL), 20*time.Second, logger.New("payment-service"))
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      ph.NewRouter(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Payment service listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down payment service...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
	log.Println("Payment service stopped")
}

// loadStripeKey prefers STRIPE_SECRET_KEY and falls back to the latest version of
// STRIPE_SECRET_NAME in Secret Manager.
func loadStripeKey(ctx context.Context) (string, error) {
	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		return key, nil
	}
	name := os.Getenv("STRIPE_SECRET_NAME")
	projectID := os.Getenv("GCP_PROJECT_ID")
	if name == "" || projectID == "" {
		return "", errors.New("set STRIPE_SECRET_KEY or STRIPE_SECRET_NAME with GCP_PROJECT_ID")
	}

	sm, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("secretmanager.NewClient: %w", err)
	}
	defer sm.Close()

	res, err := sm.AccessSecretVersion(ctx, &smpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, name),
	})
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	key := strings.TrimSpace(string(res.GetPayload().GetData()))
	if key == "" {
		return "", fmt.Errorf("secret %s is empty", name)
	}
	return key, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
