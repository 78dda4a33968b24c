package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"example.com/salesync/internal/logging"
	"example.com/salesync/internal/sandbox"
)

func main() {
	logger := logging.New()

	addr := os.Getenv("SANDBOX_ADDR")
	if addr == "" {
		addr = ":8090"
	}
	clientID := envOr("SANDBOX_CLIENT_ID", "sandbox-client")
	clientSecret := envOr("SANDBOX_CLIENT_SECRET", "sandbox-secret")

	state := sandbox.NewState(clientID, clientSecret)
	seed(state)

	server := &http.Server{
		Addr:    addr,
		Handler: sandbox.NewServer(state, logger).Router(),
	}

	go func() {
		logger.Info("sandbox listening", "addr", addr, "client_id", clientID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("sandbox server error", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(server)
}

// seed loads a handful of purchases so a freshly started daemon pointed at
// the sandbox has something to sync: two regular sales, a refund, and one
// purchase with no resolvable customer.
func seed(state *sandbox.State) {
	now := time.Now().UTC()
	state.SeedPurchase(
		sandbox.Purchase{CreatedAt: now.Add(-48 * time.Hour), AmountCents: 19900},
		&sandbox.Customer{Name: "Jane Q Public", Email: "jane@example.com"},
		&sandbox.Offer{Title: "Intro to Bookkeeping"},
	)
	state.SeedPurchase(
		sandbox.Purchase{CreatedAt: now.Add(-24 * time.Hour), AmountCents: 4950},
		&sandbox.Customer{Name: "Sam Rivera", Email: "sam@example.com"},
		&sandbox.Offer{Title: "Payroll Basics"},
	)
	state.SeedPurchase(
		sandbox.Purchase{CreatedAt: now.Add(-12 * time.Hour), AmountCents: 19900, DeactivationReason: "refunded"},
		&sandbox.Customer{Name: "Jane Q Public", Email: "jane@example.com"},
		&sandbox.Offer{Title: "Intro to Bookkeeping"},
	)
	state.SeedPurchase(
		sandbox.Purchase{CreatedAt: now.Add(-6 * time.Hour), AmountCents: 9900},
		nil,
		&sandbox.Offer{Title: "Tax Season Prep"},
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func waitForShutdown(server *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "graceful shutdown failed: %v\n", err)
	}
}
