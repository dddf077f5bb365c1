package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"tree-order-service/handlers"
	"tree-order-service/internal/auth"
	"tree-order-service/internal/consul"
	"tree-order-service/internal/notify"
	"tree-order-service/internal/orders"
	"tree-order-service/internal/payments"
	"tree-order-service/internal/stores/kafka"
	"tree-order-service/internal/stores/postgres"
	"tree-order-service/pkg/logkey"
)

const serviceName = "tree-order-service"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := startApp(); err != nil {
		slog.Error("failed to start service", slog.String(logkey.Error, err.Error()))
		os.Exit(1)
	}
}

func startApp() error {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Required collaborators: database and Stripe. Missing credentials here
	// are a startup failure, not something to limp along without.
	db, err := postgres.OpenDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.RunMigrations(db); err != nil {
		return err
	}

	ordersConf, err := orders.NewConf(db)
	if err != nil {
		return err
	}

	stripeConf, err := payments.NewStripeConfFromEnv()
	if err != nil {
		return err
	}

	keys, err := auth.NewKeysFromEnv()
	if err != nil {
		return err
	}

	// Optional collaborators degrade with a warning.
	var paypalGw handlers.PayPalGateway
	if paypalClient, err := payments.NewPayPalClientFromEnv(); err != nil {
		slog.Warn("paypal disabled", slog.String(logkey.Error, err.Error()))
	} else {
		paypalGw = paypalClient
	}

	var notifier payments.Notifier
	if mailer, err := notify.NewMailerFromEnv(); err != nil {
		slog.Warn("mail notifications disabled", slog.String(logkey.Error, err.Error()))
	} else {
		queue := notify.NewQueue(mailer, os.Getenv("ADMIN_EMAIL"), 64)
		go queue.Start(ctx)
		notifier = queue
	}

	var producer payments.Producer
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers == "" {
		slog.Warn("kafka disabled, KAFKA_BROKERS not set")
	} else {
		kafkaConf, err := kafka.NewConf(brokers)
		if err != nil {
			return err
		}
		defer kafkaConf.Close()
		producer = kafkaConf
	}

	pending := orders.NewPendingStore()
	completer, err := payments.NewCompleter(pending, ordersConf, notifier, producer)
	if err != nil {
		return err
	}

	h := handlers.NewHandler(ordersConf, pending, completer, stripeConf, paypalGw)

	origins := strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",")
	if len(origins) == 1 && origins[0] == "" {
		origins = []string{
			"https://deinweihnachstbaum.de",
			"https://www.deinweihnachstbaum.de",
			"https://api.deinweihnachstbaum.de",
			"http://localhost:5173",
		}
	}

	api := handlers.API(os.Getenv("SERVICE_ENDPOINT_PREFIX"), keys, h, origins)

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	if addr := os.Getenv("CONSUL_HTTP_ADDR"); addr != "" {
		client, err := consul.NewClient()
		if err != nil {
			return err
		}
		portNum, err := strconv.Atoi(port)
		if err != nil {
			return err
		}
		serviceID := serviceName + "-" + uuid.NewString()
		host := os.Getenv("SERVICE_HOST")
		if host == "" {
			host = "localhost"
		}
		if err := consul.RegisterService(client, serviceID, serviceName, host, portNum); err != nil {
			return err
		}
		defer func() {
			if err := consul.DeregisterService(client, serviceID); err != nil {
				slog.Error("consul deregistration failed", slog.String(logkey.Error, err.Error()))
			}
		}()
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      api,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("service listening", slog.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}
