package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/checkin"
	"ms-checkin/internal/checkin/checkin_api"
	checkinredis "ms-checkin/internal/checkin/redis"
	"ms-checkin/internal/config"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/kafka"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/sse"
	"ms-checkin/internal/store"
	"ms-checkin/internal/ticket"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err == nil {
			err = sqldb.Ping()
		}
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

// applyBookingSync mirrors one booking lifecycle change into the
// local store. A schedule change bumps token_issued_at so the ticket
// issued for the old slot stops verifying.
func applyBookingSync(ctx context.Context, db *store.DB, log *logger.Logger, event models.BookingSyncEvent) {
	switch event.Type {
	case models.BookingSyncCreated:
		if err := db.CreateBooking(ctx, event.Booking); err != nil {
			log.Error("SYNC", fmt.Sprintf("Failed to create booking %s: %v", event.Booking.BookingID, err))
			return
		}
		log.LogDatabase("INSERT", "bookings", fmt.Sprintf("booking %s synced", event.Booking.BookingID))
	case models.BookingSyncUpdated:
		b := event.Booking
		if err := db.UpdateBookingSchedule(ctx, b.BookingID, b.Date, b.Time, b.DurationMinutes); err != nil {
			log.Error("SYNC", fmt.Sprintf("Failed to update booking %s: %v", b.BookingID, err))
			return
		}
		if err := db.SetTokenIssuedAt(ctx, b.BookingID, time.Now().Unix()); err != nil {
			log.Error("SYNC", fmt.Sprintf("Failed to supersede ticket for booking %s: %v", b.BookingID, err))
			return
		}
		log.LogTicket(fmt.Sprintf("schedule change superseded ticket for booking %s", b.BookingID))
	case models.BookingSyncCancelled:
		if err := db.CancelBooking(ctx, event.Booking.BookingID); err != nil {
			log.Error("SYNC", fmt.Sprintf("Failed to cancel booking %s: %v", event.Booking.BookingID, err))
			return
		}
		log.LogDatabase("UPDATE", "bookings", fmt.Sprintf("booking %s cancelled", event.Booking.BookingID))
	default:
		log.Warn("SYNC", fmt.Sprintf("Unknown booking sync event type %q", event.Type))
	}
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Check-In Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()
	if cfg.Ticket.Secret == "" {
		log.Fatal("CONFIG", "TICKET_SECRET_KEY not set")
	}

	ctx := context.Background()
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, os.Getenv("MIGRATIONS_DIR"))
	if err := runner.Up(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	log.Info("DATABASE", "Migrations applied")

	bookingStore := &store.DB{Bun: bunDB}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		requiredTopics := []string{
			cfg.Kafka.Topics.TicketIssued,
			cfg.Kafka.Topics.CheckInCompleted,
			cfg.Kafka.Topics.CheckOutCompleted,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, events will not be published")
	}

	if cfg.Kafka.Enabled {
		syncTopic := os.Getenv("KAFKA_TOPIC_BOOKING_SYNC")
		if syncTopic == "" {
			syncTopic = "ticketly.bookings.sync"
		}
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, syncTopic, "checkin-service")
		defer consumer.Close()
		go consumer.Start(func(event models.BookingSyncEvent) {
			applyBookingSync(ctx, bookingStore, log, event)
		})
		log.Info("KAFKA", fmt.Sprintf("Booking sync consumer started on %s", syncTopic))
	}

	keyring := ticket.NewKeyring(cfg.Ticket.Secret, cfg.Ticket.PriorSecret)
	issuer := ticket.NewIssuer(keyring, cfg.Ticket.ExpiryGrace)
	renderer := ticket.NewRenderer()

	coordinator := checkin.NewCoordinator(bookingStore, keyring, log)
	guard := checkinredis.NewGuard(redisClient)
	emitter := sse.NewCheckInEventEmitter()

	handler := &checkin_api.Handler{
		Coordinator: coordinator,
		Store:       bookingStore,
		Issuer:      issuer,
		Renderer:    renderer,
		Guard:       guard,
		Emitter:     emitter,
		Topics:      cfg.Kafka.Topics,
		Logger:      log,
	}
	if producer != nil {
		handler.Producer = producer
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// Dashboard endpoints stay public; scan and issuance require a
	// device token.
	r.Get("/api/checkin/venues/{venueID}/count", handler.CheckedInCount)
	r.Get("/api/checkin/venues/{venueID}/events", handler.Events)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Scanner.JWTSecret))
		r.Post("/api/checkin/scan", handler.Scan)
		r.Post("/api/checkin/tickets", handler.IssueTicket)
		r.Put("/api/checkin/tickets/{bookingID}", handler.ReissueTicket)
		r.Get("/api/checkin/tickets/{bookingID}/qr", handler.DownloadQR)
	})
	log.Info("ROUTER", "Check-in routes registered under /api/checkin")

	// No WriteTimeout: the SSE feed holds its response open.
	server := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Check-In Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Check-In Service shutdown complete")
	}
}
