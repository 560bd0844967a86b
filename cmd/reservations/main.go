package main

import (
	"context"

	"reservd/internal/calendar"
	"reservd/internal/reservation/cache"
	"reservd/internal/reservation/handler"
	"reservd/internal/reservation/repository"
	"reservd/internal/reservation/service"
	"reservd/internal/reservation/validator"
	"reservd/pkg/app"
	"reservd/pkg/config"
	"reservd/pkg/kafka"
	kafka_config "reservd/pkg/kafka/config"
	kafka_middleware "reservd/pkg/kafka/middleware"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting reservations service")

	reservationService, availabilityService := initServices(cfg)

	appHandler := handler.NewRouter(
		handler.NewReservationHandler(reservationService, availabilityService, cfg.Log),
		handler.NewDashboardHandler(availabilityService, cfg.Log),
	)
	healthHandler := handler.NewHealthHandler(cfg.Client.Mongo, cfg.Log)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, appHandler, healthHandler)
	serverApp.Run()
}

func initServices(cfg *config.Config) (service.ReservationService, service.AvailabilityService) {
	reservationValidator := validator.NewReservationValidator(cfg.Log, cfg.MaxReservationDuration)
	reservationRepo := repository.NewMongoReservationRepository(cfg)
	resourceRepo := repository.NewMongoResourceRepository(cfg)
	lockRepo := repository.NewResourceLockRepository(cfg)

	statusCache := cache.NewStatusCache(cfg.Client.Redis, cfg.StatusCacheTTL, cfg.Log)

	reservationService := service.NewReservationService(
		reservationRepo,
		resourceRepo,
		lockRepo,
		reservationValidator,
		initCalendarSyncer(cfg, resourceRepo),
		initEventPublisher(cfg),
		statusCache,
		cfg,
	)

	availabilityService := service.NewAvailabilityService(
		reservationRepo,
		resourceRepo,
		statusCache,
		cfg,
	)

	cfg.Log.Info("Reservation services initialized", "database", cfg.MongoDatabaseName)
	return reservationService, availabilityService
}

func initCalendarSyncer(cfg *config.Config, resourceRepo repository.ResourceRepository) calendar.Syncer {
	if !cfg.CalendarEnabled {
		cfg.Log.Info("Calendar sync disabled")
		return calendar.NewDisabledSyncer(cfg.Log)
	}

	nameFor := func(ctx context.Context, id string) string {
		resource, err := resourceRepo.FindByID(ctx, id)
		if err != nil {
			cfg.Log.Warn("Failed to resolve resource name for calendar event", "resource_id", id, "error", err)
			return ""
		}
		return resource.Name
	}

	client := calendar.NewClient(cfg.CalendarBaseURL, cfg.CalendarID, cfg.CalendarToken, cfg.SyncTimeout)
	cfg.Log.Info("Calendar sync enabled", "base_url", cfg.CalendarBaseURL, "calendar_id", cfg.CalendarID)
	return calendar.NewSyncer(client, nameFor, cfg.SyncTimeout, cfg.Log)
}

func initEventPublisher(cfg *config.Config) service.EventPublisher {
	kafkaCfg := kafka_config.Load()
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, kafkaCfg.ReservationTopic, kafkaCfg.ReservationDLQTopic)
	if err != nil {
		cfg.Log.Warn("Kafka producer unavailable, reservation events disabled", "error", err)
		return service.NewNoopEventPublisher()
	}

	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	}

	return service.NewKafkaEventPublisher(producer, cfg.Log)
}
