package main

import (
	bookinghandler "fleetdesk/internal/bookings/handler"
	bookingrepo "fleetdesk/internal/bookings/repository"
	bookingservice "fleetdesk/internal/bookings/service"
	"fleetdesk/internal/bookings/validator"
	"fleetdesk/internal/health"
	"fleetdesk/internal/notify"
	userhandler "fleetdesk/internal/users/handler"
	userrepo "fleetdesk/internal/users/repository"
	userservice "fleetdesk/internal/users/service"
	vehiclehandler "fleetdesk/internal/vehicles/handler"
	vehiclerepo "fleetdesk/internal/vehicles/repository"
	vehicleservice "fleetdesk/internal/vehicles/service"
	"fleetdesk/pkg/app"
	"fleetdesk/pkg/config"
	"fleetdesk/pkg/kafka"
	"fleetdesk/pkg/metrics"
)

func main() {
	cfg := config.Load("dispatch")
	cfg.SetMongo()

	m := metrics.NewMetrics("fleetdesk")

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic, cfg.KafkaDLQTopic)
	if err != nil {
		cfg.Log.Fatal("failed to create kafka producer", "error", err)
	}
	defer producer.Close()

	var sms notify.SMSSender = notify.NewNoopSMSSender()
	if cfg.SMSGatewayURL != "" {
		sms = notify.NewGatewaySMSSender(cfg.SMSGatewayURL, cfg.SMSGatewayToken)
	}
	bookings := bookingrepo.NewMongoBookingRepository(cfg)
	slotLocks := bookingrepo.NewMongoSlotLockRepository(cfg)
	vehicles := vehiclerepo.NewMongoVehicleRepository(cfg)
	users := userrepo.NewMongoUserRepository(cfg)

	subscriptions := notify.NewMongoSubscriptionRepository(cfg)
	dispatcher := notify.NewDispatcher(producer, sms, users, m, cfg.Log)

	bookingSvc := bookingservice.NewBookingService(
		bookings,
		vehicles,
		users,
		slotLocks,
		validator.NewBookingValidator(),
		dispatcher,
		m,
		cfg.Log,
	)
	vehicleSvc := vehicleservice.NewVehicleService(vehicles, cfg.Log)
	userSvc := userservice.NewUserService(users, cfg)

	application := app.NewApplication(cfg,
		bookinghandler.NewBookingHandler(bookingSvc, cfg.Log),
		vehiclehandler.NewVehicleHandler(vehicleSvc, cfg.Log),
		userhandler.NewUserHandler(userSvc, cfg.Log),
		notify.NewSubscriptionHandler(subscriptions, cfg.Log),
		health.NewHandler(cfg.Client.Mongo, cfg.Log),
	)
	application.Run()
}
