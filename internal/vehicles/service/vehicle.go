package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	"fleetdesk/internal/vehicles/repository"
	apperrors "fleetdesk/pkg/errors"
	"fleetdesk/pkg/logger"
	"fleetdesk/pkg/model"
	"fleetdesk/pkg/sanitizer"
)

type VehicleService interface {
	Create(ctx context.Context, vehicle *model.Vehicle, actor model.Principal) (*model.Vehicle, error)
	GetByID(ctx context.Context, id string) (*model.Vehicle, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Vehicle, int64, error)
	SetStatus(ctx context.Context, id string, status model.VehicleStatus, actor model.Principal) error
}

type vehicleService struct {
	repo     repository.VehicleRepository
	validate *validator.Validate
	log      *logger.Logger
}

func NewVehicleService(repo repository.VehicleRepository, log *logger.Logger) VehicleService {
	return &vehicleService{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

func (s *vehicleService) Create(ctx context.Context, vehicle *model.Vehicle, actor model.Principal) (*model.Vehicle, error) {
	if !actor.IsManager() {
		return nil, apperrors.Forbidden("only managers can register vehicles")
	}

	vehicle.Name = sanitizer.SanitizeName(vehicle.Name)
	vehicle.DriverName = sanitizer.SanitizeName(vehicle.DriverName)
	if vehicle.DriverNumber != "" {
		if normalized := sanitizer.SanitizePhone(vehicle.DriverNumber); normalized != "" {
			vehicle.DriverNumber = normalized
		}
	}
	if vehicle.Status == "" {
		vehicle.Status = model.VehicleAvailable
	}

	if err := s.validate.Struct(vehicle); err != nil {
		return nil, apperrors.Validation("invalid vehicle payload", map[string]any{"error": err.Error()})
	}

	if err := s.repo.Create(ctx, vehicle); err != nil {
		return nil, s.mapError(err)
	}
	s.log.Info("vehicle registered", "vehicle_id", vehicle.ID, "name", vehicle.Name)
	return vehicle, nil
}

func (s *vehicleService) GetByID(ctx context.Context, id string) (*model.Vehicle, error) {
	vehicle, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}
	return vehicle, nil
}

func (s *vehicleService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Vehicle, int64, error) {
	vehicles, err := s.repo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, s.mapError(err)
	}
	return vehicles, total, nil
}

func (s *vehicleService) SetStatus(ctx context.Context, id string, status model.VehicleStatus, actor model.Principal) error {
	if !actor.IsManager() {
		return apperrors.Forbidden("only managers can change vehicle status")
	}
	switch status {
	case model.VehicleAvailable, model.VehicleAssigned, model.VehicleInService:
	default:
		return apperrors.InvalidInput("invalid vehicle status: " + string(status))
	}
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *vehicleService) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case apperrors.IsAppError(err):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("vehicle")
	case errors.Is(err, repository.ErrInvalidID):
		return apperrors.InvalidInput("invalid vehicle ID format")
	default:
		return apperrors.Internal("An unexpected error occurred", err)
	}
}
