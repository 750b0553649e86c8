package model

import "time"

// VehicleStatus tracks whether a vehicle is free to be assigned.
type VehicleStatus string

const (
	VehicleAvailable VehicleStatus = "available"
	VehicleAssigned  VehicleStatus = "assigned"
	VehicleInService VehicleStatus = "in service"
)

type Vehicle struct {
	ID           string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name         string        `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Number       string        `json:"number" bson:"number" validate:"required,min=2,max=20"`
	Status       VehicleStatus `json:"status" bson:"status" validate:"required,oneof=available assigned 'in service'"`
	DriverName   string        `json:"driverName,omitempty" bson:"driver_name,omitempty"`
	DriverNumber string        `json:"driverNumber,omitempty" bson:"driver_number,omitempty"`
	CreatedAt    time.Time     `json:"createdAt" bson:"created_at"`
}
