package validator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "fleetdesk/pkg/errors"
	"fleetdesk/pkg/model"
)

// BookingValidator runs struct-tag validation plus the cross-field
// invariants tags cannot express.
type BookingValidator struct {
	validate *validator.Validate
}

func NewBookingValidator() *BookingValidator {
	return &BookingValidator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (v *BookingValidator) ValidateBooking(booking *model.Booking) error {
	if err := v.validate.Struct(booking); err != nil {
		return translateValidationErrors(err)
	}

	if err := validateSubject(booking); err != nil {
		return err
	}
	if err := validateSharedFields(booking); err != nil {
		return err
	}
	if booking.Status == model.StatusMerged && booking.MergedInto == "" {
		return apperrors.Validation("a merged booking must reference the booking it was merged into", nil)
	}
	return nil
}

func (v *BookingValidator) ValidateMergeDetails(details *model.MergeDetails) error {
	if details == nil {
		return nil
	}
	if err := v.validate.Struct(details); err != nil {
		return translateValidationErrors(err)
	}
	return nil
}

// validateSubject enforces that exactly one of the registered-user and
// guest identities is present.
func validateSubject(booking *model.Booking) error {
	if booking.Kind == model.KindShared {
		return nil
	}

	hasUser := booking.UserID != ""
	hasGuest := booking.GuestName != "" || booking.GuestPhone != ""

	switch {
	case hasUser && hasGuest:
		return apperrors.Validation("booking cannot have both a user and guest details", nil)
	case booking.Kind == model.KindGuest && (booking.GuestName == "" || booking.GuestPhone == ""):
		return apperrors.Validation("guest bookings require guestName and guestPhone", nil)
	case booking.Kind == model.KindRegistered && !hasUser:
		return apperrors.Validation("registered bookings require a userId", nil)
	}
	return nil
}

// validateSharedFields checks that shared-ride bookings carry a coherent
// passenger list and that members equals the sum over passengers.
func validateSharedFields(booking *model.Booking) error {
	if !booking.IsSharedRide {
		if len(booking.Passengers) > 0 {
			return apperrors.Validation("only shared rides may carry passengers", nil)
		}
		return nil
	}

	if len(booking.Passengers) == 0 {
		return apperrors.Validation("a shared ride requires at least one passenger", nil)
	}

	total := 0
	for _, p := range booking.Passengers {
		total += p.Members
	}
	if total != booking.Members {
		return apperrors.Validation(
			fmt.Sprintf("members (%d) must equal the sum of passenger members (%d)", booking.Members, total), nil)
	}
	return nil
}

func translateValidationErrors(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apperrors.Wrap(err, apperrors.CodeValidation, "invalid booking payload", http.StatusUnprocessableEntity)
	}

	messages := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		messages = append(messages, fieldMessage(fe))
	}
	return apperrors.Wrap(err, apperrors.CodeValidation, strings.Join(messages, "; "), http.StatusUnprocessableEntity)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be %s or greater", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "mongodb":
		return fmt.Sprintf("%s must be a valid object ID", fe.Field())
	case "e164":
		return fmt.Sprintf("%s must be a valid E.164 phone number", fe.Field())
	default:
		return fmt.Sprintf("%s failed validation on %s", fe.Field(), fe.Tag())
	}
}
