package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"reservd/pkg/logger"
	"reservd/pkg/model"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type ReservationValidator struct {
	validate    *validator.Validate
	logger      *logger.Logger
	maxDuration time.Duration
}

func NewReservationValidator(log *logger.Logger, maxDuration time.Duration) *ReservationValidator {
	v := validator.New()

	log.Info("Reservation validator initialized successfully", "max_duration", maxDuration)

	return &ReservationValidator{
		validate:    v,
		logger:      log,
		maxDuration: maxDuration,
	}
}

// ValidateInput checks a booking request. Range errors are reported
// separately from struct-tag errors so the service can map them to the
// range-specific failure kind.
func (v *ReservationValidator) ValidateInput(input *model.ReservationInput) error {
	if err := v.validate.Struct(input); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	return nil
}

// ValidateRange enforces the temporal rules: strictly positive duration and
// the configured maximum length.
func (v *ReservationValidator) ValidateRange(rng model.TimeRange) error {
	if !rng.Valid() {
		return ValidationErrors{
			ValidationError{
				Field:   "EndAt",
				Message: "end_at must be strictly after start_at",
			},
		}
	}

	if rng.Duration() > v.maxDuration {
		return ValidationErrors{
			ValidationError{
				Field:   "EndAt",
				Message: fmt.Sprintf("reservation duration exceeds maximum of %s", v.maxDuration),
			},
		}
	}

	return nil
}

func (v *ReservationValidator) ValidateUpdate(update *model.ReservationUpdate) error {
	if err := v.validate.Struct(update); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	// A range change must carry both endpoints so the new range is always
	// checked as a whole.
	if (update.StartAt == nil) != (update.EndAt == nil) {
		return ValidationErrors{
			ValidationError{
				Field:   "StartAt",
				Message: "start_at and end_at must be provided together",
			},
		}
	}

	return nil
}

func (v *ReservationValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "uuid4":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
