package api

import (
	"time"

	"labreserve-client/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(labHoursValidation, LabInput{})
	v.RegisterStructValidation(reservationSpanValidation, ReservationInput{})
	return v
}

// Validate runs the client-side checks for an input before it is sent.
func Validate(input any) error {
	if err := validate.Struct(input); err != nil {
		return validationError(err)
	}
	return nil
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterInput struct {
	Name     string      `json:"name" validate:"required"`
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required,min=6"`
	Role     models.Role `json:"role,omitempty" validate:"omitempty,eq=student"`
}

type AdminInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LabInput struct {
	Name        string `json:"name" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Capacity    int    `json:"capacity" validate:"gte=0"`
	Description string `json:"description"`
	OpeningTime string `json:"opening_time" validate:"required,datetime=15:04"`
	ClosingTime string `json:"closing_time" validate:"required,datetime=15:04"`
}

type ComputerInput struct {
	Name         string                `json:"name" validate:"required"`
	Hostname     string                `json:"hostname" validate:"required,hostname_rfc1123"`
	Specs        string                `json:"specs,omitempty"`
	Status       models.ComputerStatus `json:"status,omitempty" validate:"omitempty,oneof=available maintenance reserved"`
	LaboratoryID int64                 `json:"laboratory_id" validate:"gt=0"`
}

type ReservationInput struct {
	ComputerID int64            `json:"computer_id" validate:"gt=0"`
	StartTime  models.Timestamp `json:"start_time"`
	EndTime    models.Timestamp `json:"end_time"`
}

type statusInput struct {
	Status models.ComputerStatus `json:"status"`
}

func labHoursValidation(sl validator.StructLevel) {
	lab := sl.Current().Interface().(LabInput)
	opening, err1 := time.Parse("15:04", lab.OpeningTime)
	closing, err2 := time.Parse("15:04", lab.ClosingTime)
	if err1 != nil || err2 != nil {
		return
	}
	if !opening.Before(closing) {
		sl.ReportError(lab.ClosingTime, "ClosingTime", "closing_time", "gtfield", "OpeningTime")
	}
}

func reservationSpanValidation(sl validator.StructLevel) {
	res := sl.Current().Interface().(ReservationInput)
	if res.StartTime.IsZero() {
		sl.ReportError(res.StartTime, "StartTime", "start_time", "required", "")
		return
	}
	if !res.StartTime.Before(res.EndTime.Time) {
		sl.ReportError(res.EndTime, "EndTime", "end_time", "gtfield", "StartTime")
	}
}
