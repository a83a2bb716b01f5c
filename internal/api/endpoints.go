package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"labreserve-client/internal/models"
)

type LoginResult struct {
	Token string          `json:"token"`
	User  models.Identity `json:"user"`
}

func (c *Client) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	if err := Validate(input); err != nil {
		return LoginResult{}, err
	}
	var out LoginResult
	err := c.do(ctx, request{method: http.MethodPost, route: "/auth/login", path: "/auth/login", body: input, public: true}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, input RegisterInput) error {
	if input.Role == "" {
		input.Role = models.RoleStudent
	}
	if err := Validate(input); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodPost, route: "/auth/register", path: "/auth/register", body: input, public: true}, nil)
}

func (c *Client) Profile(ctx context.Context) (models.Identity, error) {
	var out models.Identity
	err := c.do(ctx, request{method: http.MethodGet, route: "/auth/profile", path: "/auth/profile"}, &out)
	return out, err
}

func (c *Client) AuthUsers(ctx context.Context) ([]models.Identity, error) {
	var out []models.Identity
	err := c.do(ctx, request{method: http.MethodGet, route: "/auth/users", path: "/auth/users"}, &out)
	return out, err
}

func (c *Client) User(ctx context.Context, id int64) (models.Identity, error) {
	var out models.Identity
	err := c.do(ctx, request{method: http.MethodGet, route: "/users/{id}", path: idPath("/users/%d", id)}, &out)
	return out, err
}

func (c *Client) Admins(ctx context.Context) ([]models.Identity, error) {
	var out []models.Identity
	query := url.Values{"role": []string{string(models.RoleAdmin)}}
	err := c.do(ctx, request{method: http.MethodGet, route: "/users", path: "/users", query: query}, &out)
	return out, err
}

func (c *Client) CreateAdmin(ctx context.Context, input AdminInput) error {
	if err := Validate(input); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodPost, route: "/users/admin", path: "/users/admin", body: input}, nil)
}

func (c *Client) Labs(ctx context.Context) ([]models.Lab, error) {
	var out []models.Lab
	err := c.do(ctx, request{method: http.MethodGet, route: "/labs", path: "/labs"}, &out)
	return out, err
}

func (c *Client) Lab(ctx context.Context, id int64) (models.Lab, error) {
	var out models.Lab
	err := c.do(ctx, request{method: http.MethodGet, route: "/labs/{id}", path: idPath("/labs/%d", id)}, &out)
	return out, err
}

func (c *Client) CreateLab(ctx context.Context, input LabInput) error {
	if err := Validate(input); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodPost, route: "/labs", path: "/labs", body: input}, nil)
}

func (c *Client) DeleteLab(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, route: "/labs/{id}", path: idPath("/labs/%d", id)}, nil)
}

func (c *Client) Computers(ctx context.Context) ([]models.Computer, error) {
	var out []models.Computer
	err := c.do(ctx, request{method: http.MethodGet, route: "/computers", path: "/computers"}, &out)
	return out, err
}

func (c *Client) AvailableComputers(ctx context.Context) ([]models.Computer, error) {
	var out []models.Computer
	err := c.do(ctx, request{method: http.MethodGet, route: "/computers/available", path: "/computers/available"}, &out)
	return out, err
}

func (c *Client) LabComputers(ctx context.Context, labID int64) ([]models.Computer, error) {
	var out []models.Computer
	err := c.do(ctx, request{method: http.MethodGet, route: "/computers/laboratory/{labId}", path: idPath("/computers/laboratory/%d", labID)}, &out)
	return out, err
}

func (c *Client) Computer(ctx context.Context, id int64) (models.Computer, error) {
	var out models.Computer
	err := c.do(ctx, request{method: http.MethodGet, route: "/computers/{id}", path: idPath("/computers/%d", id)}, &out)
	return out, err
}

func (c *Client) CreateComputer(ctx context.Context, input ComputerInput) error {
	if input.Status == "" {
		input.Status = models.ComputerAvailable
	}
	if err := Validate(input); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodPost, route: "/computers", path: "/computers", body: input}, nil)
}

func (c *Client) UpdateComputerStatus(ctx context.Context, id int64, status models.ComputerStatus) error {
	if !status.Valid() {
		return &Error{Kind: KindValidation, Message: fmt.Sprintf("invalid computer status %q", status)}
	}
	return c.do(ctx, request{method: http.MethodPut, route: "/computers/{id}/status", path: idPath("/computers/%d/status", id), body: statusInput{Status: status}}, nil)
}

func (c *Client) DeleteComputer(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, route: "/computers/{id}", path: idPath("/computers/%d", id)}, nil)
}

func (c *Client) Reservations(ctx context.Context) ([]models.Reservation, error) {
	var out []models.Reservation
	err := c.do(ctx, request{method: http.MethodGet, route: "/reservations", path: "/reservations"}, &out)
	return out, err
}

func (c *Client) AllReservations(ctx context.Context) ([]models.Reservation, error) {
	var out []models.Reservation
	err := c.do(ctx, request{method: http.MethodGet, route: "/reservations/all", path: "/reservations/all"}, &out)
	return out, err
}

func (c *Client) UserReservations(ctx context.Context, userID int64) ([]models.Reservation, error) {
	var out []models.Reservation
	err := c.do(ctx, request{method: http.MethodGet, route: "/reservations/user/{userId}", path: idPath("/reservations/user/%d", userID)}, &out)
	return out, err
}

// OccupiedHours asks for the start hours already booked on computerID during
// the UTC calendar day of date.
func (c *Client) OccupiedHours(ctx context.Context, computerID int64, date time.Time) ([]int, error) {
	query := url.Values{
		"computer_id": []string{strconv.FormatInt(computerID, 10)},
		"date":        []string{date.UTC().Format("2006-01-02")},
	}
	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, route: "/reservations/occupied-hours", path: "/reservations/occupied-hours", query: query}, &raw); err != nil {
		return nil, err
	}
	return decodeOccupiedHours(raw)
}

func decodeOccupiedHours(raw json.RawMessage) ([]int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	var hours []int
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &hours); err != nil {
			return nil, &Error{Kind: KindServer, Message: "malformed occupied hours", Err: err}
		}
		return hours, nil
	}
	var wrapped struct {
		OccupiedHours []int `json:"occupied_hours"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, &Error{Kind: KindServer, Message: "malformed occupied hours", Err: err}
	}
	return wrapped.OccupiedHours, nil
}

func (c *Client) CreateReservation(ctx context.Context, input ReservationInput) (models.Reservation, error) {
	if err := Validate(input); err != nil {
		return models.Reservation{}, err
	}
	var out models.Reservation
	err := c.do(ctx, request{method: http.MethodPost, route: "/reservations", path: "/reservations", body: input}, &out)
	return out, err
}

func (c *Client) ConfirmReservation(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodPut, route: "/reservations/{id}/confirm", path: idPath("/reservations/%d/confirm", id)}, nil)
}

func (c *Client) CancelReservation(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodPut, route: "/reservations/{id}/cancel", path: idPath("/reservations/%d/cancel", id)}, nil)
}

func (c *Client) DeleteReservation(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, route: "/reservations/{id}", path: idPath("/reservations/%d", id)}, nil)
}
