package models

// Push event names. The server only ever emits "computer_status_updated";
// the older "computer_status_update" spelling is not listened to.
const (
	EventLabUpdate                = "lab_update"
	EventLabDeleted               = "lab_deleted"
	EventComputerStatusUpdated    = "computer_status_updated"
	EventComputerDeleted          = "computer_deleted"
	EventReservationUpdate        = "reservation_update"
	EventReservationStatusUpdated = "reservation_status_updated"
)

type LabEvent struct {
	LabID int64 `json:"lab_id"`
}

type ComputerStatusEvent struct {
	ComputerID   int64          `json:"computer_id"`
	LaboratoryID int64          `json:"laboratory_id"`
	OldStatus    ComputerStatus `json:"old_status"`
	NewStatus    ComputerStatus `json:"new_status"`
}

type ComputerDeletedEvent struct {
	ComputerID   int64 `json:"computer_id"`
	LaboratoryID int64 `json:"laboratory_id,omitempty"`
}

type ReservationStatusEvent struct {
	ReservationID int64             `json:"reservation_id"`
	UserID        int64             `json:"user_id"`
	NewStatus     ReservationStatus `json:"new_status"`
}
