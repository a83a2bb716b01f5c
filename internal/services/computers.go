package services

import (
	"context"

	"labreserve-client/internal/api"
	"labreserve-client/internal/models"
	"labreserve-client/internal/push"
)

type ComputersSnapshot struct {
	Computers []ComputerRow `json:"computers"`
	Loaded    bool          `json:"loaded"`
	Error     string        `json:"error,omitempty"`
}

type ComputerRow struct {
	models.Computer
	Description string `json:"description,omitempty"`
}

func computerRows(items []models.Computer) []ComputerRow {
	rows := make([]ComputerRow, 0, len(items))
	for _, c := range items {
		rows = append(rows, ComputerRow{Computer: c, Description: c.SpecsDescription()})
	}
	return rows
}

func computerID(c models.Computer) int64 { return c.ID }

// applyComputerEvents wires the status and deletion events shared by every
// computer list. Status changes touch only computers already listed.
func applyComputerEvents(s *scope, src push.Source, list *List[models.Computer]) {
	s.on(src, models.EventComputerStatusUpdated, func(e push.Event) {
		var payload models.ComputerStatusEvent
		if err := e.Decode(&payload); err != nil || !payload.NewStatus.Valid() {
			return
		}
		list.Update(payload.ComputerID, func(c *models.Computer) {
			c.Status = payload.NewStatus
		})
	})
	s.on(src, models.EventComputerDeleted, func(e push.Event) {
		var payload models.ComputerDeletedEvent
		if err := e.Decode(&payload); err != nil {
			return
		}
		list.Remove(payload.ComputerID)
	})
}

// ComputersView is the admin computer inventory across all labs.
type ComputersView struct {
	*scope
	deps      Deps
	computers *List[models.Computer]
}

func OpenComputersView(ctx context.Context, deps Deps) *ComputersView {
	v := &ComputersView{scope: newScope(), deps: deps}
	v.computers = NewList(computerID, v.Notify)
	applyComputerEvents(v.scope, deps.Push, v.computers)
	v.on(deps.Push, models.EventLabDeleted, func(e push.Event) {
		var payload models.LabEvent
		if err := e.Decode(&payload); err != nil {
			return
		}
		v.computers.RemoveWhere(func(c models.Computer) bool { return c.LaboratoryID == payload.LabID })
	})
	_ = v.Refresh(ctx)
	return v
}

func (v *ComputersView) Refresh(ctx context.Context) error {
	ticket := v.computers.Begin()
	items, err := v.deps.Client.Computers(ctx)
	if err != nil {
		v.computers.Fail(ticket, err)
		return err
	}
	v.computers.Replace(ticket, items)
	return nil
}

func (v *ComputersView) Snapshot() ComputersSnapshot {
	items, loaded, err := v.computers.Snapshot()
	return ComputersSnapshot{Computers: computerRows(items), Loaded: loaded, Error: UserMessage(err)}
}

func (v *ComputersView) Create(ctx context.Context, input api.ComputerInput) error {
	if err := v.deps.Client.CreateComputer(ctx, input); err != nil {
		return err
	}
	return v.Refresh(ctx)
}

// SetStatus shows the new status at once; a rejected change reloads the list.
func (v *ComputersView) SetStatus(ctx context.Context, id int64, status models.ComputerStatus) error {
	if !status.Valid() {
		return ErrBadRequest("Unknown computer status")
	}
	v.computers.Update(id, func(c *models.Computer) { c.Status = status })
	if err := v.deps.Client.UpdateComputerStatus(ctx, id, status); err != nil {
		_ = v.Refresh(ctx)
		return err
	}
	return nil
}

func (v *ComputersView) Delete(ctx context.Context, id int64) error {
	v.computers.Remove(id)
	if err := v.deps.Client.DeleteComputer(ctx, id); err != nil {
		_ = v.Refresh(ctx)
		return err
	}
	return nil
}

func (v *ComputersView) Close() {
	v.computers.Close()
	v.scope.Close()
}

type LabDetailSnapshot struct {
	Lab       *models.Lab   `json:"lab,omitempty"`
	Computers []ComputerRow `json:"computers"`
	Loaded    bool          `json:"loaded"`
	Gone      bool          `json:"gone"`
	Error     string        `json:"error,omitempty"`
}

// LabDetailView is one lab and its computers, the entry point for booking.
// A lab_deleted for this lab, or a 404 on load, marks it gone.
type LabDetailView struct {
	*scope
	deps      Deps
	labID     int64
	lab       *Value[models.Lab]
	computers *List[models.Computer]
	gone      *Value[bool]
}

func OpenLabDetailView(ctx context.Context, deps Deps, labID int64) *LabDetailView {
	v := &LabDetailView{scope: newScope(), deps: deps, labID: labID}
	v.lab = NewValue[models.Lab](v.Notify)
	v.gone = NewValue[bool](v.Notify)
	v.computers = NewList(computerID, v.Notify)
	applyComputerEvents(v.scope, deps.Push, v.computers)
	v.on(deps.Push, models.EventLabUpdate, func(push.Event) {
		v.spawn("lab detail refetch", v.Refresh)
	})
	v.on(deps.Push, models.EventLabDeleted, func(e push.Event) {
		var payload models.LabEvent
		if err := e.Decode(&payload); err != nil || payload.LabID != v.labID {
			return
		}
		v.markGone()
	})
	_ = v.Refresh(ctx)
	return v
}

func (v *LabDetailView) LabID() int64 {
	return v.labID
}

func (v *LabDetailView) Refresh(ctx context.Context) error {
	labTicket := v.lab.Begin()
	listTicket := v.computers.Begin()
	lab, err := v.deps.Client.Lab(ctx, v.labID)
	if err != nil {
		if api.IsNotFound(err) {
			v.markGone()
		}
		v.lab.Fail(labTicket, err)
		v.computers.Fail(listTicket, err)
		return err
	}
	v.lab.Set(labTicket, lab)
	items, err := v.deps.Client.LabComputers(ctx, v.labID)
	if err != nil {
		v.computers.Fail(listTicket, err)
		return err
	}
	v.computers.Replace(listTicket, items)
	return nil
}

// markGone empties the computer list under a fresh ticket so a refetch that
// started earlier cannot bring the computers back.
func (v *LabDetailView) markGone() {
	v.gone.Set(v.gone.Begin(), true)
	v.computers.Replace(v.computers.Begin(), nil)
}

// Computer returns a listed computer of this lab.
func (v *LabDetailView) Computer(id int64) (models.Computer, bool) {
	return v.computers.Get(id)
}

func (v *LabDetailView) Snapshot() LabDetailSnapshot {
	items, loaded, listErr := v.computers.Snapshot()
	lab, labLoaded, labErr := v.lab.Get()
	gone, _, _ := v.gone.Get()
	snap := LabDetailSnapshot{Computers: computerRows(items), Loaded: loaded && labLoaded, Gone: gone}
	if labLoaded && !gone {
		snap.Lab = &lab
	}
	if gone {
		snap.Error = "This lab no longer exists"
	} else if labErr != nil {
		snap.Error = UserMessage(labErr)
	} else {
		snap.Error = UserMessage(listErr)
	}
	return snap
}

func (v *LabDetailView) Close() {
	v.lab.Close()
	v.gone.Close()
	v.computers.Close()
	v.scope.Close()
}
