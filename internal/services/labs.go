package services

import (
	"context"

	"labreserve-client/internal/api"
	"labreserve-client/internal/models"
	"labreserve-client/internal/push"
)

type LabsSnapshot struct {
	Labs   []models.Lab `json:"labs"`
	Loaded bool         `json:"loaded"`
	Error  string       `json:"error,omitempty"`
}

// LabsView is the lab list. lab_update refetches it, lab_deleted drops the
// named lab.
type LabsView struct {
	*scope
	deps Deps
	labs *List[models.Lab]
}

func OpenLabsView(ctx context.Context, deps Deps) *LabsView {
	v := &LabsView{scope: newScope(), deps: deps}
	v.labs = NewList(func(l models.Lab) int64 { return l.ID }, v.Notify)
	v.on(deps.Push, models.EventLabUpdate, func(push.Event) {
		v.spawn("labs refetch", v.Refresh)
	})
	v.on(deps.Push, models.EventLabDeleted, func(e push.Event) {
		var payload models.LabEvent
		if err := e.Decode(&payload); err != nil {
			return
		}
		v.labs.Remove(payload.LabID)
	})
	_ = v.Refresh(ctx)
	return v
}

func (v *LabsView) Refresh(ctx context.Context) error {
	ticket := v.labs.Begin()
	labs, err := v.deps.Client.Labs(ctx)
	if err != nil {
		v.labs.Fail(ticket, err)
		return err
	}
	v.labs.Replace(ticket, labs)
	return nil
}

func (v *LabsView) Snapshot() LabsSnapshot {
	labs, loaded, err := v.labs.Snapshot()
	return LabsSnapshot{Labs: labs, Loaded: loaded, Error: UserMessage(err)}
}

// Create adds a lab and reloads the list on success.
func (v *LabsView) Create(ctx context.Context, input api.LabInput) error {
	if err := v.deps.Client.CreateLab(ctx, input); err != nil {
		return err
	}
	return v.Refresh(ctx)
}

// Delete removes the lab locally before asking the server; a rejected delete
// reloads the list.
func (v *LabsView) Delete(ctx context.Context, id int64) error {
	v.labs.Remove(id)
	if err := v.deps.Client.DeleteLab(ctx, id); err != nil {
		_ = v.Refresh(ctx)
		return err
	}
	return nil
}

func (v *LabsView) Close() {
	v.labs.Close()
	v.scope.Close()
}
