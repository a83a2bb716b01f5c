package services

import (
	"context"

	"labreserve-client/internal/api"
	"labreserve-client/internal/models"
)

type AdminsSnapshot struct {
	Admins []models.Identity `json:"admins"`
	Users  []models.Identity `json:"users"`
	Loaded bool              `json:"loaded"`
	Error  string            `json:"error,omitempty"`
}

func identityID(i models.Identity) int64 { return i.ID }

// AdminsView is the superuser screen: admin accounts plus every registered
// user. No push event covers accounts, so it only changes on refresh or after
// a local create.
type AdminsView struct {
	*scope
	deps   Deps
	admins *List[models.Identity]
	users  *List[models.Identity]
}

func OpenAdminsView(ctx context.Context, deps Deps) *AdminsView {
	v := &AdminsView{scope: newScope(), deps: deps}
	v.admins = NewList(identityID, v.Notify)
	v.users = NewList(identityID, v.Notify)
	_ = v.Refresh(ctx)
	return v
}

func (v *AdminsView) Refresh(ctx context.Context) error {
	adminsTicket := v.admins.Begin()
	usersTicket := v.users.Begin()
	admins, err := v.deps.Client.Admins(ctx)
	if err != nil {
		v.admins.Fail(adminsTicket, err)
	} else {
		v.admins.Replace(adminsTicket, admins)
	}
	users, usersErr := v.deps.Client.AuthUsers(ctx)
	if usersErr != nil {
		v.users.Fail(usersTicket, usersErr)
	} else {
		v.users.Replace(usersTicket, users)
	}
	if err != nil {
		return err
	}
	return usersErr
}

func (v *AdminsView) Create(ctx context.Context, input api.AdminInput) error {
	if err := v.deps.Client.CreateAdmin(ctx, input); err != nil {
		return err
	}
	return v.Refresh(ctx)
}

func (v *AdminsView) Snapshot() AdminsSnapshot {
	admins, adminsLoaded, adminsErr := v.admins.Snapshot()
	users, _, usersErr := v.users.Snapshot()
	snap := AdminsSnapshot{Admins: admins, Users: users, Loaded: adminsLoaded}
	if adminsErr != nil {
		snap.Error = UserMessage(adminsErr)
	} else if usersErr != nil {
		snap.Error = UserMessage(usersErr)
	}
	return snap
}

func (v *AdminsView) Close() {
	v.admins.Close()
	v.users.Close()
	v.scope.Close()
}
