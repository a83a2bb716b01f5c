package services

import (
	"fmt"
	"testing"
	"time"

	"labreserve-client/internal/api"
	"labreserve-client/internal/apitest"
	"labreserve-client/internal/models"
	"labreserve-client/internal/push"

	"github.com/stretchr/testify/require"
)

type staticToken string

func (t staticToken) Token() string { return string(t) }

type testEnv struct {
	srv    *apitest.Server
	client *api.Client
	bus    *push.Bus
	user   models.Identity
	lab    models.Lab
	now    time.Time
}

func newEnv(t *testing.T, srv *apitest.Server, role models.Role) *testEnv {
	t.Helper()
	user := srv.AddUser("Test "+string(role), fmt.Sprintf("%s@lab.test", role), "secret1", role)
	lab := srv.AddLab(models.Lab{Name: "Lab A", Location: "B-101", Capacity: 20, OpeningTime: "07:00", ClosingTime: "19:00"})
	return &testEnv{
		srv:    srv,
		client: api.NewClient(srv.URL, nil, staticToken(srv.Token(user.ID))),
		bus:    push.NewBus(),
		user:   user,
		lab:    lab,
		now:    time.Date(2030, 5, 14, 8, 30, 0, 0, time.UTC),
	}
}

func (e *testEnv) deps() Deps {
	return Deps{Client: e.client, Push: e.bus, Now: func() time.Time { return e.now }}
}

func (e *testEnv) publish(t *testing.T, name string, payload any) {
	t.Helper()
	event, err := push.NewEvent(name, payload)
	require.NoError(t, err)
	e.bus.Publish(event)
}
