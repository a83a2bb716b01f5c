package dispatch

import (
	"context"
	"errors"
	"testing"

	"labreserve-client/internal/api"
	"labreserve-client/internal/models"
	"labreserve-client/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSession struct {
	mock.Mock
	changed func(*models.Identity)
}

func (m *MockSession) Restore(ctx context.Context) (models.Identity, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.Identity), args.Error(1)
}

func (m *MockSession) Login(ctx context.Context, email, password string) (models.Identity, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(models.Identity), args.Error(1)
}

func (m *MockSession) Register(ctx context.Context, input api.RegisterInput) (models.Identity, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(models.Identity), args.Error(1)
}

func (m *MockSession) Logout() {
	m.Called()
}

func (m *MockSession) OnChange(fn func(*models.Identity)) func() {
	m.changed = fn
	return func() { m.changed = nil }
}

func recordTransitions(d *Dispatcher) *[]Transition {
	var seen []Transition
	d.OnTransition(func(t Transition) { seen = append(seen, t) })
	return &seen
}

func TestDispatcher_StartsLoading(t *testing.T) {
	d := New(new(MockSession))
	assert.Equal(t, StateLoading, d.State())
	assert.Equal(t, Outcome{Screen: ScreenLoading}, d.Navigate("/admin"))
}

func TestDispatcher_ResolveWithoutSession(t *testing.T) {
	s := new(MockSession)
	s.On("Restore", mock.Anything).Return(models.Identity{}, session.ErrNoSession).Once()
	d := New(s)
	seen := recordTransitions(d)

	assert.Equal(t, StateAnonymous, d.Resolve(context.Background()))
	require.Len(t, *seen, 1)
	assert.Equal(t, Transition{From: StateLoading, To: StateAnonymous, Principal: Anonymous{}}, (*seen)[0])
	assert.Equal(t, Outcome{Redirect: PathLogin}, d.Navigate("/dashboard"))
	s.AssertExpectations(t)
}

func TestDispatcher_ResolveRestoresRole(t *testing.T) {
	s := new(MockSession)
	s.On("Restore", mock.Anything).Return(superuser.Identity, nil).Once()
	d := New(s)

	assert.Equal(t, StateSuperuser, d.Resolve(context.Background()))
	assert.Equal(t, superuser, d.Principal())
	assert.Equal(t, Outcome{Screen: ScreenSuperuserPanel}, d.Navigate("/admin"))
}

func TestDispatcher_RestoreFailureIsAnonymous(t *testing.T) {
	s := new(MockSession)
	s.On("Restore", mock.Anything).Return(models.Identity{}, errors.New("network down")).Once()
	d := New(s)

	assert.Equal(t, StateAnonymous, d.Resolve(context.Background()))
}

func TestDispatcher_LoginAndLogout(t *testing.T) {
	s := new(MockSession)
	s.On("Restore", mock.Anything).Return(models.Identity{}, session.ErrNoSession).Once()
	s.On("Login", mock.Anything, "bo@lab.test", "secret1").Return(admin.Identity, nil).Once()
	s.On("Logout").Return().Once()
	d := New(s)
	d.Resolve(context.Background())
	seen := recordTransitions(d)

	state, err := d.Login(context.Background(), "bo@lab.test", "secret1")
	require.NoError(t, err)
	assert.Equal(t, StateAdmin, state)

	d.Logout()
	assert.Equal(t, StateAnonymous, d.State())

	require.Len(t, *seen, 2)
	assert.Equal(t, StateAdmin, (*seen)[0].To)
	assert.Equal(t, StateAnonymous, (*seen)[1].To)
	s.AssertExpectations(t)
}

func TestDispatcher_LoginFailureKeepsState(t *testing.T) {
	s := new(MockSession)
	s.On("Restore", mock.Anything).Return(models.Identity{}, session.ErrNoSession).Once()
	rejected := &api.Error{Kind: api.KindUnauthorized, Status: 401, Message: "Invalid credentials"}
	s.On("Login", mock.Anything, "ana@lab.test", "wrong").Return(models.Identity{}, rejected).Once()
	d := New(s)
	d.Resolve(context.Background())

	state, err := d.Login(context.Background(), "ana@lab.test", "wrong")
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, StateAnonymous, state)
}

func TestDispatcher_FollowsSessionReset(t *testing.T) {
	s := new(MockSession)
	s.On("Restore", mock.Anything).Return(student.Identity, nil).Once()
	d := New(s)
	d.Resolve(context.Background())
	seen := recordTransitions(d)

	// The store clears itself after a 401 and reports the change.
	s.changed(nil)

	assert.Equal(t, StateAnonymous, d.State())
	require.Len(t, *seen, 1)
	assert.Equal(t, StateStudent, (*seen)[0].From)
}

func TestDispatcher_SameIdentityIsNotATransition(t *testing.T) {
	s := new(MockSession)
	s.On("Restore", mock.Anything).Return(student.Identity, nil).Once()
	d := New(s)
	d.Resolve(context.Background())
	seen := recordTransitions(d)

	identity := student.Identity
	s.changed(&identity)
	assert.Empty(t, *seen)

	other := models.Identity{ID: 77, Name: "Dee", Role: models.RoleStudent}
	s.changed(&other)
	require.Len(t, *seen, 1, "a different user in the same role still transitions")
	assert.Equal(t, StateStudent, (*seen)[0].From)
	assert.Equal(t, StateStudent, (*seen)[0].To)
}

func TestDispatcher_UnknownRoleLogsOut(t *testing.T) {
	s := new(MockSession)
	s.On("Restore", mock.Anything).Return(models.Identity{ID: 5, Role: "janitor"}, nil).Once()
	s.On("Logout").Return().Once()
	d := New(s)

	assert.Equal(t, StateAnonymous, d.Resolve(context.Background()))
	s.AssertExpectations(t)
}

func TestDispatcher_Close(t *testing.T) {
	s := new(MockSession)
	d := New(s)
	require.NotNil(t, s.changed)
	d.Close()
	assert.Nil(t, s.changed)
}
