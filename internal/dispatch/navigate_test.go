package dispatch

import (
	"testing"

	"labreserve-client/internal/models"

	"github.com/stretchr/testify/assert"
)

var (
	student   = Student{Identity: models.Identity{ID: 1, Name: "Ana", Role: models.RoleStudent}}
	admin     = Admin{Identity: models.Identity{ID: 2, Name: "Bo", Role: models.RoleAdmin}}
	superuser = Superuser{Identity: models.Identity{ID: 3, Name: "Cy", Role: models.RoleSuperuser}}
)

func TestNavigate(t *testing.T) {
	testCases := []struct {
		name      string
		principal Principal
		target    string
		expected  Outcome
	}{
		{"anonymous on login", Anonymous{}, "/login", Outcome{Screen: ScreenLogin}},
		{"anonymous on register", Anonymous{}, "/register", Outcome{Screen: ScreenRegister}},
		{"anonymous on dashboard goes to login", Anonymous{}, "/dashboard", Outcome{Redirect: PathLogin}},
		{"anonymous on admin goes to login", Anonymous{}, "/admin", Outcome{Redirect: PathLogin}},
		{"anonymous on lab detail goes to login", Anonymous{}, "/labs/4", Outcome{Redirect: PathLogin}},
		{"student on login goes to dashboard", student, "/login", Outcome{Redirect: PathDashboard}},
		{"student dashboard", student, "/dashboard", Outcome{Screen: ScreenStudentDashboard}},
		{"admin dashboard is the admin panel", admin, "/dashboard", Outcome{Screen: ScreenAdminPanel}},
		{"superuser dashboard is the superuser panel", superuser, "/dashboard", Outcome{Screen: ScreenSuperuserPanel}},
		{"student on admin is redirected", student, "/admin", Outcome{Redirect: PathDashboard}},
		{"admin on admin", admin, "/admin", Outcome{Screen: ScreenAdminPanel}},
		{"superuser on admin gets the superuser panel", superuser, "/admin", Outcome{Screen: ScreenSuperuserPanel}},
		{"admin on superuser is redirected", admin, "/superuser", Outcome{Redirect: PathDashboard}},
		{"student on superuser is redirected", student, "/superuser", Outcome{Redirect: PathDashboard}},
		{"superuser on superuser", superuser, "/superuser", Outcome{Screen: ScreenSuperuserPanel}},
		{"labs", student, "/labs", Outcome{Screen: ScreenLabs}},
		{"lab detail", student, "/labs/42", Outcome{Screen: ScreenLabDetail, LabID: 42}},
		{"lab detail with trailing slash", admin, "/labs/42/", Outcome{Screen: ScreenLabDetail, LabID: 42}},
		{"lab detail with bad id", student, "/labs/abc", Outcome{Redirect: PathDashboard}},
		{"lab detail with zero id", student, "/labs/0", Outcome{Redirect: PathDashboard}},
		{"reservations", student, "/reservations", Outcome{Screen: ScreenReservations}},
		{"root", student, "/", Outcome{Redirect: PathDashboard}},
		{"unknown path", admin, "/nowhere", Outcome{Redirect: PathDashboard}},
		{"dot segments are cleaned", student, "/labs/../admin", Outcome{Redirect: PathDashboard}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Navigate(tc.principal, tc.target))
		})
	}
}

func TestPrincipalFor(t *testing.T) {
	p, err := PrincipalFor(nil)
	assert.NoError(t, err)
	assert.Equal(t, Anonymous{}, p)

	p, err = PrincipalFor(&models.Identity{ID: 3, Role: models.RoleSuperuser})
	assert.NoError(t, err)
	assert.Equal(t, StateSuperuser, StateOf(p))

	_, err = PrincipalFor(&models.Identity{ID: 9, Role: "janitor"})
	assert.Error(t, err)
}

func TestStateText(t *testing.T) {
	text, err := StateAdmin.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "admin", string(text))
	assert.Equal(t, "loading", StateLoading.String())
}
