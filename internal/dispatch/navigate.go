package dispatch

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

type Screen string

const (
	ScreenLoading          Screen = "loading"
	ScreenLogin            Screen = "login"
	ScreenRegister         Screen = "register"
	ScreenStudentDashboard Screen = "student-dashboard"
	ScreenAdminPanel       Screen = "admin-panel"
	ScreenSuperuserPanel   Screen = "superuser-panel"
	ScreenLabs             Screen = "labs"
	ScreenLabDetail        Screen = "lab-detail"
	ScreenReservations     Screen = "reservations"
)

const (
	PathLogin     = "/login"
	PathRegister  = "/register"
	PathDashboard = "/dashboard"
	PathLabs      = "/labs"
	PathReserve   = "/reservations"
	PathAdmin     = "/admin"
	PathSuperuser = "/superuser"
)

// Outcome is what a navigation resolves to: either a screen to render or a
// redirect. LabID is set for ScreenLabDetail.
type Outcome struct {
	Screen   Screen `json:"screen,omitempty"`
	Redirect string `json:"redirect,omitempty"`
	LabID    int64  `json:"lab_id,omitempty"`
}

func (o Outcome) Allowed() bool {
	return o.Redirect == ""
}

func redirect(to string) Outcome {
	return Outcome{Redirect: to}
}

// Home is the landing screen of a principal.
func Home(p Principal) Screen {
	switch p.(type) {
	case Superuser:
		return ScreenSuperuserPanel
	case Admin:
		return ScreenAdminPanel
	case Student:
		return ScreenStudentDashboard
	case Anonymous:
		return ScreenLogin
	}
	panic(fmt.Sprintf("dispatch: unhandled principal %T", p))
}

// Navigate resolves target for p. Gated paths never resolve to their screen
// for a principal lacking the role: the redirect is decided here, before any
// view is mounted.
func Navigate(p Principal, target string) Outcome {
	clean := path.Clean("/" + strings.TrimSpace(target))
	_, anonymous := p.(Anonymous)

	switch clean {
	case PathLogin, PathRegister:
		if !anonymous {
			return redirect(PathDashboard)
		}
		if clean == PathLogin {
			return Outcome{Screen: ScreenLogin}
		}
		return Outcome{Screen: ScreenRegister}
	}
	if anonymous {
		return redirect(PathLogin)
	}

	switch clean {
	case "/":
		return redirect(PathDashboard)
	case PathDashboard:
		return Outcome{Screen: Home(p)}
	case PathLabs:
		return Outcome{Screen: ScreenLabs}
	case PathReserve:
		return Outcome{Screen: ScreenReservations}
	case PathAdmin:
		switch p.(type) {
		case Superuser:
			return Outcome{Screen: ScreenSuperuserPanel}
		case Admin:
			return Outcome{Screen: ScreenAdminPanel}
		}
		return redirect(PathDashboard)
	case PathSuperuser:
		if _, ok := p.(Superuser); ok {
			return Outcome{Screen: ScreenSuperuserPanel}
		}
		return redirect(PathDashboard)
	}

	if rest, ok := strings.CutPrefix(clean, PathLabs+"/"); ok && !strings.Contains(rest, "/") {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err == nil && id > 0 {
			return Outcome{Screen: ScreenLabDetail, LabID: id}
		}
	}
	return redirect(PathDashboard)
}
