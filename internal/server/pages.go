package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/meetingbrief/internal/meeting"
)

//go:embed templates/*.html
var templateFS embed.FS

// AppTitle is shown in the page header and the document title.
const AppTitle = "Meeting Brief"

// loginErrors maps the error codes the auth handlers redirect with onto
// user-facing text. Unknown codes are not echoed back.
var loginErrors = map[string]string{
	"invalid_email":       "Enter a valid email address.",
	"google_login_failed": "Google sign-in failed. Please try again.",
}

type pages struct {
	index *template.Template
	login *template.Template
}

type indexData struct {
	Title       string
	Email       string
	Payload     meeting.Payload
	Error       string
	RelayRemote bool
	MaxUpcoming int
	MaxPast     int
}

type loginData struct {
	Title         string
	Error         string
	GoogleEnabled bool
}

var templateFuncs = template.FuncMap{
	"when":  formatWhen,
	"names": attendeeNames,
}

func parsePages() (*pages, error) {
	parse := func(page string) (*template.Template, error) {
		t, err := template.New(page).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", page, err)
		}
		return t, nil
	}

	index, err := parse("index.html")
	if err != nil {
		return nil, err
	}
	login, err := parse("login.html")
	if err != nil {
		return nil, err
	}
	return &pages{index: index, login: login}, nil
}

// render executes t into a buffer first so a template error never leaves a
// half-written page behind.
func render(w http.ResponseWriter, t *template.Template, status int, data any) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// formatWhen renders an RFC3339 timestamp for display. Unparsable values are
// shown as-is.
func formatWhen(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Format("Mon 2 Jan 2006, 15:04 MST")
}

func attendeeNames(attendees []meeting.Attendee) string {
	names := make([]string, 0, len(attendees))
	for _, a := range attendees {
		names = append(names, a.Name())
	}
	return strings.Join(names, ", ")
}
