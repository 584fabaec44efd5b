package httpx

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/joblink/joblink-web/internal/domain/auth"
)

//go:embed pages/*.html
var pageFS embed.FS

// PageRenderer renders the server-side HTML pages.
type PageRenderer struct {
	t      *template.Template
	logger *slog.Logger
}

// pageData is the model handed to every page template.
type pageData struct {
	Title   string
	State   domainauth.State
	User    *domainauth.User
	Role    domainauth.Role
	Refresh bool
	Error   string
	// CSRFToken is filled in by Render for the sign-out form.
	CSRFToken string
}

func newPageData(title string, st domainauth.State) pageData {
	return pageData{
		Title: title,
		State: st,
		User:  st.User,
		Role:  st.Role,
		// Resolving pages poll until the role lookup settles.
		Refresh: st.IsAuthenticated && st.Resolving,
	}
}

var pageFuncs = template.FuncMap{
	"displayName": displayName,
	"roleTitle":   roleTitle,
}

// NewPageRenderer parses the embedded page templates.
func NewPageRenderer(logger *slog.Logger) (*PageRenderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t, err := template.New("pages").Funcs(pageFuncs).ParseFS(pageFS, "pages/*.html")
	if err != nil {
		return nil, err
	}
	return &PageRenderer{t: t, logger: logger}, nil
}

// Render executes the named page into a buffer and writes it with status code.
// Template errors produce a plain 500 without partial output.
func (p *PageRenderer) Render(w http.ResponseWriter, r *http.Request, code int, name string, data pageData) {
	if data.CSRFToken == "" {
		data.CSRFToken = CSRFToken(r)
	}
	var buf bytes.Buffer
	if err := p.t.ExecuteTemplate(&buf, name, data); err != nil {
		p.logger.ErrorContext(r.Context(), "template render failed",
			slog.String("template", name),
			slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

func displayName(u *domainauth.User) string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

func roleTitle(r domainauth.Role) string {
	switch r {
	case domainauth.RoleJobseeker:
		return "Jobseeker"
	case domainauth.RoleCompany:
		return "Company"
	case domainauth.RoleAdmin:
		return "Admin"
	default:
		return "Account"
	}
}
