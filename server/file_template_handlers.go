package server

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

const (
	contentTypeHTML = "text/html; charset=utf-8"
	layoutTemplate  = "layout.html"
)

// Standalone pages and the content pages rendered inside the dashboard layout
var (
	standaloneTemplates = []string{"login.html", "signup.html"}
	contentTemplates    = []string{"home_content.html", "serials_content.html", "mappings_content.html", "mapping_edit_content.html"}
)

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a template from the embedded filesystem
func ParseTemplate(name string) (*template.Template, error) {
	content, err := fs.ReadFile(TemplateFilesFS(), name)
	if err != nil {
		return nil, err
	}
	return template.New(name).Parse(string(content))
}

// pageTemplates holds every template parsed once at startup
type pageTemplates struct {
	byName map[string]*template.Template
}

func parsePageTemplates() (*pageTemplates, error) {
	p := &pageTemplates{byName: make(map[string]*template.Template)}
	names := append([]string{layoutTemplate}, standaloneTemplates...)
	names = append(names, contentTemplates...)
	for _, name := range names {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, err
		}
		p.byName[name] = tmpl
	}
	return p, nil
}

func (p *pageTemplates) execute(name string, data any) ([]byte, error) {
	tmpl, ok := p.byName[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FlashData carries the ?message= and ?error= parameters of a redirect
type FlashData struct {
	Message string
	Error   string
}

func flashFrom(r *http.Request) FlashData {
	q := r.URL.Query()
	return FlashData{Message: q.Get("message"), Error: q.Get("error")}
}

// renderStandalone renders a page that has no dashboard chrome
func (s *Server) renderStandalone(w http.ResponseWriter, name string, data any) {
	out, err := s.pages.execute(name, data)
	if err != nil {
		log.Err(err).Str("template", name).Msg("Failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	_, _ = w.Write(out)
}

// renderDashboardPage renders content inside the dashboard layout with the sidebar
func (s *Server) renderDashboardPage(w http.ResponseWriter, r *http.Request, activePage, pageTitle, contentTemplate string, data any) {
	content, err := s.pages.execute(contentTemplate, data)
	if err != nil {
		log.Err(err).Str("template", contentTemplate).Msg("Failed to render content")
		http.Error(w, "Failed to render content", http.StatusInternalServerError)
		return
	}

	var userName string
	if m := markerFrom(r); m != nil {
		userName = m.User.DisplayName()
	}

	layout := map[string]interface{}{
		"AppName":     s.config.GetAppName(),
		"CompanyName": s.config.GetCompanyName(),
		"UserName":    userName,
		"ActivePage":  activePage,
		"PageTitle":   pageTitle,
		"Flash":       flashFrom(r),
		"Content":     template.HTML(content),
	}
	s.renderStandalone(w, layoutTemplate, layout)
}
