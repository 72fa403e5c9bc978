package server

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/device-console/gateway"
	"github.com/jrsteele09/device-console/mappings"
	"github.com/pkg/errors"
)

// SortLink is one sortable column header
type SortLink struct {
	Label     string
	URL       string
	Active    bool
	Ascending bool
}

// MappingsPageData is the model for the mapping listing page
type MappingsPageData struct {
	Result    mappings.Result
	Query     mappings.Query
	SortLinks []SortLink
	PrevURL   string
	NextURL   string
	PageLabel int
	LoadError string
	Form      mappings.Form
}

// MappingEditPageData is the model for the mapping edit page
type MappingEditPageData struct {
	Form   mappings.Form
	Action string
	Delete string
}

// MappingsPageHandler lists mappings with filters, sorting and paging
func (s *Server) MappingsPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := markerFrom(r)
		q := mappings.ParseQuery(r.URL.Query())

		data := MappingsPageData{
			Query: q,
			Form:  mappings.FormFromValues(r.URL.Query()),
		}

		res, err := mappings.NewService(s.sessionClient(m)).List(r.Context(), q)
		if err != nil {
			if errors.Is(err, gateway.ErrSessionExpired) {
				s.handleSessionExpired(w, r, m.ID, err)
				return
			}
			data.LoadError = loadErrorText(err, "Failed to load mappings")
			var f *mappings.Failure
			if errors.As(err, &f) {
				data.LoadError = f.Message
			}
		}
		data.Result = res
		data.PageLabel = q.PageNumber + 1
		data.SortLinks = sortLinks(q)
		if res.HasPrev() {
			data.PrevURL = mappingsURL(q.WithPage(q.PageNumber - 1))
		}
		if res.HasNext() {
			data.NextURL = mappingsURL(q.WithPage(q.PageNumber + 1))
		}
		s.renderDashboardPage(w, r, "mappings", "Map Devices", "mappings_content.html", data)
	}
}

// CreateMappingHandler adds a mapping from the create form
func (s *Server) CreateMappingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		m := markerFrom(r)
		form := mappings.FormFromValues(r.PostForm)

		msg, err := mappings.NewService(s.sessionClient(m)).Create(r.Context(), form)
		if err != nil {
			s.handleFailure(w, r, m, err, RouteMappings+"?"+formValues(form).Encode(), mappings.Message(err))
			return
		}
		redirectWithMessage(w, r, RouteMappings, msg)
	}
}

// EditMappingPageHandler renders the edit form for one mapping
func (s *Server) EditMappingPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := markerFrom(r)
		serial := r.PathValue("serial")

		mapping, err := mappings.NewService(s.sessionClient(m)).Get(r.Context(), serial)
		if err != nil {
			s.handleFailure(w, r, m, err, RouteMappings, mappings.Message(err))
			return
		}

		escaped := url.PathEscape(serial)
		s.renderDashboardPage(w, r, "mappings", "Edit Mapping", "mapping_edit_content.html", MappingEditPageData{
			Form:   mapping.Form(),
			Action: RouteMappings + "/" + escaped,
			Delete: RouteMappings + "/" + escaped + "/delete",
		})
	}
}

// UpdateMappingHandler saves the edit form. The serial number comes from the path.
func (s *Server) UpdateMappingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		m := markerFrom(r)
		serial := r.PathValue("serial")
		form := mappings.FormFromValues(r.PostForm)
		form.SerialNumber = serial

		msg, err := mappings.NewService(s.sessionClient(m)).Update(r.Context(), form)
		if err != nil {
			s.handleFailure(w, r, m, err, RouteMappings+"/"+url.PathEscape(serial)+"/edit", mappings.Message(err))
			return
		}
		redirectWithMessage(w, r, RouteMappings, msg)
	}
}

// DeleteMappingHandler removes one mapping
func (s *Server) DeleteMappingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := markerFrom(r)
		msg, err := mappings.NewService(s.sessionClient(m)).Delete(r.Context(), r.PathValue("serial"))
		if err != nil {
			s.handleFailure(w, r, m, err, RouteMappings, mappings.Message(err))
			return
		}
		redirectWithMessage(w, r, RouteMappings, msg)
	}
}

func mappingsURL(q mappings.Query) string {
	return RouteMappings + "?" + q.Values().Encode()
}

func sortLinks(q mappings.Query) []SortLink {
	links := make([]SortLink, 0, len(mappings.SortColumns))
	for index := 1; index <= len(mappings.SortColumns); index++ {
		label, ok := mappings.SortColumns[index]
		if !ok {
			continue
		}
		links = append(links, SortLink{
			Label:     label,
			URL:       mappingsURL(q.WithSort(index)),
			Active:    q.SortIndex == index,
			Ascending: q.SortDirection == mappings.SortAscending,
		})
	}
	return links
}

// formValues keeps the create form filled in after a failed submission
func formValues(f mappings.Form) url.Values {
	v := url.Values{}
	v.Set("serialnumber", f.SerialNumber)
	v.Set("uniqueIdentifier", f.UniqueIdentifier)
	v.Set("customerCode", f.CustomerCode)
	v.Set("customerName", f.CustomerName)
	v.Set("company", f.Company)
	v.Set("devicetype", f.DeviceType)
	v.Set("licenseUrl", f.LicenseURL)
	v.Set("versionDetails", f.VersionDetails)
	return v
}
