package server

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/device-console/gateway"
	"github.com/jrsteele09/device-console/serials"
	"github.com/pkg/errors"
)

// SerialsPageData is the model for the serial number intake page
type SerialsPageData struct {
	Filter           serials.Filter
	Page             serials.Page
	Query            string
	PrevURL          string
	NextURL          string
	PageSizes        []int
	AllocationStates []serials.AllocationState
	LoadError        string
	Serial           string
}

// SerialsPageHandler lists serial numbers with the add form above them
func (s *Server) SerialsPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := markerFrom(r)
		filter := serials.ParseFilter(r.URL.Query())

		data := SerialsPageData{
			Filter:           filter,
			PageSizes:        serials.PageSizes,
			AllocationStates: serials.AllocationStates,
			Serial:           r.URL.Query().Get("serial"),
		}

		list, err := serials.NewService(s.sessionClient(m)).List(r.Context())
		if err != nil {
			if errors.Is(err, gateway.ErrSessionExpired) {
				s.handleSessionExpired(w, r, m.ID, err)
				return
			}
			data.LoadError = loadErrorText(err, "Failed to load serial numbers")
		}

		data.Page = filter.Apply(list)
		data.Query = filter.Query(data.Page.Page)
		if data.Page.HasPrev() {
			data.PrevURL = RouteSerials + "?" + filter.Query(data.Page.Page-1)
		}
		if data.Page.HasNext() {
			data.NextURL = RouteSerials + "?" + filter.Query(data.Page.Page+1)
		}
		s.renderDashboardPage(w, r, "serials", "Add Serial Numbers", "serials_content.html", data)
	}
}

// AddSerialHandler registers a new serial number
func (s *Server) AddSerialHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		m := markerFrom(r)
		back := serialsReturnPath(r.PostForm)
		serial := r.PostForm.Get("serialnumber")
		svc := serials.NewService(s.sessionClient(m))

		// The duplicate check is best effort; the backend rejects duplicates with 409 as well
		existing, err := svc.List(r.Context())
		if errors.Is(err, gateway.ErrSessionExpired) {
			s.handleSessionExpired(w, r, m.ID, err)
			return
		}

		msg, err := svc.Add(r.Context(), serial, existing)
		if err != nil {
			s.handleFailure(w, r, m, err, withFlash(back, "serial", serial), serials.Message(err))
			return
		}
		redirectWithMessage(w, r, back, msg)
	}
}

// SerialActionHandler approves, allocates or deactivates one serial number
func (s *Server) SerialActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		m := markerFrom(r)
		back := serialsReturnPath(r.PostForm)
		serial := r.PathValue("serial")
		svc := serials.NewService(s.sessionClient(m))

		var (
			msg string
			err error
		)
		switch r.PathValue("action") {
		case serialActionApprove:
			msg, err = svc.Approve(r.Context(), serial)
		case serialActionAllocate:
			msg, err = svc.Allocate(r.Context(), serial)
		case serialActionDeactivate:
			msg, err = svc.Deactivate(r.Context(), serial)
		default:
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		if err != nil {
			s.handleFailure(w, r, m, err, back, serials.Message(err))
			return
		}
		redirectWithMessage(w, r, back, msg)
	}
}

// loadErrorText is shown in place of a listing that could not be fetched
func loadErrorText(err error, fallback string) string {
	if gateway.IsNetwork(err) {
		return "Network error! Please check your connection."
	}
	return fallback
}

// serialsReturnPath rebuilds the listing URL the operator came from. Only known
// filter parameters survive.
func serialsReturnPath(form url.Values) string {
	q, err := url.ParseQuery(form.Get("return"))
	if err != nil {
		return RouteSerials
	}
	f := serials.ParseFilter(q)
	return RouteSerials + "?" + f.Query(f.Page)
}
