package gateway_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jrsteele09/device-console/gateway"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// scriptedTransport answers API calls with the statuses in api, in order,
// and the refresh endpoint with refresh.
type scriptedTransport struct {
	api          []int
	refresh      int
	apiCalls     int
	refreshCalls int
}

func (s *scriptedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	status := s.refresh
	if strings.HasSuffix(r.URL.Path, gateway.PathRefresh) {
		s.refreshCalls++
	} else {
		status = s.api[min(s.apiCalls, len(s.api)-1)]
		s.apiCalls++
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"status":"success"}`)),
		Request:    r,
	}, nil
}

func TestSend_ReplayBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	statuses := gen.OneConstOf(http.StatusOK, http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError)
	paths := gen.OneConstOf(gateway.PathSerialNumbers, gateway.PathLogin, gateway.PathVerifyAuth, gateway.PathLogout, gateway.PathSignup)

	properties.Property("a request is dispatched at most twice and renewed at most once", prop.ForAll(
		func(first, replay, refresh int, path string) bool {
			rt := &scriptedTransport{api: []int{first, replay}, refresh: refresh}
			gw, err := gateway.New("http://backend.test/api", gateway.WithTransport(rt))
			if err != nil {
				return false
			}

			resp, err := gw.Client(nil, "").Send(context.Background(), gateway.Request{Method: http.MethodGet, Path: path})

			dispatches, renewals := rt.apiCalls, rt.refreshCalls
			if dispatches > 2 || renewals > 1 {
				return false
			}

			shouldRenew := first == http.StatusUnauthorized && !gw.Excluded(path)
			if !shouldRenew {
				return renewals == 0 && dispatches == 1 && (err == nil) == (first == http.StatusOK)
			}
			if renewals != 1 {
				return false
			}
			if refresh != http.StatusOK {
				return dispatches == 1 && errors.Is(err, gateway.ErrSessionExpired)
			}
			if dispatches != 2 || errors.Is(err, gateway.ErrSessionExpired) {
				return false
			}
			if replay == http.StatusOK {
				return err == nil && resp.Attempts == 2 && resp.Refreshed
			}
			return gateway.StatusCode(err) == replay
		},
		statuses,
		statuses,
		statuses,
		paths,
	))

	properties.TestingRun(t)
}
