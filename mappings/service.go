package mappings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/device-console/gateway"
	"github.com/pkg/errors"
)

const (
	msgCreated       = "Mapping created successfully"
	msgUpdated       = "Mapping updated successfully"
	msgDeleted       = "Mapping deleted successfully"
	msgDuplicate     = "A mapping for this serial number already exists"
	msgNotFound      = "Mapping not found"
	msgFailed        = "Operation failed"
	msgNetwork       = "Network error! Please check your connection."
	msgMissingFields = "Missing values in input"
)

// Failure carries the operator facing message for a failed operation
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return fmt.Sprintf("%s: %v", f.Message, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Message returns the operator facing text for err
func Message(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return msgFailed
}

// Service runs mapping operations for one session
type Service struct {
	sender gateway.Sender
}

// NewService creates a service sending through sender
func NewService(sender gateway.Sender) *Service {
	return &Service{sender: sender}
}

// List returns one page of mappings matching q
func (s *Service) List(ctx context.Context, q Query) (Result, error) {
	resp, err := s.sender.Send(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   gateway.PathCustomerMappings,
		Query:  q.Values(),
	})
	if err != nil {
		return Result{Query: q}, err
	}
	if err := resp.Business(gateway.PathCustomerMappings); err != nil {
		return Result{Query: q}, &Failure{Message: orDefault(resp.Envelope.Message, msgFailed), Err: err}
	}

	var rows []Mapping
	if err := resp.Envelope.DecodeData(&rows); err != nil {
		return Result{Query: q}, err
	}
	return Result{Rows: rows, TotalCount: resp.Envelope.TotalCount, Query: q}, nil
}

// Get finds the mapping for serial
func (s *Service) Get(ctx context.Context, serial string) (Mapping, error) {
	q := DefaultQuery()
	q.SerialNumber = serial
	res, err := s.List(ctx, q)
	if err != nil {
		return Mapping{}, err
	}
	for _, m := range res.Rows {
		if m.SerialNumber == serial {
			return m, nil
		}
	}
	return Mapping{}, &Failure{Message: msgNotFound}
}

// Create registers a new mapping
func (s *Service) Create(ctx context.Context, f Form) (string, error) {
	if missing := f.Missing(); len(missing) > 0 {
		return "", &Failure{Message: msgMissingFields + ", " + strings.Join(missing, ", ")}
	}
	return s.write(ctx, http.MethodPost, gateway.PathCreateMapping, f.createBody(), msgCreated)
}

// Update replaces the mapping for f.SerialNumber
func (s *Service) Update(ctx context.Context, f Form) (string, error) {
	if missing := f.Missing(); len(missing) > 0 {
		return "", &Failure{Message: msgMissingFields + ", " + strings.Join(missing, ", ")}
	}
	return s.write(ctx, http.MethodPost, gateway.PathUpdateMapping, f.updateBody(), msgUpdated)
}

// Delete removes the mapping for serial
func (s *Service) Delete(ctx context.Context, serial string) (string, error) {
	if strings.TrimSpace(serial) == "" {
		return "", &Failure{Message: msgNotFound}
	}
	path := fmt.Sprintf(gateway.PathDeleteMappingFmt, url.PathEscape(serial))
	return s.write(ctx, http.MethodDelete, path, nil, msgDeleted)
}

func (s *Service) write(ctx context.Context, method, path string, body any, okMsg string) (string, error) {
	resp, err := s.sender.Send(ctx, gateway.Request{Method: method, Path: path, Body: body})
	if err != nil {
		if errors.Is(err, gateway.ErrSessionExpired) {
			return "", err
		}
		return "", writeFailure(err)
	}
	if err := resp.Business(path); err != nil {
		return "", &Failure{Message: orDefault(resp.Envelope.Message, msgFailed), Err: err}
	}
	return orDefault(resp.Envelope.Message, okMsg), nil
}

func writeFailure(err error) error {
	if gateway.IsNetwork(err) {
		return &Failure{Message: msgNetwork, Err: err}
	}
	var httpErr *gateway.HTTPError
	if !errors.As(err, &httpErr) {
		return &Failure{Message: msgFailed, Err: err}
	}
	switch httpErr.StatusCode {
	case http.StatusConflict:
		return &Failure{Message: orDefault(httpErr.Envelope.Message, msgDuplicate), Err: err}
	case http.StatusNotFound:
		return &Failure{Message: orDefault(httpErr.Envelope.Message, msgNotFound), Err: err}
	}
	return &Failure{Message: orDefault(httpErr.Envelope.Text(), msgFailed), Err: err}
}

func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
