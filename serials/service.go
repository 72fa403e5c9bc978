package serials

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/device-console/gateway"
	"github.com/pkg/errors"
)

// Messages shown to the operator
const (
	msgEmpty           = "Please fill out the field"
	msgBadPattern      = "Serial number must follow pattern: YYYYMM{AMP|API}XXXXXXB (e.g., 202505AMP123456B)"
	msgListed          = "Serial number already exists in the list!"
	msgAdded           = "Serial number added successfully!"
	msgUnknown         = "Unknown error occurred"
	msgGenericError    = "An error occurred"
	msgConflict        = "Serial number already exists"
	msgNetwork         = "Network error! Please check your connection."
	msgApproved        = "Serial number approved successfully!"
	msgApproveFailed   = "Failed to approve serial number"
	msgApproveError    = "Error approving serial number"
	msgAllocated       = "Serial number allocated successfully!"
	msgAllocateFailed  = "Failed to allocate serial number"
	msgAllocateError   = "Error allocating serial number"
	msgDeactivated     = "Deactivated successfully"
	msgDeactivateFail  = "Failed to deactivate"
	msgDeactivateGone  = "Serial number not found in database."
	msgDeactivateNoNet = "Network error while deactivating."
)

// Failure is an operation that did not succeed. Message is what the operator
// sees; Err is the underlying cause, if any.
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
	return msgGenericError
}

// Service runs serial number operations for one session
type Service struct {
	sender gateway.Sender
}

// NewService creates a service sending through sender, normally the visitor's gateway client
func NewService(sender gateway.Sender) *Service {
	return &Service{sender: sender}
}

// List returns every serial number known to the backend
func (s *Service) List(ctx context.Context) ([]Serial, error) {
	resp, err := s.sender.Send(ctx, gateway.Request{Method: http.MethodGet, Path: gateway.PathSerialNumbers})
	if err != nil {
		return nil, err
	}

	var rows []backendSerial
	if err := resp.Envelope.DecodeData(&rows); err != nil {
		return nil, err
	}
	list := make([]Serial, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.normalise())
	}
	return list, nil
}

// Validate runs the local checks for a new serial against the current list
func Validate(serial string, existing []Serial) error {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return &Failure{Message: msgEmpty}
	}
	if !Pattern.MatchString(serial) {
		return &Failure{Message: msgBadPattern}
	}
	for _, s := range existing {
		if s.SerialNumber == serial {
			return &Failure{Message: msgListed}
		}
	}
	return nil
}

// Add validates serial locally and registers it with the backend. It returns
// the success message. Session expiry is returned unwrapped.
func (s *Service) Add(ctx context.Context, serial string, existing []Serial) (string, error) {
	if err := Validate(serial, existing); err != nil {
		return "", err
	}

	resp, err := s.sender.Send(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   gateway.PathAddSerialNumber,
		Body:   map[string]string{"serialnumber": strings.TrimSpace(serial)},
	})
	if err != nil {
		if errors.Is(err, gateway.ErrSessionExpired) {
			return "", err
		}
		return "", addFailure(err)
	}
	if resp.Envelope.Status != gateway.StatusSuccess {
		return "", &Failure{Message: orDefault(resp.Envelope.Message, msgUnknown), Err: resp.Business(gateway.PathAddSerialNumber)}
	}
	return msgAdded, nil
}

func addFailure(err error) error {
	if gateway.IsNetwork(err) {
		return &Failure{Message: msgNetwork, Err: err}
	}
	var httpErr *gateway.HTTPError
	if !errors.As(err, &httpErr) {
		return &Failure{Message: msgGenericError, Err: err}
	}
	msg := orDefault(httpErr.Envelope.Message, msgGenericError)
	switch httpErr.StatusCode {
	case http.StatusBadRequest:
		return &Failure{Message: msg, Err: err}
	case http.StatusConflict:
		return &Failure{Message: msgConflict, Err: err}
	}
	return &Failure{Message: "Error: " + msg, Err: err}
}

// Approve marks serial as approved
func (s *Service) Approve(ctx context.Context, serial string) (string, error) {
	return s.transition(ctx, http.MethodPatch, gateway.PathApproveSerial, serial, msgApproved, msgApproveFailed, msgApproveError)
}

// Allocate marks an approved serial as allocated
func (s *Service) Allocate(ctx context.Context, serial string) (string, error) {
	return s.transition(ctx, http.MethodPost, gateway.PathAllocateSerial, serial, msgAllocated, msgAllocateFailed, msgAllocateError)
}

func (s *Service) transition(ctx context.Context, method, path, serial, okMsg, failMsg, errMsg string) (string, error) {
	resp, err := s.sender.Send(ctx, gateway.Request{
		Method: method,
		Path:   path,
		Body:   map[string]string{"serialnumber": serial},
	})
	if err != nil {
		if errors.Is(err, gateway.ErrSessionExpired) {
			return "", err
		}
		return "", &Failure{Message: errMsg, Err: err}
	}
	if resp.Envelope.Status != gateway.StatusSuccess {
		return "", &Failure{Message: failMsg, Err: resp.Business(path)}
	}
	return okMsg, nil
}

// Deactivate retires an approved, unallocated serial
func (s *Service) Deactivate(ctx context.Context, serial string) (string, error) {
	resp, err := s.sender.Send(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   gateway.PathDeactivateSerial,
		Body:   map[string]string{"serialnumber": serial},
	})
	if err != nil {
		if errors.Is(err, gateway.ErrSessionExpired) {
			return "", err
		}
		return "", deactivateFailure(err)
	}
	if resp.Envelope.Status != gateway.StatusSuccess {
		return "", &Failure{Message: orDefault(resp.Envelope.Message, msgDeactivateFail), Err: resp.Business(gateway.PathDeactivateSerial)}
	}
	return orDefault(resp.Envelope.Message, msgDeactivated), nil
}

func deactivateFailure(err error) error {
	var httpErr *gateway.HTTPError
	if !errors.As(err, &httpErr) {
		return &Failure{Message: msgDeactivateNoNet, Err: err}
	}
	switch httpErr.StatusCode {
	case http.StatusForbidden:
		return &Failure{Message: "Action Denied: " + httpErr.Envelope.Message, Err: err}
	case http.StatusNotFound:
		return &Failure{Message: msgDeactivateGone, Err: err}
	}
	return &Failure{Message: "Error: " + orDefault(httpErr.Envelope.Message, msgDeactivateFail), Err: err}
}

func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
