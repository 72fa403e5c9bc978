package gateway

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Envelope statuses used by the serial and mapping endpoints
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusDuplicate = "duplicate"
	StatusNotFound  = "not_found"
)

// Envelope is the JSON body every backend endpoint answers with. Which fields
// are present depends on the endpoint.
type Envelope struct {
	Status        string          `json:"status,omitempty"`
	Message       string          `json:"message,omitempty"`
	Error         string          `json:"error,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	TotalCount    int             `json:"totalCount,omitempty"`
	User          json.RawMessage `json:"user,omitempty"`
	Errors        json.RawMessage `json:"errors,omitempty"`
	Authenticated bool            `json:"authenticated,omitempty"`
}

// Text returns the human readable part of the envelope, message first
func (e Envelope) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// Succeeded reports a success status. Endpoints that never send a status count as successful.
func (e Envelope) Succeeded() bool {
	return e.Status == "" || e.Status == StatusSuccess
}

// DecodeData unmarshals the data field into v
func (e Envelope) DecodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return errors.Wrap(json.Unmarshal(e.Data, v), "decode envelope data")
}

// DecodeUser unmarshals the user field into v
func (e Envelope) DecodeUser(v any) error {
	if len(e.User) == 0 || string(e.User) == "null" {
		return errors.New("response carries no user")
	}
	return errors.Wrap(json.Unmarshal(e.User, v), "decode envelope user")
}
