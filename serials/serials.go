// Package serials manages device serial numbers: intake, approval, allocation
// and deactivation.
package serials

import (
	"regexp"

	"github.com/jrsteele09/device-console/internal/utils"
)

// Pattern is YYYYMM, a product family, six digits and a trailing B
var Pattern = regexp.MustCompile(`^[0-9]{4}[0-9]{2}(AMP|API)[0-9]{6}B$`)

// AllocationState is the backend's isallocated value
type AllocationState int

const (
	Unallocated AllocationState = 0
	Fetched     AllocationState = 1
	Allocated   AllocationState = 2
	Deactivated AllocationState = 3
)

// AllocationStates lists every state in display order
var AllocationStates = []AllocationState{Unallocated, Fetched, Allocated, Deactivated}

func (s AllocationState) String() string {
	switch s {
	case Unallocated:
		return "Unallocated"
	case Fetched:
		return "Fetched"
	case Allocated:
		return "Allocated"
	case Deactivated:
		return "Deactivated"
	}
	return "Unknown"
}

// Serial is one row of the serial number list
type Serial struct {
	SerialNumber string
	Approved     bool
	Allocation   AllocationState
	IMSI         string
	IMEI         string
	DeviceID     string
}

// CanApprove reports whether the approve action is offered
func (s Serial) CanApprove() bool {
	return !s.Approved
}

// CanAllocate reports whether the allocate action is offered
func (s Serial) CanAllocate() bool {
	return s.Approved && s.Allocation == Unallocated
}

// CanDeactivate reports whether the deactivate action is offered
func (s Serial) CanDeactivate() bool {
	return s.Approved && s.Allocation == Unallocated
}

// backendSerial is the row shape of /get_serial_numbers/. Flags arrive as
// numbers, strings or booleans depending on the database driver.
type backendSerial struct {
	SerialNumber string        `json:"serialnumber"`
	IsApproved   utils.FlexInt `json:"isapproved"`
	IsAllocated  utils.FlexInt `json:"isallocated"`
	IMSI         *string       `json:"imsi"`
	IMEI         *string       `json:"imei"`
	DeviceID     *string       `json:"deviceid"`
}

func (b backendSerial) normalise() Serial {
	return Serial{
		SerialNumber: b.SerialNumber,
		Approved:     b.IsApproved == 1,
		Allocation:   AllocationState(b.IsAllocated),
		IMSI:         utils.Value(b.IMSI),
		IMEI:         utils.Value(b.IMEI),
		DeviceID:     utils.Value(b.DeviceID),
	}
}
