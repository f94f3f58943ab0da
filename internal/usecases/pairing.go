package usecases

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Pairing failures reported by the client's device picker. None of them is
// fatal; the user can retry the pairing action.
var (
	ErrPairingUnsupported = errors.New("bluetooth pairing is not supported in this context")
	ErrPairingCancelled   = errors.New("device selection cancelled")
	ErrDeviceDisconnected = errors.New("device disconnected")
	ErrPairingFailed      = errors.New("bluetooth access failed")
)

// PairingMessage is the text shown to the user for a pairing error.
// A cancelled picker shows nothing.
func PairingMessage(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrPairingCancelled):
		return ""
	case errors.Is(err, ErrPairingUnsupported):
		return "Web Bluetooth is not supported in this browser or context (requires HTTPS)."
	case errors.Is(err, ErrDeviceDisconnected):
		return "Device disconnected."
	default:
		return "Failed to access Bluetooth."
	}
}

// PairingOutcome is what the client reports after running its device picker
type PairingOutcome struct {
	DeviceName string `json:"deviceName"`
	DeviceID   string `json:"deviceId"`
	// Error is one of "unsupported", "cancelled", "disconnected" or a free-form message
	Error string `json:"error,omitempty"`
}

// Pairing is a paired sensor kit
type Pairing struct {
	ID         uuid.UUID `json:"id"`
	DeviceName string    `json:"deviceName"`
	PairedAt   time.Time `json:"pairedAt"`
}

// DeviceLabel names a device, falling back to a short form of its id
func DeviceLabel(name, id string) string {
	if name != "" {
		return name
	}
	if r := []rune(id); len(r) > 5 {
		id = string(r[:5])
	}
	return fmt.Sprintf("Device (%s...)", id)
}

// PairingRegistry tracks the device paired to one session
type PairingRegistry struct {
	mu      sync.Mutex
	current *Pairing
}

// NewPairingRegistry creates an empty registry
func NewPairingRegistry() *PairingRegistry {
	return &PairingRegistry{}
}

func outcomeError(code string) error {
	switch code {
	case "":
		return nil
	case "unsupported":
		return ErrPairingUnsupported
	case "cancelled", "canceled", "NotFoundError":
		return ErrPairingCancelled
	case "disconnected":
		return ErrDeviceDisconnected
	default:
		return fmt.Errorf("%w: %s", ErrPairingFailed, code)
	}
}

// Pair records the outcome of a device picker run
func (r *PairingRegistry) Pair(outcome PairingOutcome) (Pairing, error) {
	if err := outcomeError(outcome.Error); err != nil {
		if errors.Is(err, ErrDeviceDisconnected) {
			r.Disconnect()
		}
		return Pairing{}, err
	}

	p := Pairing{
		ID:         uuid.New(),
		DeviceName: DeviceLabel(outcome.DeviceName, outcome.DeviceID),
		PairedAt:   time.Now(),
	}

	r.mu.Lock()
	r.current = &p
	r.mu.Unlock()
	return p, nil
}

// Disconnect forgets the paired device
func (r *PairingRegistry) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
}

// Current returns the paired device, if any
func (r *PairingRegistry) Current() (Pairing, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Pairing{}, false
	}
	return *r.current, true
}
