package peripheral

import (
	"errors"
	"fmt"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/gatt"
)

// Host is the BLE host stack the peripheral is served through
type Host interface {
	// RegisterAttributeTree publishes the objects under root and routes remote
	// requests for them to handler. Called once at startup.
	RegisterAttributeTree(root string, objects []gatt.ManagedObject, handler Handler) error
	RegisterAdvertisement(adv *Advertisement) error
	// PushValueChanged notifies subscribed clients. Fire and forget.
	PushValueChanged(path string, value []byte)
}

// Handler receives remote client requests for registered attributes
type Handler interface {
	OnRead(path string) ([]byte, error)
	OnWrite(path string, value []byte) error
	OnSubscribe(path string)
	OnUnsubscribe(path string)
}

var (
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrNotSupported     = errors.New("operation not supported")
)

// RegistrationError reports that the host stack rejected the attribute tree
// or the advertisement
type RegistrationError struct {
	Target string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register %s: %v", e.Target, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

func asRegistrationError(target string, err error) error {
	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		return err
	}
	return &RegistrationError{Target: target, Err: err}
}
