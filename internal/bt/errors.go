package bt

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned for GATT operations on a device with no link
var ErrNotConnected = errors.New("no connected device")

// ErrUUIDNotFound is returned when a service or characteristic is absent
var ErrUUIDNotFound = errors.New("not found on device")

// ConnectError reports a failed connection attempt
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// SubscribeError reports a failure to enable notifications on a characteristic
type SubscribeError struct {
	CharacteristicUUID string
	Err                error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("failed to subscribe to %s: %v", e.CharacteristicUUID, e.Err)
}

func (e *SubscribeError) Unwrap() error {
	return e.Err
}
