package peripheral

import (
	"github.com/google/uuid"

	"github.com/lowaak/smart-trainer/pace-bridge/internal/gatt"
)

// AdvertisementPeripheral is the BlueZ advertisement type for a connectable peripheral
const AdvertisementPeripheral = "peripheral"

// Advertisement property keys
const (
	AdvPropType           = "Type"
	AdvPropServiceUUIDs   = "ServiceUUIDs"
	AdvPropLocalName      = "LocalName"
	AdvPropIncludeTxPower = "IncludeTxPower"
)

// Advertisement describes what the peripheral broadcasts while discoverable
type Advertisement struct {
	Path           string
	Type           string
	ServiceUUIDs   []uuid.UUID
	LocalName      string
	IncludeTxPower bool
}

// AddServiceUUID appends u unless it is already advertised
func (a *Advertisement) AddServiceUUID(u uuid.UUID) {
	for _, existing := range a.ServiceUUIDs {
		if existing == u {
			return
		}
	}
	a.ServiceUUIDs = append(a.ServiceUUIDs, u)
}

// Properties builds the advertisement's property dictionary. Empty optional
// fields are left out.
func (a *Advertisement) Properties() *gatt.Dict {
	props := gatt.NewDict()
	props.Set(AdvPropType, gatt.String(a.Type))
	if len(a.ServiceUUIDs) > 0 {
		uuids := make([]string, 0, len(a.ServiceUUIDs))
		for _, u := range a.ServiceUUIDs {
			uuids = append(uuids, u.String())
		}
		props.Set(AdvPropServiceUUIDs, gatt.Strings(uuids))
	}
	if a.LocalName != "" {
		props.Set(AdvPropLocalName, gatt.String(a.LocalName))
	}
	if a.IncludeTxPower {
		props.Set(AdvPropIncludeTxPower, gatt.Bool(true))
	}
	return props
}
