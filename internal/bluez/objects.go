package bluez

import (
	"github.com/godbus/dbus/v5"
)

// Each type below is exported on exactly one D-Bus interface; every exported
// Go method becomes a D-Bus method of that interface.

// objectManager serves org.freedesktop.DBus.ObjectManager at the application root
type objectManager struct {
	host *Host
}

func (o *objectManager) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	return o.host.snapshotObjects(), nil
}

// properties serves org.freedesktop.DBus.Properties for a GATT object
type properties struct {
	host *Host
	path dbus.ObjectPath
}

func (p *properties) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	props, ok := p.host.propertiesOf(p.path, iface)
	if !ok {
		return nil, dbus.NewError(errInvalidArguments, []interface{}{"unknown interface " + iface})
	}
	return props, nil
}

func (p *properties) Get(iface, name string) (dbus.Variant, *dbus.Error) {
	props, err := p.GetAll(iface)
	if err != nil {
		return dbus.Variant{}, err
	}
	v, ok := props[name]
	if !ok {
		return dbus.Variant{}, dbus.NewError(errInvalidArguments, []interface{}{"unknown property " + name})
	}
	return v, nil
}

func (p *properties) Set(iface, name string, value dbus.Variant) *dbus.Error {
	return dbus.NewError(errNotPermitted, []interface{}{"properties are read-only"})
}

// characteristic serves org.bluez.GattCharacteristic1
type characteristic struct {
	host *Host
	path string
}

func (c *characteristic) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	value, err := c.host.currentHandler().OnRead(c.path)
	if err != nil {
		c.host.logger.Printf("Host: ReadValue on %s failed: %v", c.path, err)
		return nil, toDBusError(err)
	}
	return value, nil
}

func (c *characteristic) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	return toDBusError(c.host.currentHandler().OnWrite(c.path, value))
}

func (c *characteristic) StartNotify() *dbus.Error {
	c.host.currentHandler().OnSubscribe(c.path)
	return nil
}

func (c *characteristic) StopNotify() *dbus.Error {
	c.host.currentHandler().OnUnsubscribe(c.path)
	return nil
}

// descriptor serves org.bluez.GattDescriptor1
type descriptor struct {
	host *Host
	path string
}

func (d *descriptor) ReadValue(options map[string]dbus.Variant) ([]byte, *dbus.Error) {
	value, err := d.host.currentHandler().OnRead(d.path)
	if err != nil {
		return nil, toDBusError(err)
	}
	return value, nil
}

func (d *descriptor) WriteValue(value []byte, options map[string]dbus.Variant) *dbus.Error {
	return toDBusError(d.host.currentHandler().OnWrite(d.path, value))
}

// advertisementProperties serves org.freedesktop.DBus.Properties for the advertisement
type advertisementProperties struct {
	host *Host
}

func (a *advertisementProperties) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	props, ok := a.host.advertisementPropertiesOf(iface)
	if !ok {
		return nil, dbus.NewError(errInvalidArguments, []interface{}{"unknown interface " + iface})
	}
	return props, nil
}

// advertisement serves org.bluez.LEAdvertisement1
type advertisement struct {
	host *Host
}

// Release is called by BlueZ when it drops the advertisement
func (a *advertisement) Release() *dbus.Error {
	a.host.logger.Printf("Host: Advertisement released")
	return nil
}
