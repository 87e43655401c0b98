package client

import (
	"sort"

	"github.com/c360/hapticbridge/protocol"
)

// Devices returns the currently registered devices, sorted by index
func (c *Client) Devices() []protocol.Device {
	c.mu.Lock()
	devices := make([]protocol.Device, 0, len(c.devices))
	for _, dev := range c.devices {
		devices = append(devices, dev)
	}
	c.mu.Unlock()

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Index < devices[j].Index
	})
	return devices
}

// Device looks up a registered device by its server-assigned index
func (c *Client) Device(index uint32) (protocol.Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dev, ok := c.devices[index]
	return dev, ok
}

// registerDevice inserts or replaces a device by index. Rediscovery
// replaces the descriptor wholesale; there is no partial merge.
func (c *Client) registerDevice(dev protocol.Device) {
	c.mu.Lock()
	c.devices[dev.Index] = dev
	count := len(c.devices)
	c.mu.Unlock()

	c.logger.Info("device registered", "index", dev.Index, "name", dev.Name)
	if c.metrics != nil {
		c.metrics.devicesRegistered.Set(float64(count))
	}
	if c.onDeviceAdded != nil {
		c.onDeviceAdded(dev)
	}
}

// unregisterDevice removes a device by index; a no-op for unknown indexes
func (c *Client) unregisterDevice(index uint32) {
	c.mu.Lock()
	_, existed := c.devices[index]
	if existed {
		delete(c.devices, index)
	}
	count := len(c.devices)
	c.mu.Unlock()

	if !existed {
		return
	}

	c.logger.Info("device removed", "index", index)
	if c.metrics != nil {
		c.metrics.devicesRegistered.Set(float64(count))
	}
	if c.onDeviceRemoved != nil {
		c.onDeviceRemoved(index)
	}
}
