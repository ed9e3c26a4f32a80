package vault

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/petalvault/petalvault/internal/storage"
)

// PairDevice registers a new sync device. The device stays unpaired
// until a changeset it produced merges successfully, which proves the
// far side derives the same master key.
func (v *Vault) PairDevice(name string) (*storage.DeviceRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return nil, ErrVaultLocked
	}

	device := &storage.DeviceRecord{
		ID:     uuid.NewString(),
		Name:   name,
		Cursor: make(map[string]uint64),
	}
	if err := v.db.PutDevice(device); err != nil {
		return nil, fmt.Errorf("failed to store device: %w", err)
	}
	if err := v.db.UpdateModified(); err != nil {
		return nil, err
	}
	return device, nil
}

// Devices returns all registered devices sorted by name
func (v *Vault) Devices() ([]storage.DeviceRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var devices []storage.DeviceRecord
	err := v.db.ForEachDevice(func(d *storage.DeviceRecord) error {
		devices = append(devices, *d)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices, nil
}

// FindDevice looks a device up by id or name
func (v *Vault) FindDevice(idOrName string) (*storage.DeviceRecord, error) {
	devices, err := v.Devices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].ID == idOrName || devices[i].Name == idOrName {
			return &devices[i], nil
		}
	}
	return nil, ErrDeviceNotFound
}

// ForgetDevice removes a device from the registry. Change records the
// device already received stay in the log; they may simply never be
// garbage collected on its account again.
func (v *Vault) ForgetDevice(idOrName string) error {
	device, err := v.FindDevice(idOrName)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return ErrVaultLocked
	}
	if err := v.db.RemoveDevice(device.ID); err != nil {
		return fmt.Errorf("failed to remove device: %w", err)
	}
	return v.db.UpdateModified()
}

// SetDeviceCursor replaces a device's cursor vector. Called by the sync
// engine once a delivery has been confirmed.
func (v *Vault) SetDeviceCursor(deviceID string, cursor map[string]uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.enc == nil {
		return ErrVaultLocked
	}

	device, err := v.db.GetDevice(deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return ErrDeviceNotFound
	}

	device.Cursor = cursor
	if err := v.db.PutDevice(device); err != nil {
		return fmt.Errorf("failed to store device cursor: %w", err)
	}
	return v.db.UpdateModified()
}
