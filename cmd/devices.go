package cmd

import (
	"fmt"
	"time"
)

// Pair registers a new sync device under a human-friendly name
func Pair(flagPath, name string) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	device, err := v.PairDevice(name)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("✓ Registered device %q (%s)\n", device.Name, device.ID)
	fmt.Println("Run 'petalvault export -device", device.Name+"' to send it the vault;")
	fmt.Println("it becomes paired once a changeset from it merges here.")
}

// Devices lists all registered sync devices
func Devices(flagPath string) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	devices, err := v.Devices()
	if err != nil {
		HandleError(err)
	}
	if len(devices) == 0 {
		fmt.Println("(no devices)")
		return
	}

	fmt.Printf("%-20s  %-36s  %-8s  %s\n", "NAME", "ID", "PAIRED", "SINCE")
	for _, d := range devices {
		state := "pending"
		since := "-"
		if d.Paired {
			state = "yes"
			since = time.UnixMilli(d.PairedAt).Format(time.DateOnly)
		}
		fmt.Printf("%-20s  %-36s  %-8s  %s\n", d.Name, d.ID, state, since)
	}
}

// Forget removes a device from the registry
func Forget(flagPath, idOrName string, force bool) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	device, err := v.FindDevice(idOrName)
	if err != nil {
		HandleError(err)
	}
	if !force && !Confirm(fmt.Sprintf("Forget device %q?", device.Name)) {
		fmt.Println("Aborted")
		return
	}

	if err := v.ForgetDevice(device.ID); err != nil {
		HandleError(err)
	}
	fmt.Printf("✓ Forgot device %q\n", device.Name)
}
