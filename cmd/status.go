package cmd

import (
	"fmt"
	"time"
)

// Status shows vault metadata and counters. No password required; only
// ciphertext and counts are read.
func Status(flagPath string) {
	v := OpenVault(flagPath)
	defer v.Close()

	name, err := v.Name()
	if err != nil {
		HandleError(err)
	}
	vaultID, err := v.ID()
	if err != nil {
		HandleError(err)
	}
	stats, err := v.Stats()
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Vault:    %s (%s)\n", name, vaultID)
	fmt.Printf("File:     %s\n", v.Path())
	fmt.Printf("Device:   %s\n", v.DeviceID())
	fmt.Printf("Entries:  %d live, %d deleted\n", stats.Entries, stats.Tombstones)
	fmt.Printf("Log:      %d change record(s), %d authored here\n", stats.Records, stats.Authored)
	fmt.Printf("Devices:  %d\n", stats.Devices)

	if modified, err := v.Modified(); err == nil && !modified.IsZero() {
		fmt.Printf("Modified: %s\n", modified.Format(time.RFC3339))
	}

	hasWrapped, err := v.HasWrappedMnemonic()
	if err != nil {
		HandleError(err)
	}
	if hasWrapped {
		fmt.Println("Unlock:   convenience password set")
		if vaultID != "" && keyringHas(vaultID) {
			fmt.Println("Keyring:  password stored")
		}
	} else {
		fmt.Println("Unlock:   recovery phrase only")
	}
}
