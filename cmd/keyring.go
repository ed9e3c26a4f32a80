package cmd

import (
	"fmt"
	"os"

	"github.com/petalvault/petalvault/internal/crypto"
	"github.com/petalvault/petalvault/internal/keyring"
)

// KeyringSave verifies the convenience password and stores it in the OS
// keyring, keyed by vault id
func KeyringSave(flagPath string) {
	v := OpenVault(flagPath)
	defer v.Close()

	password := ReadPasswordOrExit("Vault password: ")
	defer crypto.ClearBytes(password)

	// Only a working password goes into the keyring
	if err := v.UnlockWithPassword(password); err != nil {
		HandleError(err)
	}
	v.Lock()

	vaultID, err := v.ID()
	if err != nil {
		HandleError(err)
	}
	if err := keyring.SavePassword(vaultID, string(password)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Password saved to keyring")
}

// KeyringDelete removes the stored password from the OS keyring
func KeyringDelete(flagPath string) {
	v := OpenVault(flagPath)
	defer v.Close()

	vaultID, err := v.ID()
	if err != nil {
		HandleError(err)
	}
	if !keyringHas(vaultID) {
		fmt.Println("No password stored in keyring")
		return
	}
	if err := keyring.DeletePassword(vaultID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to delete from keyring: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Password removed from keyring")
}

// KeyringStatus reports whether a password is stored for this vault
func KeyringStatus(flagPath string) {
	v := OpenVault(flagPath)
	defer v.Close()

	vaultID, err := v.ID()
	if err != nil {
		HandleError(err)
	}
	if keyringHas(vaultID) {
		fmt.Println("Password stored in keyring")
	} else {
		fmt.Println("No password stored in keyring")
	}
}

func keyringHas(vaultID string) bool {
	return keyring.HasPassword(vaultID)
}
