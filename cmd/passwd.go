package cmd

import (
	"fmt"
	"os"

	"github.com/petalvault/petalvault/internal/crypto"
)

// Passwd sets or changes the convenience password wrapping the
// recovery phrase. The phrase itself never changes.
func Passwd(flagPath string) {
	v := OpenVault(flagPath)
	defer v.Close()

	hasWrapped, err := v.HasWrappedMnemonic()
	if err != nil {
		HandleError(err)
	}

	if hasWrapped {
		oldPassword := ReadPasswordOrExit("Current password: ")
		defer crypto.ClearBytes(oldPassword)

		newPassword, err := ReadPasswordConfirm()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer crypto.ClearBytes(newPassword)

		if err := v.ChangeWrapPassword(oldPassword, newPassword); err != nil {
			HandleError(err)
		}
	} else {
		// First-time setup requires the phrase itself
		words := ReadMnemonicOrExit("Recovery phrase (12 words): ")

		newPassword, err := ReadPasswordConfirm()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		defer crypto.ClearBytes(newPassword)

		if err := v.StoreWrappedMnemonic(words, newPassword); err != nil {
			HandleError(err)
		}
	}

	fmt.Println("✓ Password updated")
	vaultID, err := v.ID()
	if err == nil {
		if has := keyringHas(vaultID); has {
			fmt.Println("The keyring still holds the old password;")
			fmt.Println("run 'petalvault keyring save' to refresh it.")
		}
	}
}
