package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/petalvault/petalvault/internal/crypto"
	"github.com/petalvault/petalvault/internal/keys"
	"github.com/petalvault/petalvault/internal/vault"
)

// Init creates a brand new vault with a freshly generated recovery phrase
func Init(flagPath, name string) {
	path := ResolveVaultPath(flagPath)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	words, err := keys.NewMnemonic()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Your recovery phrase. Write it down and keep it offline;")
	fmt.Println("it is the only way to recover this vault:")
	fmt.Println()
	fmt.Printf("  %s\n", strings.Join(words, " "))
	fmt.Println()

	var password []byte
	if p := passwordFromEnv(); p != nil {
		password = p
	} else if Confirm("Set a convenience password for daily unlocking?") {
		password, err = ReadPasswordConfirm()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}
	if password != nil {
		defer crypto.ClearBytes(password)
	}

	v, err := vault.Create(path, name, words, password)
	if err != nil {
		HandleError(err)
	}
	defer v.Close()

	fmt.Printf("✓ Created vault %q at %s\n", name, path)
}

// Import creates a vault joining an existing lineage: the operator
// types the recovery phrase of another device, then syncs entries over
// with 'petalvault scan'.
func Import(flagPath, name string) {
	path := ResolveVaultPath(flagPath)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	words := ReadMnemonicOrExit("Recovery phrase (12 words): ")

	var password []byte
	var err error
	if p := passwordFromEnv(); p != nil {
		password = p
	} else if Confirm("Set a convenience password for daily unlocking?") {
		password, err = ReadPasswordConfirm()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}
	if password != nil {
		defer crypto.ClearBytes(password)
	}

	v, err := vault.Create(path, name, words, password)
	if err != nil {
		HandleError(err)
	}
	defer v.Close()

	fmt.Printf("✓ Created vault %q at %s\n", name, path)
	fmt.Println("Run 'petalvault scan' here while exporting from the other device")
	fmt.Println("to bring the entries over.")
}
