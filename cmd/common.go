package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/petalvault/petalvault/internal/crypto"
	"github.com/petalvault/petalvault/internal/frame"
	"github.com/petalvault/petalvault/internal/keyring"
	"github.com/petalvault/petalvault/internal/keys"
	syncpkg "github.com/petalvault/petalvault/internal/sync"
	"github.com/petalvault/petalvault/internal/vault"
)

const defaultVaultFile = "vault.db"

// ResolveVaultPath picks the vault file location: explicit -vault flag,
// then PETALVAULT_DIR, then ~/.petalvault/vault.db.
func ResolveVaultPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if dir := os.Getenv("PETALVAULT_DIR"); dir != "" {
		return filepath.Join(dir, defaultVaultFile)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultVaultFile
	}
	return filepath.Join(home, ".petalvault", defaultVaultFile)
}

// OpenVault opens an existing vault in the locked state or exits
func OpenVault(flagPath string) *vault.Vault {
	v, err := vault.Open(ResolveVaultPath(flagPath))
	if err != nil {
		HandleError(err)
	}
	return v
}

// OpenUnlocked opens a vault and unlocks it through the password chain
func OpenUnlocked(flagPath string) *vault.Vault {
	v := OpenVault(flagPath)
	Unlock(v)
	return v
}

// Unlock brings a vault to the open state. Tries, in order: the
// PETALVAULT_PASSWORD environment variable, the OS keyring, a hidden
// password prompt (when a wrapped mnemonic exists), and finally the
// recovery phrase itself.
func Unlock(v *vault.Vault) {
	hasWrapped, err := v.HasWrappedMnemonic()
	if err != nil {
		HandleError(err)
	}

	if hasWrapped {
		if password := passwordFromEnv(); password != nil {
			defer crypto.ClearBytes(password)
			if err := v.UnlockWithPassword(password); err != nil {
				HandleError(err)
			}
			return
		}

		if vaultID, err := v.ID(); err == nil {
			if stored, err := keyring.GetPassword(vaultID); err == nil {
				password := []byte(stored)
				defer crypto.ClearBytes(password)
				if err := v.UnlockWithPassword(password); err == nil {
					return
				}
				// Stale keyring entry: fall through to the prompt
			}
		}

		password := ReadPasswordOrExit("Vault password: ")
		defer crypto.ClearBytes(password)
		if err := v.UnlockWithPassword(password); err != nil {
			HandleError(err)
		}
		return
	}

	words := ReadMnemonicOrExit("Recovery phrase (12 words): ")
	if err := v.UnlockWithMnemonic(words); err != nil {
		HandleError(err)
	}
}

// passwordFromEnv reads PETALVAULT_PASSWORD, returning a clearable copy
func passwordFromEnv() []byte {
	password := os.Getenv("PETALVAULT_PASSWORD")
	if password == "" {
		return nil
	}
	result := make([]byte, len(password))
	copy(result, password)
	return result
}

// ReadPassword reads a password from the terminal without echoing
func ReadPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// ReadPasswordOrExit is like ReadPassword but exits on error
func ReadPasswordOrExit(prompt string) []byte {
	password, err := ReadPassword(prompt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return password
}

// ReadPasswordConfirm reads a new password twice and ensures they match
func ReadPasswordConfirm() ([]byte, error) {
	password1, err := ReadPassword("New password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password1)

	password2, err := ReadPassword("Confirm password: ")
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(password2)

	if !crypto.ConstantTimeCompare(password1, password2) {
		return nil, fmt.Errorf("passwords do not match")
	}

	result := make([]byte, len(password1))
	copy(result, password1)
	return result, nil
}

// ReadMnemonicOrExit reads and validates a recovery phrase
func ReadMnemonicOrExit(prompt string) []string {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read phrase: %s\n", err)
		os.Exit(1)
	}

	words := keys.NormalizeMnemonic(line)
	if err := keys.ValidateMnemonic(words); err != nil {
		HandleError(err)
	}
	return words
}

// ReadLine reads one trimmed line from stdin
func ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question, defaulting to no
func Confirm(prompt string) bool {
	answer, err := ReadLine(prompt + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// HandleError maps sentinel errors to user-facing messages and exits
func HandleError(err error) {
	switch {
	case errors.Is(err, vault.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: no vault found\n")
		fmt.Fprintf(os.Stderr, "Run 'petalvault init' or 'petalvault import' first\n")
	case errors.Is(err, vault.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: a vault already exists at that path\n")
	case errors.Is(err, vault.ErrVaultLocked):
		fmt.Fprintf(os.Stderr, "Error: vault is locked\n")
	case errors.Is(err, vault.ErrEntryNotFound):
		fmt.Fprintf(os.Stderr, "Error: no such entry\n")
	case errors.Is(err, vault.ErrEntryDeleted):
		fmt.Fprintf(os.Stderr, "Error: entry has been deleted\n")
	case errors.Is(err, vault.ErrUnknownField):
		fmt.Fprintf(os.Stderr, "Error: unknown field (use site, user, pass or notes)\n")
	case errors.Is(err, vault.ErrDeviceNotFound):
		fmt.Fprintf(os.Stderr, "Error: no such device\n")
		fmt.Fprintf(os.Stderr, "Use 'petalvault devices' to list known devices\n")
	case errors.Is(err, vault.ErrNoWrappedMnemonic):
		fmt.Fprintf(os.Stderr, "Error: no convenience password is set for this vault\n")
		fmt.Fprintf(os.Stderr, "Unlock with the recovery phrase instead\n")
	case errors.Is(err, keys.ErrBadMnemonic):
		fmt.Fprintf(os.Stderr, "Error: invalid recovery phrase\n")
		fmt.Fprintf(os.Stderr, "Expected 12 words from the standard wordlist\n")
	case errors.Is(err, crypto.ErrAuthFailed):
		fmt.Fprintf(os.Stderr, "Error: decryption failed (wrong password or phrase)\n")
	case errors.Is(err, syncpkg.ErrDeviceMismatch):
		fmt.Fprintf(os.Stderr, "Error: the other device uses a different recovery phrase\n")
	case errors.Is(err, syncpkg.ErrBadChangeset):
		fmt.Fprintf(os.Stderr, "Error: changeset data is malformed\n")
	case errors.Is(err, frame.ErrAggregateCorrupted):
		fmt.Fprintf(os.Stderr, "Error: transfer corrupted, restart the export and scan again\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}
