package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/petalvault/petalvault/internal/crypto"
	"github.com/petalvault/petalvault/internal/vault"
)

// Add stores a new entry. The secret is prompted hidden unless already
// given on the command line.
func Add(flagPath, site, user, pass, notes string) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	if pass == "" {
		secret := ReadPasswordOrExit("Entry password: ")
		defer crypto.ClearBytes(secret)
		pass = string(secret)
	}

	id, err := v.AddEntry(site, user, pass, notes)
	if err != nil {
		HandleError(err)
	}
	fmt.Printf("✓ Added entry %s\n", id)
}

// List prints all live entries, or every entry including deleted ones
func List(flagPath string, all bool) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	entries, err := v.Entries(all)
	if err != nil {
		HandleError(err)
	}
	printEntries(entries)
}

// Search prints live entries matching the filter text
func Search(flagPath, query string) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	entries, err := v.SearchEntries(query)
	if err != nil {
		HandleError(err)
	}
	printEntries(entries)
}

func printEntries(entries []vault.Entry) {
	if len(entries) == 0 {
		fmt.Println("(no entries)")
		return
	}

	fmt.Printf("%-12s  %-28s  %-20s  %s\n", "ID", "SITE", "USER", "UPDATED")
	for _, e := range entries {
		site := e.Site
		if e.Tombstone {
			site += " (deleted)"
		}
		fmt.Printf("%-12s  %-28s  %-20s  %s\n",
			e.ID, site, e.User, e.UpdatedAt.Format(time.DateTime))
	}
}

// Show prints one entry. The secret stays hidden unless reveal is set.
func Show(flagPath, query string, reveal bool) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	entry := findEntry(v, query)

	fmt.Printf("ID:      %s\n", entry.ID)
	fmt.Printf("Site:    %s\n", entry.Site)
	fmt.Printf("User:    %s\n", entry.User)
	if reveal {
		fmt.Printf("Pass:    %s\n", entry.Pass)
	} else {
		fmt.Printf("Pass:    ******** (use -p to reveal)\n")
	}
	if entry.Notes != "" {
		fmt.Printf("Notes:   %s\n", entry.Notes)
	}
	fmt.Printf("Created: %s\n", entry.CreatedAt.Format(time.DateTime))
	fmt.Printf("Updated: %s\n", entry.UpdatedAt.Format(time.DateTime))
	if entry.Tombstone {
		fmt.Println("State:   deleted")
	}
}

// Set updates one field of an entry
func Set(flagPath, query, field, value string) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	entry := findEntry(v, query)

	if field == vault.FieldPass && value == "" {
		secret := ReadPasswordOrExit("New entry password: ")
		defer crypto.ClearBytes(secret)
		value = string(secret)
	}

	if err := v.UpdateField(entry.ID, field, value); err != nil {
		HandleError(err)
	}
	fmt.Printf("✓ Updated %s of %s\n", field, entry.ID)
}

// Remove tombstones an entry so the deletion propagates to other devices
func Remove(flagPath, query string, force bool) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	entry := findEntry(v, query)
	if !force && !Confirm(fmt.Sprintf("Delete entry %s (%s)?", entry.ID, entry.Site)) {
		fmt.Println("Aborted")
		return
	}

	if err := v.DeleteEntry(entry.ID); err != nil {
		HandleError(err)
	}
	fmt.Printf("✓ Deleted %s\n", entry.ID)
}

// Rename changes the vault display name
func Rename(flagPath, name string) {
	v := OpenUnlocked(flagPath)
	defer v.Close()

	if err := v.Rename(name); err != nil {
		HandleError(err)
	}
	fmt.Printf("✓ Renamed vault to %q\n", name)
}

// findEntry resolves an entry by id first, then by unique site match
func findEntry(v *vault.Vault, query string) *vault.Entry {
	entry, err := v.GetEntry(query)
	if err == nil {
		return entry
	}
	if err != vault.ErrEntryNotFound {
		HandleError(err)
	}

	matches, err := v.SearchEntries(query)
	if err != nil {
		HandleError(err)
	}
	switch len(matches) {
	case 0:
		HandleError(vault.ErrEntryNotFound)
	case 1:
		return &matches[0]
	default:
		fmt.Fprintf(os.Stderr, "Error: %q matches %d entries:\n", query, len(matches))
		for _, m := range matches {
			fmt.Fprintf(os.Stderr, "  %s  %s (%s)\n", m.ID, m.Site, m.User)
		}
		fmt.Fprintf(os.Stderr, "Use the entry id instead\n")
		os.Exit(1)
	}
	return nil
}
