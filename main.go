package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/petalvault/petalvault/cmd"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "import":
		runImport(os.Args[2:])
	case "add":
		runAdd(os.Args[2:])
	case "ls":
		runLs(os.Args[2:])
	case "show":
		runShow(os.Args[2:])
	case "set":
		runSet(os.Args[2:])
	case "rm":
		runRm(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "rename":
		runRename(os.Args[2:])
	case "pair":
		runPair(os.Args[2:])
	case "devices":
		runDevices(os.Args[2:])
	case "forget-device":
		runForgetDevice(os.Args[2:])
	case "export":
		runExport(os.Args[2:])
	case "scan":
		runScan(os.Args[2:])
	case "preview":
		runPreview(os.Args[2:])
	case "passwd":
		runPasswd(os.Args[2:])
	case "keyring":
		runKeyring(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "compact":
		runCompact(os.Args[2:])
	case "completion":
		runCompletion(os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// newFlagSet builds a command flag set with the shared -vault flag
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	vaultPath := fs.String("vault", "", "Path to the vault file")
	return fs, vaultPath
}

func parse(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func requireArgs(fs *flag.FlagSet, n int, usage string) {
	if fs.NArg() < n {
		fmt.Fprintf(os.Stderr, "Usage: petalvault %s\n", usage)
		os.Exit(1)
	}
}

func runInit(args []string) {
	fs, vaultPath := newFlagSet("init")
	name := fs.String("name", "personal", "Vault display name")
	parse(fs, args)

	cmd.Init(*vaultPath, *name)
}

func runImport(args []string) {
	fs, vaultPath := newFlagSet("import")
	name := fs.String("name", "personal", "Vault display name")
	parse(fs, args)

	cmd.Import(*vaultPath, *name)
}

func runAdd(args []string) {
	fs, vaultPath := newFlagSet("add")
	user := fs.String("user", "", "Username for the entry")
	pass := fs.String("pass", "", "Secret value (prompted when omitted)")
	notes := fs.String("notes", "", "Free-form notes")
	parse(fs, args)
	requireArgs(fs, 1, "add [flags] <site>")

	cmd.Add(*vaultPath, fs.Arg(0), *user, *pass, *notes)
}

func runLs(args []string) {
	fs, vaultPath := newFlagSet("ls")
	all := fs.Bool("all", false, "Include deleted entries")
	parse(fs, args)

	cmd.List(*vaultPath, *all)
}

func runShow(args []string) {
	fs, vaultPath := newFlagSet("show")
	reveal := fs.Bool("p", false, "Reveal the secret value")
	parse(fs, args)
	requireArgs(fs, 1, "show [-p] <entry-id | site>")

	cmd.Show(*vaultPath, fs.Arg(0), *reveal)
}

func runSet(args []string) {
	fs, vaultPath := newFlagSet("set")
	parse(fs, args)
	requireArgs(fs, 2, "set <entry-id | site> <field> [value]")

	value := ""
	if fs.NArg() > 2 {
		value = fs.Arg(2)
	}
	cmd.Set(*vaultPath, fs.Arg(0), fs.Arg(1), value)
}

func runRm(args []string) {
	fs, vaultPath := newFlagSet("rm")
	force := fs.Bool("force", false, "Delete without confirmation")
	parse(fs, args)
	requireArgs(fs, 1, "rm [-force] <entry-id | site>")

	cmd.Remove(*vaultPath, fs.Arg(0), *force)
}

func runSearch(args []string) {
	fs, vaultPath := newFlagSet("search")
	parse(fs, args)
	requireArgs(fs, 1, "search <text>")

	cmd.Search(*vaultPath, fs.Arg(0))
}

func runRename(args []string) {
	fs, vaultPath := newFlagSet("rename")
	parse(fs, args)
	requireArgs(fs, 1, "rename <new-name>")

	cmd.Rename(*vaultPath, fs.Arg(0))
}

func runPair(args []string) {
	fs, vaultPath := newFlagSet("pair")
	parse(fs, args)
	requireArgs(fs, 1, "pair <device-name>")

	cmd.Pair(*vaultPath, fs.Arg(0))
}

func runDevices(args []string) {
	fs, vaultPath := newFlagSet("devices")
	parse(fs, args)

	cmd.Devices(*vaultPath)
}

func runForgetDevice(args []string) {
	fs, vaultPath := newFlagSet("forget-device")
	force := fs.Bool("force", false, "Forget without confirmation")
	parse(fs, args)
	requireArgs(fs, 1, "forget-device [-force] <device-name | id>")

	cmd.Forget(*vaultPath, fs.Arg(0), *force)
}

func runExport(args []string) {
	fs, vaultPath := newFlagSet("export")
	device := fs.String("device", "", "Target device name or id")
	asText := fs.Bool("text", false, "Print frame payloads instead of QR codes")
	parse(fs, args)

	if *device == "" {
		fmt.Fprintln(os.Stderr, "Usage: petalvault export -device <name> [-text]")
		os.Exit(1)
	}
	cmd.Export(*vaultPath, *device, *asText)
}

func runScan(args []string) {
	fs, vaultPath := newFlagSet("scan")
	parse(fs, args)

	cmd.Scan(*vaultPath)
}

func runPreview(args []string) {
	fs, vaultPath := newFlagSet("preview")
	parse(fs, args)

	cmd.Preview(*vaultPath)
}

func runPasswd(args []string) {
	fs, vaultPath := newFlagSet("passwd")
	parse(fs, args)

	cmd.Passwd(*vaultPath)
}

func runKeyring(args []string) {
	fs, vaultPath := newFlagSet("keyring")
	parse(fs, args)
	requireArgs(fs, 1, "keyring <save | delete | status>")

	switch fs.Arg(0) {
	case "save":
		cmd.KeyringSave(*vaultPath)
	case "delete":
		cmd.KeyringDelete(*vaultPath)
	case "status":
		cmd.KeyringStatus(*vaultPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring subcommand: %s\n", fs.Arg(0))
		os.Exit(1)
	}
}

func runStatus(args []string) {
	fs, vaultPath := newFlagSet("status")
	parse(fs, args)

	cmd.Status(*vaultPath)
}

func runCompact(args []string) {
	fs, vaultPath := newFlagSet("compact")
	days := fs.Int("days", -1, "Tombstone age threshold in days (default 90)")
	parse(fs, args)

	cmd.Compact(*vaultPath, *days)
}

func runCompletion(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: petalvault completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("petalvault - Offline password vault with QR-code sync")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  petalvault <command> [arguments]")
	fmt.Println()
	fmt.Println("Vault:")
	fmt.Println("  init           Create a new vault with a fresh recovery phrase")
	fmt.Println("  import         Create a vault from an existing recovery phrase")
	fmt.Println("  rename         Rename the vault")
	fmt.Println("  status         Show vault status (no password needed)")
	fmt.Println("  compact        Purge old tombstones and shrink the vault file")
	fmt.Println()
	fmt.Println("Entries:")
	fmt.Println("  add            Add an entry")
	fmt.Println("  ls             List entries")
	fmt.Println("  show           Show one entry")
	fmt.Println("  set            Update one field of an entry")
	fmt.Println("  rm             Delete an entry")
	fmt.Println("  search         Search entries by site, user or notes")
	fmt.Println()
	fmt.Println("Sync:")
	fmt.Println("  pair           Register a device to sync with")
	fmt.Println("  devices        List sync devices")
	fmt.Println("  forget-device  Remove a sync device")
	fmt.Println("  export         Show pending changes as QR frames for a device")
	fmt.Println("  scan           Merge scanned frames (one per line on stdin)")
	fmt.Println("  preview        Show what scanned frames would change")
	fmt.Println()
	fmt.Println("Access:")
	fmt.Println("  passwd         Set or change the convenience password")
	fmt.Println("  keyring        Store the password in the OS keyring")
	fmt.Println()
	fmt.Println("  completion     Generate shell completions")
	fmt.Println("  help           Show help for a command")
	fmt.Println()
	fmt.Println("The vault file defaults to ~/.petalvault/vault.db; override with")
	fmt.Println("-vault <path> or the PETALVAULT_DIR environment variable.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("petalvault init [-name <name>] [-vault <path>]")
		fmt.Println()
		fmt.Println("Creates a new vault and prints its 12-word recovery phrase.")
		fmt.Println("The phrase is the vault's only real key: write it down and")
		fmt.Println("keep it offline. Optionally sets a convenience password so")
		fmt.Println("daily unlocking does not need the phrase.")
	case "import":
		fmt.Println("petalvault import [-name <name>] [-vault <path>]")
		fmt.Println()
		fmt.Println("Creates a vault from the recovery phrase of an existing one,")
		fmt.Println("typically on a second device. Entries come over afterwards")
		fmt.Println("with 'petalvault scan' while the first device exports.")
	case "add":
		fmt.Println("petalvault add [-user <user>] [-pass <pass>] [-notes <notes>] <site>")
		fmt.Println()
		fmt.Println("Adds an entry. The secret is prompted without echo when -pass")
		fmt.Println("is omitted.")
	case "ls":
		fmt.Println("petalvault ls [-all]")
		fmt.Println()
		fmt.Println("Lists entries, newest first. -all includes deleted ones.")
	case "show":
		fmt.Println("petalvault show [-p] <entry-id | site>")
		fmt.Println()
		fmt.Println("Shows one entry. The secret stays masked unless -p is given.")
	case "set":
		fmt.Println("petalvault set <entry-id | site> <field> [value]")
		fmt.Println()
		fmt.Println("Updates one field: site, user, pass or notes. A new pass is")
		fmt.Println("prompted without echo when the value is omitted.")
	case "rm":
		fmt.Println("petalvault rm [-force] <entry-id | site>")
		fmt.Println()
		fmt.Println("Deletes an entry. The deletion is a tombstone that propagates")
		fmt.Println("to other devices on the next sync; 'compact' purges it later.")
	case "search":
		fmt.Println("petalvault search <text>")
		fmt.Println()
		fmt.Println("Lists entries whose site, user or notes contain the text.")
	case "rename":
		fmt.Println("petalvault rename <new-name>")
		fmt.Println()
		fmt.Println("Changes the vault display name on this device only.")
	case "pair":
		fmt.Println("petalvault pair <device-name>")
		fmt.Println()
		fmt.Println("Registers a device to sync with. The device counts as paired")
		fmt.Println("once a changeset it produced merges here, which proves both")
		fmt.Println("sides derive the same key from the same recovery phrase.")
	case "devices":
		fmt.Println("petalvault devices")
		fmt.Println()
		fmt.Println("Lists registered sync devices and their pairing state.")
	case "forget-device":
		fmt.Println("petalvault forget-device [-force] <device-name | id>")
		fmt.Println()
		fmt.Println("Removes a device from the registry. Entries it already")
		fmt.Println("received are unaffected.")
	case "export":
		fmt.Println("petalvault export -device <name> [-text]")
		fmt.Println()
		fmt.Println("Collects every change the device has not acknowledged and")
		fmt.Println("shows it as a sequence of QR codes. Scan them on the other")
		fmt.Println("device with 'petalvault scan'. The device cursor advances")
		fmt.Println("only after you confirm the far side merged successfully.")
		fmt.Println()
		fmt.Println("-text prints the raw frame payloads instead of QR codes,")
		fmt.Println("useful for piping into 'petalvault scan' when testing.")
	case "scan":
		fmt.Println("petalvault scan")
		fmt.Println()
		fmt.Println("Reads decoded frame payloads from stdin, one per line, until")
		fmt.Println("the transfer completes, then merges the changeset. Frames")
		fmt.Println("may arrive in any order; duplicates are harmless. A frame")
		fmt.Println("that fails its checksum is reported and can simply be")
		fmt.Println("re-scanned.")
	case "preview":
		fmt.Println("petalvault preview")
		fmt.Println()
		fmt.Println("Like scan, but only shows what the changeset would do.")
		fmt.Println("Nothing is merged and secret values are never printed.")
	case "passwd":
		fmt.Println("petalvault passwd")
		fmt.Println()
		fmt.Println("Sets or changes the convenience password that wraps the")
		fmt.Println("recovery phrase. The phrase itself never changes.")
	case "keyring":
		fmt.Println("petalvault keyring <save | delete | status>")
		fmt.Println()
		fmt.Println("Stores the convenience password in the OS keyring so")
		fmt.Println("unlocking needs no typing at all, or removes it again.")
	case "status":
		fmt.Println("petalvault status")
		fmt.Println()
		fmt.Println("Shows vault metadata and counters. No password required.")
	case "compact":
		fmt.Println("petalvault compact [-days <n>]")
		fmt.Println()
		fmt.Println("Purges tombstoned entries older than the threshold (default")
		fmt.Println("90 days) once every paired device has seen the deletion,")
		fmt.Println("then rewrites the vault file to reclaim space.")
	case "completion":
		fmt.Println("petalvault completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs a shell completion script.")
		fmt.Println()
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(petalvault completion bash)\"")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
