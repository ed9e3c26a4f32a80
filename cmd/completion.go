package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_petalvault() {
    local cur prev words cword
    _init_completion || return

    local commands="init import add ls show set rm search rename pair devices forget-device export scan preview passwd keyring status compact completion help"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        set)
            if [[ $cword -eq 3 ]]; then
                COMPREPLY=($(compgen -W "site user pass notes" -- "$cur"))
            fi
            ;;
        export|forget-device)
            local devices
            devices=$(petalvault devices 2>/dev/null | tail -n +2 | awk '{print $1}')
            COMPREPLY=($(compgen -W "$devices" -- "$cur"))
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _petalvault petalvault
`

const zshCompletion = `#compdef petalvault

_petalvault() {
    local -a commands
    commands=(
        'init:Create a new vault with a fresh recovery phrase'
        'import:Create a vault from an existing recovery phrase'
        'add:Add an entry'
        'ls:List entries'
        'show:Show one entry'
        'set:Update one field of an entry'
        'rm:Delete an entry'
        'search:Search entries'
        'rename:Rename the vault'
        'pair:Register a sync device'
        'devices:List sync devices'
        'forget-device:Remove a sync device'
        'export:Export changes as QR frames'
        'scan:Merge scanned frames from stdin'
        'preview:Preview scanned changes without merging'
        'passwd:Set or change the convenience password'
        'keyring:Manage password in OS keyring'
        'status:Show vault status'
        'compact:Purge old tombstones and shrink the vault file'
        'completion:Generate shell completions'
        'help:Show help for a command'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'petalvault commands' commands
            ;;
        args)
            case "${words[2]}" in
                set)
                    _values 'field' site user pass notes
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'petalvault commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_petalvault "$@"
`

const fishCompletion = `# petalvault fish completions

set -l commands init import add ls show set rm search rename pair devices forget-device export scan preview passwd keyring status compact completion help

complete -c petalvault -f

complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create a new vault'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a import -d 'Create a vault from a recovery phrase'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a add -d 'Add an entry'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a ls -d 'List entries'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a show -d 'Show one entry'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a set -d 'Update one field'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Delete an entry'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a search -d 'Search entries'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a rename -d 'Rename the vault'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a pair -d 'Register a sync device'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a devices -d 'List sync devices'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a forget-device -d 'Remove a sync device'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a export -d 'Export changes as QR frames'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a scan -d 'Merge scanned frames'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a preview -d 'Preview scanned changes'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Set or change the password'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage password in OS keyring'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show vault status'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Purge old tombstones'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate shell completions'
complete -c petalvault -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'

complete -c petalvault -n "__fish_seen_subcommand_from set" -a "site user pass notes"
complete -c petalvault -n "__fish_seen_subcommand_from keyring" -a "save delete status"
complete -c petalvault -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
