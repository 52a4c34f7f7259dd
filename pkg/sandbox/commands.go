package sandbox

import (
	"fmt"
	"strings"
)

// deniedFragments block a command when they appear anywhere in it,
// regardless of the leading word.
var deniedFragments = []string{
	"rm -rf", "rm -r", "rm -f", "rm /", "rm ~",
	"sudo", "su ", "chmod 777", "chown",
	"dd if=", "mkfs", "fdisk", "mount", "umount",
	"shutdown", "reboot", "halt", "poweroff",
	"killall", "pkill -9", "kill -9",
	"nc ", "netcat", "telnet", "ssh ",
	"eval ", "exec ",
	"cat /etc/passwd", "cat /etc/shadow",
	"export path", "unset path",
	"cat ~/.bash_history", "cat ~/.zsh_history",
}

// allowedCommands whitelist the first word of a command.
var allowedCommands = map[string]bool{
	"ls": true, "pwd": true, "whoami": true, "date": true, "echo": true,
	"cat": true, "head": true, "tail": true,
	"grep": true, "find": true, "wc": true, "sort": true, "uniq": true,
	"cut": true, "awk": true, "sed": true,
	"mkdir": true, "touch": true, "cp": true, "mv": true,
	"python": true, "python3": true, "pip": true, "pip3": true,
	"git": true, "node": true, "npm": true,
	"curl": true, "wget": true,
	"ps": true, "free": true, "df": true, "du": true,
	"tar": true, "zip": true, "unzip": true, "gzip": true, "gunzip": true,
}

// checkCommand applies the deny list first, then the first-word allow
// list. It returns the reason string the model will see.
func checkCommand(command string) (blocked bool, reason string) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return true, "Security: Empty command not allowed"
	}

	lowered := strings.ToLower(trimmed)
	for _, fragment := range deniedFragments {
		if strings.Contains(lowered, fragment) {
			return true, fmt.Sprintf("Security: Command blocked - %q is not allowed", fragment)
		}
	}

	first := strings.ToLower(strings.Fields(trimmed)[0])
	if !allowedCommands[first] {
		return true, fmt.Sprintf("Security: Command %q is not in the allowed list", first)
	}

	return false, ""
}
