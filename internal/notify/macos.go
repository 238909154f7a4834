// Package notify posts desktop notifications for goal and shield events.
package notify

import (
	"fmt"
	"os/exec"
	"strings"
)

// Every banner carries the app name as subtitle so users can tell
// where it came from.
const subtitle = "steplock"

// Send posts a macOS notification via osascript with sound.
func Send(title, message string) error {
	script := fmt.Sprintf(
		`display notification %q with title %q subtitle %q sound name "default"`,
		escapeAppleScript(message), escapeAppleScript(title), subtitle,
	)

	cmd := exec.Command("osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
