// Package browser opens URLs in the user's default browser, used to hand
// an OAuth authorization URL to the user.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Open launches the default browser at url. Failure is not fatal for
// callers: the URL can always be printed for a manual copy-paste.
func Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: open url: %w", err)
	}
	// Detach; the browser outlives the command.
	go cmd.Wait()
	return nil
}
