//go:build !windows

package sendinput

import "fmt"

// SendText is a no-op stub on non-Windows builds: SendInput is a Win32-only
// API, same boundary internal/focus draws for its own platform-specific
// window control.
func SendText(text string) error {
	return fmt.Errorf("sendinput: text injection is only supported on windows")
}
