//go:build !unix

package cli

import "os"

// IsTerminal always reports false where no terminal ioctl is available.
func IsTerminal(f *os.File) bool { return false }
