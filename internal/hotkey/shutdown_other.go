//go:build !linux

package hotkey

import "os"

func openPipe() (r, w *os.File, err error) {
	return os.Pipe()
}
