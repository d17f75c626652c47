//go:build linux

package hotkey

import (
	"os"

	"golang.org/x/sys/unix"
)

func openPipe() (r, w *os.File, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, nil, err
	}
	return os.NewFile(uintptr(p[0]), "ltrnp-shutdown-r"), os.NewFile(uintptr(p[1]), "ltrnp-shutdown-w"), nil
}
