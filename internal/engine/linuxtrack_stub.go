//go:build !(ltr && cgo)

package engine

import "fmt"

func newLinuxtrack() (Adapter, error) {
	return nil, fmt.Errorf("%w: built without the ltr tag", ErrUnavailable)
}
