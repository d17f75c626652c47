//go:build ltr && cgo

package engine

/*
#cgo LDFLAGS: -lltr
#include <stdlib.h>

int ltr_init(char *cust_section);
int ltr_shutdown(void);
int ltr_suspend(void);
int ltr_wakeup(void);
void ltr_recenter(void);
int ltr_get_camera_update(float *heading, float *pitch, float *roll,
                          float *tx, float *ty, float *tz,
                          unsigned int *counter);
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Linuxtrack drives the linuxtrack library (libltr).
type Linuxtrack struct{}

func newLinuxtrack() (Adapter, error) {
	return Linuxtrack{}, nil
}

// Init implements Adapter.
func (Linuxtrack) Init(profile string) error {
	cs := C.CString(profile)
	defer C.free(unsafe.Pointer(cs))
	if rc := C.ltr_init(cs); rc != 0 {
		return fmt.Errorf("ltr_init(%q): %d", profile, int(rc))
	}
	return nil
}

// Shutdown implements Adapter.
func (Linuxtrack) Shutdown() error {
	if rc := C.ltr_shutdown(); rc != 0 {
		return fmt.Errorf("ltr_shutdown: %d", int(rc))
	}
	return nil
}

// Suspend implements Adapter.
func (Linuxtrack) Suspend() error {
	if rc := C.ltr_suspend(); rc != 0 {
		return fmt.Errorf("ltr_suspend: %d", int(rc))
	}
	return nil
}

// Wakeup implements Adapter.
func (Linuxtrack) Wakeup() error {
	if rc := C.ltr_wakeup(); rc != 0 {
		return fmt.Errorf("ltr_wakeup: %d", int(rc))
	}
	return nil
}

// Recenter implements Adapter.
func (Linuxtrack) Recenter() error {
	C.ltr_recenter()
	return nil
}

// Update implements Adapter.
func (Linuxtrack) Update() (Pose, error) {
	var (
		yaw, pitch, roll C.float
		tx, ty, tz       C.float
		counter          C.uint
	)
	rc := C.ltr_get_camera_update(&yaw, &pitch, &roll, &tx, &ty, &tz, &counter)
	if rc < 0 {
		return Pose{}, fmt.Errorf("%w: ltr_get_camera_update: %d", ErrNoPose, int(rc))
	}
	return Pose{
		Yaw:     float32(yaw),
		Pitch:   float32(pitch),
		Roll:    float32(roll),
		X:       float32(tx),
		Y:       float32(ty),
		Z:       float32(tz),
		Counter: uint32(counter),
	}, nil
}
