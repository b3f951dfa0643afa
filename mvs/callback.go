//go:build mvs

package mvs

/*
#include <stdint.h>
#include "MvCameraControl.h"
*/
import "C"
import (
	"runtime/cgo"

	"github.com/nasa-jpl/mvcam/camera"
)

//export goFrameReady
func goFrameReady(data *C.uchar, info *C.MV_FRAME_OUT_INFO_EX, ctx C.uintptr_t) {
	if ctx == 0 || info == nil {
		return
	}
	fn, ok := cgo.Handle(ctx).Value().(func(camera.FrameNotification))
	if !ok {
		return
	}
	fn(notification(data, info))
}
