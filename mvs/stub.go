//go:build !mvs

/*
Package mvs exposes Hikrobot MVS machine vision cameras through the camera
package's Runtime, using the MvCameraControl C SDK.

This build does not include the SDK binding.  Rebuild with -tags mvs on a
machine with the SDK installed under /opt/MVS.
*/
package mvs

import (
	"errors"

	"github.com/nasa-jpl/mvcam/camera"
)

// ErrNotBuilt is returned by New when the binary was built without -tags mvs
var ErrNotBuilt = errors.New("mvs: built without the MVS SDK, rebuild with -tags mvs")

// Available is true when the package is built against the SDK
const Available = false

// Runtime is a placeholder which cannot be constructed in this build
type Runtime struct {
	camera.Runtime
}

// New returns ErrNotBuilt
func New() (*Runtime, error) {
	return nil, ErrNotBuilt
}
