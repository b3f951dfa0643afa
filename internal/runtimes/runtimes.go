// Package runtimes picks the camera runtime an executable talks to
package runtimes

import (
	log "github.com/sirupsen/logrus"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/mvs"
	"github.com/nasa-jpl/mvcam/sim"
)

// Select returns the simulator when mock is true, otherwise the MVS SDK.  A
// binary built without the SDK fails with mvs.ErrNotBuilt unless mock is set.
func Select(mock bool, opts ...sim.Option) (camera.Runtime, error) {
	if mock {
		log.Info("using simulated cameras")
		return sim.New(opts...), nil
	}
	rt, err := mvs.New()
	if err != nil {
		return nil, err
	}
	return rt, nil
}
