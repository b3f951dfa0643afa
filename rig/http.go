package rig

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/generichttp"
)

// HTTPWrapper exposes a rig over HTTP
type HTTPWrapper struct {
	*Rig

	// TriggerFeature is the command run by /trigger-all
	TriggerFeature string

	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns an HTTP wrapper around a rig with routes
//
//	GET  /cameras
//	GET  /cameras/{name}/stats
//	GET  /cameras/{name}/frames
//	POST /start-all
//	POST /stop-all
//	POST /trigger-all
func NewHTTPWrapper(r *Rig) *HTTPWrapper {
	h := &HTTPWrapper{Rig: r, TriggerFeature: camera.TriggerSoftwareFeature}
	h.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/cameras"}:               h.GetCameras,
		{Method: http.MethodGet, Path: "/cameras/{name}/stats"}:  h.GetStats,
		{Method: http.MethodGet, Path: "/cameras/{name}/frames"}: h.GetFrames,
		{Method: http.MethodPost, Path: "/start-all"}:            h.all(r.StartAll),
		{Method: http.MethodPost, Path: "/stop-all"}:             h.all(r.StopAll),
		{Method: http.MethodPost, Path: "/trigger-all"}:          h.all(h.triggerAll),
	}
	return h
}

// RT satisfies generichttp.HTTPer
func (h *HTTPWrapper) RT() generichttp.RouteTable { return h.RouteTable }

// GetCameras lists every camera with its state and frame statistics
func (h *HTTPWrapper) GetCameras(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Status()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *HTTPWrapper) named(w http.ResponseWriter, r *http.Request) (*Camera, bool) {
	name := chi.URLParam(r, "name")
	c, ok := h.Camera(name)
	if !ok {
		http.Error(w, "no camera named "+name, http.StatusNotFound)
	}
	return c, ok
}

// GetStats returns the frame statistics of one camera
func (h *HTTPWrapper) GetStats(w http.ResponseWriter, r *http.Request) {
	c, ok := h.named(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.Stats()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetFrames returns the number of frames one camera delivered as {"int": n}
func (h *HTTPWrapper) GetFrames(w http.ResponseWriter, r *http.Request) {
	c, ok := h.named(w, r)
	if !ok {
		return
	}
	generichttp.GetInt(func() (int64, error) {
		return int64(c.Stats().Frames), nil
	})(w, r)
}

func (h *HTTPWrapper) triggerAll() error { return h.ExecuteAll(h.TriggerFeature) }

func (h *HTTPWrapper) all(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, camera.ErrInvalidState) {
				code = http.StatusConflict
			}
			http.Error(w, err.Error(), code)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
