// Package camera provides an HTTP interface to an acquisition session
package camera

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	cam "github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/generichttp"
	"github.com/nasa-jpl/mvcam/imgrec"
	"github.com/nasa-jpl/mvcam/server"
)

// ExposureFeature is the exposure time node, in microseconds
const ExposureFeature = "ExposureTime"

// HTTPCamera wraps a session in an HTTP control interface.  It is itself a
// FrameSink: while streaming it keeps the most recent frame and pushes frame
// events to websocket clients.
type HTTPCamera struct {
	Catalog *cam.Catalog
	Session *cam.Session

	// Sink also receives every frame while streaming, e.g. a metrics sink
	Sink cam.FrameSink

	// Recorder, when enabled, saves frames fetched as FITS
	Recorder *imgrec.Recorder

	// TriggerFeature is the command executed by POST /trigger
	TriggerFeature string

	// Limiter bounds the rate of POST /trigger
	Limiter *rate.Limiter

	RouteTable generichttp.RouteTable

	mu   sync.Mutex
	last *cam.Frame

	hub *hub
}

// NewHTTPCamera returns a wrapper with its route table populated.  Software
// triggers are limited to triggerRate per second.
func NewHTTPCamera(cat *cam.Catalog, s *cam.Session, triggerRate float64) *HTTPCamera {
	h := &HTTPCamera{
		Catalog:        cat,
		Session:        s,
		TriggerFeature: cam.TriggerSoftwareFeature,
		Limiter:        rate.NewLimiter(rate.Limit(triggerRate), 1),
		hub:            newHub(),
	}
	h.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/info"}:                  h.Info,
		{Method: http.MethodGet, Path: "/devices"}:               h.Devices,
		{Method: http.MethodGet, Path: "/feature/int/{name}"}:    h.GetInt,
		{Method: http.MethodPost, Path: "/feature/int/{name}"}:   h.SetInt,
		{Method: http.MethodGet, Path: "/feature/float/{name}"}:  h.GetFloat,
		{Method: http.MethodPost, Path: "/feature/float/{name}"}: h.SetFloat,
		{Method: http.MethodGet, Path: "/feature/bool/{name}"}:   h.GetBool,
		{Method: http.MethodPost, Path: "/feature/bool/{name}"}:  h.SetBool,
		{Method: http.MethodGet, Path: "/feature/enum/{name}"}:   h.GetEnum,
		{Method: http.MethodPost, Path: "/feature/enum/{name}"}:  h.SetEnum,
		{Method: http.MethodGet, Path: "/feature/str/{name}"}:    h.GetString,
		{Method: http.MethodPost, Path: "/feature/str/{name}"}:   h.SetString,
		{Method: http.MethodPost, Path: "/feature/exec/{name}"}:  h.Execute,
		{Method: http.MethodGet, Path: "/exposure-time"}:         h.GetExposureTime,
		{Method: http.MethodPost, Path: "/exposure-time"}:        h.SetExposureTime,
		{Method: http.MethodPost, Path: "/configure"}:            h.Configure,
		{Method: http.MethodPost, Path: "/packet-size"}:          h.NegotiatePacketSize,
		{Method: http.MethodPost, Path: "/start"}:                h.Start,
		{Method: http.MethodPost, Path: "/stop"}:                 h.Stop,
		{Method: http.MethodPost, Path: "/trigger"}:              h.Trigger,
		{Method: http.MethodGet, Path: "/frame"}:                 h.GetFrame,
		{Method: http.MethodGet, Path: "/stream"}:                h.hub.ServeHTTP,
	}
	return h
}

// RT satisfies generichttp.HTTPer
func (h *HTTPCamera) RT() generichttp.RouteTable {
	return h.RouteTable
}

// OnFrame implements camera.FrameSink
func (h *HTTPCamera) OnFrame(n cam.FrameNotification) {
	f := n.Copy()
	h.mu.Lock()
	h.last = &f
	h.mu.Unlock()
	h.hub.publish(eventOf(f))
	if h.Sink != nil {
		h.Sink.OnFrame(n)
	}
}

// LastFrame returns the most recent frame delivered, if any
func (h *HTTPCamera) LastFrame() (cam.Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return cam.Frame{}, false
	}
	return *h.last, true
}

// statusOf maps error kinds onto status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, cam.ErrParameter):
		return http.StatusBadRequest
	case errors.Is(err, cam.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, cam.ErrDeviceBusy):
		return http.StatusLocked
	case errors.Is(err, cam.ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func httpError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusOf(err))
}

// kindWriter rewrites the blanket 500 of the generichttp helpers into the
// status matching the session error that caused it
type kindWriter struct {
	http.ResponseWriter
	failure *error
}

func (k kindWriter) WriteHeader(code int) {
	if code == http.StatusInternalServerError && *k.failure != nil {
		code = statusOf(*k.failure)
	}
	k.ResponseWriter.WriteHeader(code)
}

func statusWriter(w http.ResponseWriter, failure *error) http.ResponseWriter {
	return kindWriter{ResponseWriter: w, failure: failure}
}

type info struct {
	Session    string `json:"session"`
	State      string `json:"state"`
	SDKVersion string `json:"sdkVersion"`
	Transport  string `json:"transport,omitempty"`
	Label      string `json:"label,omitempty"`
	Key        string `json:"key,omitempty"`
}

// Info describes the session
func (h *HTTPCamera) Info(w http.ResponseWriter, r *http.Request) {
	i := info{
		Session:    h.Session.ID(),
		State:      h.Session.State().String(),
		SDKVersion: h.Catalog.Version(),
	}
	if d := h.Session.Descriptor(); d != nil {
		i.Transport = d.Layer().String()
		i.Label = d.Label()
		i.Key = d.Key()
	}
	server.ReplyJSON(w, i)
}

// Devices lists cameras; the transports query parameter takes the same
// syntax as camera.ParseTransport and defaults to all
func (h *HTTPCamera) Devices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("transports")
	if q == "" {
		q = "all"
	}
	mask, err := cam.ParseTransport(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	devs, err := h.Catalog.ListDevices(mask)
	if err != nil {
		httpError(w, err)
		return
	}
	server.ReplyJSON(w, devs)
}

func name(r *http.Request) string {
	return chi.URLParam(r, "name")
}

// checked replies with the error, if any, and reports whether there was none
func checked(w http.ResponseWriter, err error) bool {
	if err != nil {
		httpError(w, err)
		return false
	}
	return true
}

// GetInt returns an integer feature and its limits
func (h *HTTPCamera) GetInt(w http.ResponseWriter, r *http.Request) {
	v, err := h.Session.GetInt(name(r))
	if checked(w, err) {
		server.ReplyJSON(w, v)
	}
}

// SetInt sets an integer feature from {"int": value}
func (h *HTTPCamera) SetInt(w http.ResponseWriter, r *http.Request) {
	n := name(r)
	var failure error
	generichttp.SetInt(func(v int64) error {
		failure = h.Session.SetInt(n, v)
		return failure
	})(statusWriter(w, &failure), r)
}

// GetFloat returns a float feature and its limits
func (h *HTTPCamera) GetFloat(w http.ResponseWriter, r *http.Request) {
	v, err := h.Session.GetFloat(name(r))
	if checked(w, err) {
		server.ReplyJSON(w, v)
	}
}

// SetFloat sets a float feature from {"f64": value}
func (h *HTTPCamera) SetFloat(w http.ResponseWriter, r *http.Request) {
	n := name(r)
	var failure error
	generichttp.SetFloat(func(v float64) error {
		failure = h.Session.SetFloat(n, v)
		return failure
	})(statusWriter(w, &failure), r)
}

// GetBool returns a boolean feature as {"bool": value}
func (h *HTTPCamera) GetBool(w http.ResponseWriter, r *http.Request) {
	n := name(r)
	var failure error
	generichttp.GetBool(func() (bool, error) {
		var v bool
		v, failure = h.Session.GetBool(n)
		return v, failure
	})(statusWriter(w, &failure), r)
}

// SetBool sets a boolean feature from {"bool": value}
func (h *HTTPCamera) SetBool(w http.ResponseWriter, r *http.Request) {
	n := name(r)
	var failure error
	generichttp.SetBool(func(v bool) error {
		failure = h.Session.SetBool(n, v)
		return failure
	})(statusWriter(w, &failure), r)
}

// GetEnum returns an enumeration feature with its supported entries
func (h *HTTPCamera) GetEnum(w http.ResponseWriter, r *http.Request) {
	v, err := h.Session.GetEnum(name(r))
	if checked(w, err) {
		server.ReplyJSON(w, struct {
			cam.EnumValue
			Symbolic string `json:"symbolic"`
		}{v, v.Symbolic()})
	}
}

// SetEnum sets an enumeration feature from {"str": symbolic} or {"int": value}
func (h *HTTPCamera) SetEnum(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Str *string `json:"str"`
		Int *uint32 `json:"int"`
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch {
	case body.Str != nil:
		err = h.Session.SetEnumString(name(r), *body.Str)
	case body.Int != nil:
		err = h.Session.SetEnum(name(r), *body.Int)
	default:
		http.Error(w, `enum value must be given as "str" or "int"`, http.StatusBadRequest)
		return
	}
	if checked(w, err) {
		w.WriteHeader(http.StatusOK)
	}
}

// GetString returns a string feature as {"str": value}
func (h *HTTPCamera) GetString(w http.ResponseWriter, r *http.Request) {
	n := name(r)
	var failure error
	generichttp.GetString(func() (string, error) {
		v, err := h.Session.GetString(n)
		failure = err
		return v, err
	})(statusWriter(w, &failure), r)
}

// SetString sets a string feature from {"str": value}
func (h *HTTPCamera) SetString(w http.ResponseWriter, r *http.Request) {
	n := name(r)
	var failure error
	generichttp.SetString(func(v string) error {
		failure = h.Session.SetString(n, v)
		return failure
	})(statusWriter(w, &failure), r)
}

// Execute runs a command feature
func (h *HTTPCamera) Execute(w http.ResponseWriter, r *http.Request) {
	if checked(w, h.Session.Execute(name(r))) {
		w.WriteHeader(http.StatusOK)
	}
}

// SetExposureTime sets the exposure time on a POST request.
// it can be provided either as a query parameter exposureTime, formatted in a
// way that is parseable by golang/time.ParseDuration, or a json payload with
// key f64, holding the exposure time in seconds.
func (h *HTTPCamera) SetExposureTime(w http.ResponseWriter, r *http.Request) {
	texp := r.URL.Query().Get("exposureTime")
	var (
		d   time.Duration
		err error
	)
	if texp == "" {
		f := server.FloatT{}
		err = json.NewDecoder(r.Body).Decode(&f)
		d = time.Duration(f.F64 * 1e9) // s => ns
	} else {
		if _, perr := strconv.ParseFloat(texp, 64); perr == nil {
			texp += "s"
		}
		d, err = time.ParseDuration(texp)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	us := float64(d) / float64(time.Microsecond)
	if checked(w, h.Session.SetFloat(ExposureFeature, us)) {
		w.WriteHeader(http.StatusOK)
	}
}

// GetExposureTime gets the exposure time in seconds on a GET request
func (h *HTTPCamera) GetExposureTime(w http.ResponseWriter, r *http.Request) {
	var failure error
	generichttp.GetFloat(func() (float64, error) {
		var v cam.FloatValue
		v, failure = h.Session.GetFloat(ExposureFeature)
		return v.Cur / 1e6, failure
	})(statusWriter(w, &failure), r)
}

type namedValue struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Configure applies a JSON list of {"name", "value"} pairs in order.  Values
// are typed by their JSON kind, see camera.ParamFromValue; a JSON null
// executes a command.
func (h *HTTPCamera) Configure(w http.ResponseWriter, r *http.Request) {
	var list []namedValue
	err := json.NewDecoder(r.Body).Decode(&list)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	params := make([]cam.Parameter, 0, len(list))
	for _, nv := range list {
		p, err := cam.ParamFromValue(nv.Name, nv.Value)
		if err != nil {
			httpError(w, err)
			return
		}
		params = append(params, p)
	}
	if checked(w, h.Session.Configure(params...)) {
		w.WriteHeader(http.StatusOK)
	}
}

// NegotiatePacketSize asks the runtime for the optimal packet size and applies
// it.  A failure is a warning, reported in the body with status 200.
func (h *HTTPCamera) NegotiatePacketSize(w http.ResponseWriter, r *http.Request) {
	size, warn := h.Session.NegotiateOptimalPacketSize()
	out := struct {
		Size    int    `json:"size"`
		Warning string `json:"warning,omitempty"`
	}{Size: size}
	if warn != nil {
		out.Warning = warn.Error()
	}
	server.ReplyJSON(w, out)
}

// Start begins streaming into this wrapper
func (h *HTTPCamera) Start(w http.ResponseWriter, r *http.Request) {
	if checked(w, h.Session.StartGrabbing(h)) {
		w.WriteHeader(http.StatusOK)
	}
}

// Stop ends streaming
func (h *HTTPCamera) Stop(w http.ResponseWriter, r *http.Request) {
	if checked(w, h.Session.StopGrabbing()) {
		w.WriteHeader(http.StatusOK)
	}
}

// Trigger executes the software trigger, refusing with 429 when called faster
// than the limiter allows
func (h *HTTPCamera) Trigger(w http.ResponseWriter, r *http.Request) {
	if h.Limiter != nil && !h.Limiter.Allow() {
		http.Error(w, "software trigger rate exceeded", http.StatusTooManyRequests)
		return
	}
	if checked(w, h.Session.Execute(h.TriggerFeature)) {
		w.WriteHeader(http.StatusOK)
	}
}

// GetFrame returns the most recent frame.
//
// the image format may be specified in the fmt query parameter, one of png,
// jpg or fits; default to png.  FITS frames are also written by the recorder
// when it is enabled.
func (h *HTTPCamera) GetFrame(w http.ResponseWriter, r *http.Request) {
	f, ok := h.LastFrame()
	if !ok {
		http.Error(w, "no frame has been received", http.StatusNotFound)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("fmt"))
	switch format {
	case "", "png", "jpg", "jpeg":
		img, err := f.Image()
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		if format == "jpg" || format == "jpeg" {
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
			err = jpeg.Encode(w, img, nil)
		} else {
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			err = png.Encode(w, img)
		}
		if err != nil {
			log.WithError(err).Error("encoding frame")
		}
	case "fits":
		if h.Recorder != nil && h.Recorder.IsEnabled() {
			if fn, err := h.Recorder.WriteFrame(f); err != nil {
				log.WithError(err).Error("recording frame")
			} else {
				log.WithField("file", fn).Debug("recorded frame")
			}
		}
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", fmt.Sprintf("attachment; filename=frame%06d.fits", f.FrameNum))
		if err := imgrec.WriteFits(w, imgrec.FrameCards(f), []cam.Frame{f}); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, fmt.Sprintf("format %q is not one of png, jpg, fits", format), http.StatusBadRequest)
	}
}
