package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/comm"
	"github.com/nasa-jpl/mvcam/generichttp"
	camhttp "github.com/nasa-jpl/mvcam/generichttp/camera"
	"github.com/nasa-jpl/mvcam/imgrec"
	"github.com/nasa-jpl/mvcam/internal/runtimes"
	"github.com/nasa-jpl/mvcam/metrics"
	"github.com/nasa-jpl/mvcam/rig"
	"github.com/nasa-jpl/mvcam/server"
	"github.com/nasa-jpl/mvcam/server/middleware/locker"
	"github.com/nasa-jpl/mvcam/trigbox"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "mvs-http.yml"

	// DefaultCamera is the name of the one camera served when Cameras is empty
	DefaultCamera = "cam"
	k             = koanf.New(".")
)

type recorder struct {
	// Root is the root folder to write to
	Root string `yaml:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix"`

	// Enabled starts the recorder writing every streamed frame
	Enabled bool `yaml:"Enabled"`
}

type triggerBox struct {
	// Addr is a serial device or host:port; empty disables the box
	Addr string `yaml:"Addr"`

	// Serial selects a serial port instead of TCP
	Serial bool `yaml:"Serial"`

	Baud int `yaml:"Baud"`
}

type config struct {
	Addr         string                 `yaml:"Addr"`
	Root         string                 `yaml:"Root"`
	Mock         bool                   `yaml:"Mock"`
	LogLevel     string                 `yaml:"LogLevel"`
	Transports   string                 `yaml:"Transports"`
	Cameras      map[string]string      `yaml:"Cameras"`
	PacketSize   bool                   `yaml:"PacketSize"`
	ImageNodeNum int                    `yaml:"ImageNodeNum"`
	TriggerRate  float64                `yaml:"TriggerRate"`
	StreamBuffer int                    `yaml:"StreamBuffer"`
	Recorder     recorder               `yaml:"Recorder"`
	TriggerBox   triggerBox             `yaml:"TriggerBox"`
	BootupArgs   map[string]interface{} `yaml:"BootupArgs"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Addr:         ":8000",
		Root:         "/",
		LogLevel:     "info",
		Transports:   "gige|usb3",
		PacketSize:   true,
		ImageNodeNum: 5,
		TriggerRate:  10,
		StreamBuffer: 8,
		Recorder:     recorder{Prefix: "mvs"},
		TriggerBox:   triggerBox{Serial: true, Baud: comm.DefaultBaud},
		BootupArgs: map[string]interface{}{
			"AcquisitionMode": "Continuous",
			"TriggerMode":     "Off",
		}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `mvs-http exposes control of MVS machine vision cameras over HTTP
This enables a server-client architecture,
and the clients can leverage the excellent HTTP
libraries for any programming language,
instead of custom socket logic.

Usage:
	mvs-http <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `mvs-http is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.
There is no need to do this unless you want to start from the prepopulated defaults when making
a config file.

Transports is a list of transport layers separated by |, e.g. gige|usb3, or all.

Cameras maps a name to a serial number, e.g. vertical: 00E61234567.  Each camera is served
under /<name>, so its exposure is at /<name>/exposure-time.  A serial number of 'auto' opens
the first camera found on those transports which is not already in use.  Names may not
contain . or /.  With no Cameras, one camera named cam is opened with 'auto'.
/cameras lists every camera with its frame statistics; /start-all, /stop-all and /trigger-all
act on all of them at once.

Recorder.Root is the parent folder; each camera records into a folder of its own name.

BootupArgs are applied in alphabetical order of their names.  Strings set enumerations by
their symbolic name, whole numbers set integers, other numbers set floats, booleans set
booleans, and an empty value executes a command.  If for some reason there is an error during
server bootup, it may be that a feature is not supported by the camera.  Modify the BootupArgs
portion of the config to remove the offending parameters.

Mock: true serves simulated cameras instead of the MVS SDK.

TriggerBox.Addr connects a serial trigger box: button 1 fires the software trigger of every
streaming camera, the emergency stop button stops them all.  /triggerbox/connected reports
whether the box is still attached.

Prometheus metrics are served at /metrics, the list of routes at /endpoints.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("mvs-http version %v\n", Version)
}

// bootParams turns BootupArgs into parameters, sorted by name
func bootParams(args map[string]interface{}) ([]camera.Parameter, error) {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	params := make([]camera.Parameter, 0, len(names))
	for _, name := range names {
		p, err := camera.ParamFromValue(name, args[name])
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

// listenTriggerBox fires the software trigger of every streaming camera on
// button 1 and stops them all on emergency stop, until the box goes away
func listenTriggerBox(box *trigbox.Listener, link *comm.Link, rg *rig.Rig, trig string, lim *rate.Limiter) {
	for p := range box.Events() {
		blog := log.WithField("event", p.Event)
		switch p.Event {
		case trigbox.Button1Pressed:
			if !lim.Allow() {
				blog.Warn("software trigger rate exceeded, press ignored")
				continue
			}
			if err := rg.ExecuteAll(trig); err != nil {
				blog.WithError(err).Error("software trigger")
			}
		case trigbox.EmergencyStop:
			if err := rg.StopAll(); err != nil {
				blog.WithError(err).Error("stop grabbing")
			} else {
				blog.Warn("streaming stopped by trigger box")
			}
		default:
			blog.Debug("trigger box event")
		}
	}
	if err := box.Err(); err != nil {
		log.WithError(err).Error("trigger box disconnected")
	}
	link.Close()
}

// station is one camera with its HTTP interface and recorder
type station struct {
	cam     *rig.Camera
	w       *camhttp.HTTPCamera
	handoff *camera.ChannelSink
	recDone chan struct{}
}

// prefixed lists the routes of rt as mounted under /name
func prefixed(name string, rt generichttp.RouteTable) []string {
	eps := rt.Endpoints()
	for i, e := range eps {
		if method, path, ok := strings.Cut(e, " "); ok {
			eps[i] = method + " /" + name + path
		}
	}
	return eps
}

// reserved reports whether a camera mounted at /name would shadow a route of rt
func reserved(name string, rt generichttp.RouteTable) bool {
	switch name {
	case "metrics", "endpoints", "triggerbox":
		return true
	}
	for mp := range rt {
		if strings.SplitN(strings.TrimPrefix(mp.Path, "/"), "/", 2)[0] == name {
			return true
		}
	}
	return false
}

func setupStation(ctx context.Context, cfg config, cat *camera.Catalog, reg prometheus.Registerer, c *rig.Camera, params []camera.Parameter) (*station, error) {
	s := c.Session
	if cfg.ImageNodeNum > 0 {
		if err := s.SetImageNodeNum(cfg.ImageNodeNum); err != nil {
			return nil, err
		}
	}
	if err := s.Configure(params...); err != nil {
		return nil, err
	}

	msink, err := metrics.NewSink(reg, c.Name, nil)
	if err != nil {
		return nil, err
	}
	st := &station{cam: c, handoff: camera.NewChannelSink(cfg.StreamBuffer), recDone: make(chan struct{})}
	if err := metrics.RegisterChannelSink(reg, c.Name, st.handoff); err != nil {
		return nil, err
	}

	recRoot := ""
	if cfg.Recorder.Root != "" {
		recRoot = filepath.Join(cfg.Recorder.Root, c.Name)
	}
	rec := imgrec.NewRecorder(recRoot, cfg.Recorder.Prefix)
	rec.Enabled = cfg.Recorder.Enabled && recRoot != ""
	go func() {
		defer close(st.recDone)
		rec.Record(ctx, st.handoff.Frames())
	}()

	st.w = camhttp.NewHTTPCamera(cat, s, cfg.TriggerRate)
	st.w.Sink = camera.MultiSink{c.Counter(), msink, st.handoff}
	st.w.Recorder = rec
	imgrec.NewHTTPWrapper(rec).Inject(st.w)
	// start-all delivers through the same path as /<name>/start
	c.Sink = st.w
	return st, nil
}

func run() error {
	cfg := config{}
	if err := k.Unmarshal("", &cfg); err != nil {
		return err
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	cameras := cfg.Cameras
	if len(cameras) == 0 {
		cameras = map[string]string{DefaultCamera: rig.Auto}
	}

	rt, err := runtimes.Select(cfg.Mock)
	if err != nil {
		return err
	}
	cat := camera.NewCatalog(rt)
	if err := cat.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := cat.Finalize(); err != nil {
			log.WithError(err).Error("finalizing SDK")
		}
	}()
	log.WithField("version", cat.Version()).Info("SDK initialized")

	mask, err := camera.ParseTransport(cfg.Transports)
	if err != nil {
		return err
	}
	params, err := bootParams(cfg.BootupArgs)
	if err != nil {
		return err
	}

	rg := rig.New(cat, mask)
	rg.PacketSize = cfg.PacketSize
	rigw := rig.NewHTTPWrapper(rg)
	lock := locker.New()
	locker.Inject(rigw, lock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	var stations []*station
	// the sessions must be stopped before the handoff channels are closed
	defer func() {
		if err := rg.Close(); err != nil {
			log.WithError(err).Error("closing cameras")
		}
		for _, st := range stations {
			st.handoff.Close()
			<-st.recDone
		}
	}()

	names := make([]string, 0, len(cameras))
	for name := range cameras {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if reserved(name, rigw.RT()) {
			return fmt.Errorf("camera name %q collides with a server route", name)
		}
		c, err := rg.Add(name, cameras[name])
		switch {
		case camera.IsWarning(err):
			log.WithError(err).WithField("camera", name).Warn("packet size not negotiated")
		case err != nil:
			return fmt.Errorf("camera %s: %w", name, err)
		}
		st, err := setupStation(ctx, cfg, cat, reg, c, params)
		if err != nil {
			return fmt.Errorf("camera %s: %w", name, err)
		}
		stations = append(stations, st)
		log.WithFields(log.Fields{"camera": name, "session": c.Session.ID(), "device": c.Session.Descriptor().Label()}).Info("connected to camera")
	}

	if cfg.TriggerBox.Addr != "" {
		link := comm.NewLink(cfg.TriggerBox.Addr, cfg.TriggerBox.Serial)
		link.Baud = cfg.TriggerBox.Baud
		if err := link.Open(); err != nil {
			return err
		}
		defer link.Close()
		rigw.RT()[generichttp.MethodPath{Method: http.MethodGet, Path: "/triggerbox/connected"}] =
			generichttp.GetBool(func() (bool, error) { return link.Connected(), nil })
		lim := rate.NewLimiter(rate.Limit(cfg.TriggerRate), 1)
		go listenTriggerBox(trigbox.Listen(ctx, link), link, rg, camera.TriggerSoftwareFeature, lim)
	}

	endpoints := rigw.RT().Endpoints()
	mux := chi.NewRouter()
	mux.Use(lock.Check)
	rigw.RT().Bind(mux)
	for _, st := range stations {
		sub := chi.NewRouter()
		st.w.RT().Bind(sub)
		mux.Mount("/"+st.cam.Name, sub)
		endpoints = append(endpoints, prefixed(st.cam.Name, st.w.RT())...)
	}

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	root.Get("/endpoints", func(rw http.ResponseWriter, r *http.Request) {
		server.ReplyJSON(rw, endpoints)
	})
	root.Mount(generichttp.SubMuxSanitize(cfg.Root), mux)

	log.WithFields(log.Fields{"addr": cfg.Addr + cfg.Root, "cameras": names}).Info("now listening for requests")
	return server.Run(ctx, &http.Server{Addr: cfg.Addr, Handler: root}, 5*time.Second)
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		if err := run(); err != nil {
			log.Error(err)
			os.Exit(1)
		}
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
