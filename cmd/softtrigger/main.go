/*
Command softtrigger drives a line scan camera behind a frame grabber with
stream software triggers.

The grabber interface is configured for a software triggered line scan stream,
the camera behind it is opened in line scan mode and the trigger is executed
at a fixed period.  A serial trigger box can fire additional triggers from its
first button; its emergency stop button ends the run.
*/
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/comm"
	"github.com/nasa-jpl/mvcam/console"
	"github.com/nasa-jpl/mvcam/internal/runtimes"
	"github.com/nasa-jpl/mvcam/trigbox"
)

// StreamTrigger is the interface command which fires one software trigger
const StreamTrigger = "StreamSoftwareTrigger"

var (
	mock     = flag.Bool("mock", false, "use simulated cameras")
	verbose  = flag.Bool("v", false, "verbose logging")
	period   = flag.Duration("period", 2*time.Second, "period of the software trigger, 0 to only trigger from the box")
	lights   = flag.Int("lights", 0, "split each frame into this many interleaved exposures")
	box      = flag.String("box", "", "trigger box address, a serial device or host:port")
	isSerial = flag.Bool("serial", true, "the trigger box is on a serial port")
	baud     = flag.Int("baud", comm.DefaultBaud, "trigger box baud rate")
	minGap   = flag.Duration("gap", 200*time.Millisecond, "minimum time between triggers from the box")
)

var interfaceSetup = []camera.Parameter{
	camera.EnumString("CameraType", "LineScan"),
	camera.Bool("StreamTriggerEnable", true),
	camera.EnumString("StreamTriggerSource", "SoftwareSignal0"),
	camera.EnumString("StreamTriggerActivation", "RisingEdge"),
}

var deviceSetup = []camera.Parameter{
	camera.EnumString("ScanMode", "LineScan"),
	camera.EnumString("TriggerMode", "Off"),
}

func printer(out *os.File, n int) camera.FrameSink {
	return camera.FrameSinkFunc(func(fn camera.FrameNotification) {
		f := fn.Frame
		fmt.Fprintf(out, "Get one frame: Width[%d], Height[%d], nFrameNum[%d]\n", f.Width, f.Height, f.FrameNum)
		if n < 2 {
			return
		}
		parts, err := camera.SplitByLine(fn.Copy(), n)
		if err != nil {
			log.WithError(err).Warn("splitting frame by line")
			return
		}
		for i, p := range parts {
			fmt.Fprintf(out, "\tlight %d: Width[%d], Height[%d]\n", i, p.Width, p.Height)
		}
	})
}

// pace executes the trigger once per period until ctx is done
func pace(ctx context.Context, iface *camera.Session, period time.Duration) {
	lim := rate.NewLimiter(rate.Every(period), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		if err := iface.Execute(StreamTrigger); err != nil {
			log.WithError(err).Error("stream software trigger")
		}
	}
}

// watch fires triggers from button 1 of the box and calls estop on an
// emergency stop
func watch(l *trigbox.Listener, iface *camera.Session, gap time.Duration, estop func()) {
	lim := rate.NewLimiter(rate.Every(gap), 1)
	for p := range l.Events() {
		switch p.Event {
		case trigbox.Button1Pressed:
			if !lim.Allow() {
				log.Debug("trigger box press ignored, too soon after the last")
				continue
			}
			if err := iface.Execute(StreamTrigger); err != nil {
				log.WithError(err).Error("stream software trigger")
			}
		case trigbox.EmergencyStop:
			log.Warn("emergency stop pressed")
			estop()
			return
		}
	}
	if err := l.Err(); err != nil {
		log.WithError(err).Error("trigger box")
	}
}

func run() error {
	out := os.Stdout
	in := bufio.NewReader(os.Stdin)

	rt, err := runtimes.Select(*mock)
	if err != nil {
		return err
	}
	cat := camera.NewCatalog(rt)
	if err := cat.Initialize(); err != nil {
		console.Fail(out, "Initialize SDK", err)
		return err
	}
	defer cat.Finalize()

	ifaces, err := cat.ListInterfaces(camera.CameraLink | camera.CXP | camera.XoF)
	if err != nil {
		console.Fail(out, "Enum Interfaces", err)
		return err
	}
	if len(ifaces) == 0 {
		fmt.Fprintln(out, "Find No Interfaces!")
		return nil
	}
	console.PrintInterfaces(out, ifaces)
	idx, err := console.SelectIndex(in, out, "interface", len(ifaces))
	if err != nil {
		fmt.Fprintln(out, "Input error!")
		return err
	}
	grabber := ifaces[idx]

	iface := cat.NewSession()
	if err := iface.Open(grabber); err != nil {
		console.Fail(out, "Open Interface", err)
		return err
	}
	defer func() {
		if err := iface.Close(); err != nil {
			console.Fail(out, "Close Interface", err)
		}
	}()
	if err := iface.Configure(interfaceSetup...); err != nil {
		console.Fail(out, "Set Interface", err)
		return err
	}

	all, err := cat.ListDevices(camera.GenTLCameraLink | camera.GenTLCXP | camera.GenTLXoF)
	if err != nil {
		console.Fail(out, "Enum Devices", err)
		return err
	}
	devs := all[:0]
	for _, d := range all {
		if d.InterfaceID == grabber.InterfaceID {
			devs = append(devs, d)
		}
	}
	if len(devs) == 0 {
		fmt.Fprintln(out, "Find No Devices!")
		return nil
	}
	console.PrintDevices(out, devs)
	idx, err = console.SelectIndex(in, out, "camera", len(devs))
	if err != nil {
		fmt.Fprintln(out, "Input error!")
		return err
	}

	s := cat.NewSession()
	if err := s.Open(devs[idx]); err != nil {
		console.Fail(out, "Open Device", err)
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			console.Fail(out, "Close Device", err)
		}
	}()
	if err := s.Configure(deviceSetup...); err != nil {
		console.Fail(out, "Set Device", err)
		return err
	}
	if err := s.SetImageNodeNum(5); err != nil {
		console.Fail(out, "Set Image Node Num", err)
		return err
	}
	if err := s.StartGrabbing(printer(out, *lights)); err != nil {
		console.Fail(out, "Start Grabbing", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	if *period > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pace(ctx, iface, *period)
		}()
	}
	if *box != "" {
		link := comm.NewLink(*box, *isSerial)
		link.Baud = *baud
		if err := link.Open(); err != nil {
			console.Fail(out, "Open Trigger Box", err)
			return err
		}
		// closing the link ends the listener
		defer link.Close()
		l := trigbox.Listen(ctx, link)
		go watch(l, iface, *minGap, cancel)
	}

	done := make(chan struct{})
	go func() {
		console.WaitForEnter(in, out, "Press enter to exit")
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()

	if err := s.StopGrabbing(); err != nil {
		console.Fail(out, "Stop Grabbing", err)
		return err
	}
	return nil
}

func main() {
	flag.Parse()
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if err := run(); err != nil {
		log.Debug(err)
		os.Exit(1)
	}
}
