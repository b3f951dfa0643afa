/*
Command grabcallback opens a camera chosen at the console and prints a line
for every frame delivered to its callback until Enter is pressed.
*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/console"
	"github.com/nasa-jpl/mvcam/internal/runtimes"
)

var (
	mock       = flag.Bool("mock", false, "use simulated cameras")
	verbose    = flag.Bool("v", false, "verbose logging")
	transports = flag.String("transports", "gige|usb3", "transport layers to enumerate, separated by |")
)

func run() error {
	out := os.Stdout
	in := bufio.NewReader(os.Stdin)

	mask, err := camera.ParseTransport(*transports)
	if err != nil {
		return err
	}
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

	var devs []camera.DeviceDescriptor
	err = console.Spin(out, "enumerating devices", func() error {
		var err error
		devs, err = cat.ListDevices(mask)
		return err
	})
	if err != nil {
		console.Fail(out, "Enum Devices", err)
		return err
	}
	if len(devs) == 0 {
		fmt.Fprintln(out, "Find No Devices!")
		return nil
	}
	console.PrintDevices(out, devs)
	idx, err := console.SelectIndex(in, out, "camera", len(devs))
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

	if devs[idx].Transport.Network() {
		if size, warn := s.NegotiateOptimalPacketSize(); warn != nil {
			fmt.Fprintf(out, "Warning: %v\n", warn)
		} else {
			log.WithField("size", size).Debug("packet size negotiated")
		}
	}
	if err := s.Configure(camera.Enum("TriggerMode", 0)); err != nil {
		console.Fail(out, "Set Trigger Mode", err)
		return err
	}

	sink := camera.FrameSinkFunc(func(n camera.FrameNotification) {
		fmt.Fprintf(out, "Get one frame: Width[%d], Height[%d], nFrameNum[%d]\n",
			n.Frame.Width, n.Frame.Height, n.Frame.FrameNum)
	})
	if err := s.StartGrabbing(sink); err != nil {
		console.Fail(out, "Start Grabbing", err)
		return err
	}
	console.WaitForEnter(in, out, "Press enter to exit")
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
