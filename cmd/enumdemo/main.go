/*
Command enumdemo enumerates GenTL devices on a transport chosen at the
console, opens one and pulls frames from a worker goroutine until Enter is
pressed.
*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nasa-jpl/mvcam/camera"
	"github.com/nasa-jpl/mvcam/console"
	"github.com/nasa-jpl/mvcam/internal/runtimes"
)

var (
	mock    = flag.Bool("mock", false, "use simulated cameras")
	verbose = flag.Bool("v", false, "verbose logging")
	timeout = flag.Duration("timeout", 1000*time.Millisecond, "timeout of each frame pull")
)

func work(s *camera.Session, out *os.File, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		f, err := s.NextFrame(*timeout)
		if err != nil {
			code, _ := camera.StatusCode(err)
			fmt.Fprintf(out, "Get Image fail! nRet [0x%x]\n", code)
			continue
		}
		fmt.Fprintf(out, "Get Image Buffer: Width[%d], Height[%d], FrameNum[%d], enPixelType[%x]\n",
			f.Width, f.Height, f.FrameNum, uint32(f.PixelType))
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

	mask, err := console.SelectTransport(in, out)
	if err != nil {
		fmt.Fprintln(out, "Input error!")
		return err
	}
	devs, err := cat.ListDevices(mask)
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
		if _, warn := s.NegotiateOptimalPacketSize(); warn != nil {
			fmt.Fprintf(out, "Warning: %v\n", warn)
		}
	}
	if err := s.Configure(camera.Enum("TriggerMode", 0)); err != nil {
		console.Fail(out, "Set Trigger Mode", err)
		return err
	}
	if err := s.StartGrabbing(nil); err != nil {
		console.Fail(out, "Start Grabbing", err)
		return err
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		work(s, out, stop)
	}()

	console.WaitForEnter(in, out, "Press enter to exit")
	close(stop)
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
