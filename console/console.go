/*
Package console is the operator-facing half of the sample programs: it prints
what the catalog found, asks which entry to use and waits for the operator.

Output goes to the writer handed in (normally os.Stdout), input is read from
the reader handed in (normally os.Stdin), so every prompt can be driven from a
test.
*/
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/mvcam/camera"
)

// ErrSelection is generated when the operator's input is not a valid choice
var ErrSelection = errors.New("input error")

// PrintDevices lists cameras the way the vendor samples do, one block per
// device, with the dotted-quad address of network cameras
func PrintDevices(w io.Writer, devs []camera.DeviceDescriptor) {
	for i, d := range devs {
		fmt.Fprintf(w, "[device %d]:\n", i)
		fmt.Fprintf(w, "Transport: %s\n", d.Transport)
		fmt.Fprintf(w, "Model Name: %s\n", d.ModelName)
		fmt.Fprintf(w, "Serial Number: %s\n", d.SerialNumber)
		if ip, ok := d.IP(); ok {
			fmt.Fprintf(w, "CurrentIp: %s\n", ip)
		}
		if d.Transport.Has(camera.USB3) {
			fmt.Fprintf(w, "Device Number: %d\n", d.DeviceNumber)
		}
		if d.InterfaceID != "" {
			fmt.Fprintf(w, "Interface: %s\n", d.InterfaceID)
		}
		fmt.Fprintf(w, "UserDefinedName: %s\n\n", d.UserDefinedName)
	}
}

// PrintInterfaces lists frame grabbers
func PrintInterfaces(w io.Writer, ifaces []camera.InterfaceDescriptor) {
	for i, d := range ifaces {
		fmt.Fprintf(w, "[interface %d]:\n", i)
		fmt.Fprintf(w, "Transport: %s\n", d.Transport)
		fmt.Fprintf(w, "Display name: %s\n", d.DisplayName)
		fmt.Fprintf(w, "Serial number: %s\n", d.SerialNumber)
		fmt.Fprintf(w, "Model: %s\n\n", d.ModelName)
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// SelectIndex prompts for an integer in [0, count) and returns it.  Anything
// else is ErrSelection; the caller must not open anything in that case.
func SelectIndex(r io.Reader, w io.Writer, what string, count int) (int, error) {
	if count < 1 {
		return 0, fmt.Errorf("no %s to choose from: %w", what, ErrSelection)
	}
	fmt.Fprintf(w, "Please Input %s index(0-%d):", what, count-1)
	line, err := readLine(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSelection, err)
	}
	idx, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number: %w", line, ErrSelection)
	}
	if idx < 0 || idx >= count {
		return 0, fmt.Errorf("%d is outside 0-%d: %w", idx, count-1, ErrSelection)
	}
	return idx, nil
}

// TransportChoices are the GenTL transports offered by SelectTransport, in menu order
var TransportChoices = []struct {
	Name string
	Mask camera.Transport
}{
	{"GIGE", camera.GenTLGigE},
	{"CAMERALINK", camera.GenTLCameraLink},
	{"CXP", camera.GenTLCXP},
	{"XOF", camera.GenTLXoF},
}

// SelectTransport shows the transport menu and returns the chosen device mask
func SelectTransport(r io.Reader, w io.Writer) (camera.Transport, error) {
	for i, c := range TransportChoices {
		fmt.Fprintf(w, "[%d]: Enum %s Interface Devices\n", i, c.Name)
	}
	fmt.Fprintln(w)
	idx, err := SelectIndex(r, w, "Enum Interfaces Type", len(TransportChoices))
	if err != nil {
		return 0, err
	}
	return TransportChoices[idx].Mask, nil
}

// WaitForEnter prints msg and blocks until a line (or EOF) is read
func WaitForEnter(r io.Reader, w io.Writer, msg string) {
	fmt.Fprintln(w, msg)
	bufio.NewReader(r).ReadString('\n')
}

// Fail prints a failure the way every sample reports them: the operation and
// the vendor status code, when there is one
func Fail(w io.Writer, op string, err error) {
	if code, ok := camera.StatusCode(err); ok {
		fmt.Fprintf(w, "%s fail! nRet [0x%08x]: %v\n", op, code, err)
		return
	}
	fmt.Fprintf(w, "%s fail! %v\n", op, err)
}

// Spin shows a spinner with msg on w while fn runs
func Spin(w io.Writer, msg string, fn func() error) error {
	spinner, err := yacspin.New(yacspin.Config{
		Writer:            w,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "done",
		StopFailCharacter: "failed",
	})
	if err != nil {
		// no spinner is not a reason to skip the work
		return fn()
	}
	if err := spinner.Start(); err != nil {
		return fn()
	}
	err = fn()
	if err != nil {
		spinner.StopFail()
		return err
	}
	spinner.Stop()
	return nil
}
