// command lonstackd runs a single device stack (C11) as a standalone
// process: it brings up the persistent store, attaches whichever
// transports were requested on the command line, declares a handful of
// demo data points, and drives the event pump against wall-clock time.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/izot-community/lonstack/config"
	"github.com/izot-community/lonstack/engine"
	"github.com/izot-community/lonstack/izot"
	"github.com/izot-community/lonstack/lifecycle"
	"github.com/izot-community/lonstack/persist"
	"github.com/izot-community/lonstack/usblink"
)

// stdLogProvider routes every stack layer's diagnostic log through the
// standard logger when -v is given.
type stdLogProvider struct{}

func (stdLogProvider) Critical(format string, v ...interface{}) { log.Printf("[C] "+format, v...) }
func (stdLogProvider) Error(format string, v ...interface{})    { log.Printf("[E] "+format, v...) }
func (stdLogProvider) Warn(format string, v ...interface{})     { log.Printf("[W] "+format, v...) }
func (stdLogProvider) Debug(format string, v ...interface{})    { log.Printf("[D] "+format, v...) }

var (
	subnet     = flag.Int("subnet", 1, "subnet number (1-255)")
	node       = flag.Int("node", 1, "node number (1-127)")
	flashPath  = flag.String("flash", "", "backing file for the persistent store (empty: in-memory)")
	flashSize  = flag.Int("flash-size", 64*1024, "persistent store size in bytes")
	blockSize  = flag.Int("block-size", 4096, "persistent store erase-block size")
	useLSUDP   = flag.Bool("lsudp", true, "attach the LS/UDP transport")
	usbPort    = flag.String("usb", "", "serial device path for a USB-attached transceiver (empty: none)")
	usbProfile = flag.String("usb-profile", "u61", "USB framing profile: u61 or u50")
	pumpPeriod = flag.Duration("pump", 20*time.Millisecond, "event pump interval")
	verbose    = flag.Bool("v", false, "enable diagnostic logging")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "lonstackd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dev, err := openPersistDevice()
	if err != nil {
		return fmt.Errorf("open persistent store: %w", err)
	}

	ctx, err := izot.New(izot.StackConfig{
		DomainID:       []byte{0x01},
		DomainLen:      1,
		Subnet:         uint8(*subnet),
		Node:           uint8(*node),
		AddressCount:   16,
		DatapointCount: 8,
		EngineConfig:   engine.DefaultConfig(),
		TCSCapacity:    32,
		AppSignature:   0x4C4F4E00,
		PersistDevice:  dev,
		SegmentMaxSize: segmentSizes(),
	})
	if err != nil {
		return fmt.Errorf("init stack: %w", err)
	}

	if *verbose {
		ctx.SetLogProvider(stdLogProvider{})
	}

	registerDemoDatapoints(ctx)

	if *useLSUDP {
		if err := ctx.AttachLSUDP(); err != nil {
			return fmt.Errorf("attach ls/udp: %w", err)
		}
		go ctx.Link.ReadLoop()
	}

	if *usbPort != "" {
		profile, err := parseUSBProfile(*usbProfile)
		if err != nil {
			return err
		}
		if err := ctx.AttachUSB(*usbPort, profile); err != nil {
			return fmt.Errorf("attach usb: %w", err)
		}
	}

	ctx.Callbacks.ServicePinPressed = func() { fmt.Println("lonstackd: service pin pressed") }
	ctx.Callbacks.Wink = func() { fmt.Println("lonstackd: wink") }
	ctx.Callbacks.Reset = func(cause lifecycle.ResetCause) {
		fmt.Printf("lonstackd: reset, cause=%v\n", cause)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*pumpPeriod)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-sigCh:
			for _, err := range ctx.FlushSegments() {
				fmt.Fprintf(os.Stderr, "lonstackd: flush on shutdown: %v\n", err)
			}
			return nil
		case now := <-ticker.C:
			ctx.Pump(now.Sub(last))
			last = now
		}
	}
}

func openPersistDevice() (persist.Device, error) {
	if *flashPath == "" {
		return persist.NewMemDevice(*flashSize, *blockSize), nil
	}
	return persist.OpenFileDevice(*flashPath, *flashSize, *blockSize)
}

func segmentSizes() map[persist.Segment]int {
	return map[persist.Segment]int{
		persist.SegmentNetworkImage:    2048,
		persist.SegmentApplicationData: 2048,
		persist.SegmentSecurityII:      256,
		persist.SegmentNodeDefinition:  256,
		persist.SegmentUniqueID:        16,
		persist.SegmentISIConnections:  512,
		persist.SegmentISIPersistent:   512,
	}
}

func parseUSBProfile(s string) (usblink.Profile, error) {
	switch s {
	case "u61":
		return usblink.ProfileU61, nil
	case "u50":
		return usblink.ProfileU50, nil
	default:
		return 0, errors.New("usb-profile must be u61 or u50")
	}
}

// registerDemoDatapoints declares a couple of sample network variables so
// a bare lonstackd process has something to propagate/poll/bind over the
// wire without an embedding application supplying its own.
func registerDemoDatapoints(ctx *izot.StackContext) {
	ctx.RegisterDatapoint(0, 2, config.DirOutput, config.ServiceUnacknowledged, false)
	ctx.RegisterDatapoint(1, 2, config.DirInput, config.ServiceUnacknowledged, false)
}
