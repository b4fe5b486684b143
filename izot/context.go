// Package izot is the root of the stack (C11): it owns a StackContext
// per device, wiring the persistent store, transaction control table,
// protocol engine, LS/UDP and USB transports, device lifecycle, and
// data-point registry together and driving all of them from a single
// Pump call per event-pump iteration (§9: "Cyclic references and global
// state... become an explicit StackContext value threaded through all
// layer calls").
package izot

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/izot-community/lonstack/clog"
	"github.com/izot-community/lonstack/config"
	"github.com/izot-community/lonstack/datapoint"
	"github.com/izot-community/lonstack/engine"
	"github.com/izot-community/lonstack/internal/ticker"
	"github.com/izot-community/lonstack/lifecycle"
	"github.com/izot-community/lonstack/lsudp"
	"github.com/izot-community/lonstack/persist"
	"github.com/izot-community/lonstack/tcs"
	"github.com/izot-community/lonstack/usblink"
)

// serviceMessageCode and winkOpcode are the reserved first payload bytes
// the service-pin broadcast and the wink command use to distinguish
// themselves from ordinary application traffic on the network (§4.3's
// "Service-pin and Wink" subsection).
const (
	serviceMessageCode byte = 0xFF
	winkOpcode         byte = 0xFE
)

// checksumCheckPeriod is the periodic configuration integrity check
// interval (§3, §7): 1 Hz.
const checksumCheckPeriod = 1 * time.Second

// StackConfig is the set of fixed, stack-creation-time parameters
// (§9 open question #3: address-table/data-point capacity are explicit
// here, never derived).
type StackConfig struct {
	DomainID []byte
	DomainLen uint8
	Subnet    uint8
	Node      uint8

	AddressCount   int
	DatapointCount int

	EngineConfig engine.Config
	TCSCapacity  int
	AppSignature uint32

	PersistDevice         persist.Device
	SegmentMaxSize        map[persist.Segment]int
	SecurityIICompiledOut bool

	ResetPin      gpio.PinOut
	ServiceLEDPin gpio.PinOut

	ArchitectureNumber uint16
	FirmwareVersion    uint16
	ProgramID          [8]byte
}

// StackContext is one device's complete stack instance. NUM_STACKS (§9)
// becomes however many StackContext values the host application keeps.
type StackContext struct {
	Image      *config.Image
	Store      *persist.Store
	Scheduler  *persist.Scheduler
	Clock      *ticker.Clock
	TCS        *tcs.Table
	Engine     *engine.Engine
	Device     *lifecycle.Device
	Datapoints *datapoint.Registry

	Link *lsudp.Link
	USB  *usblink.Interface

	Callbacks Registrar

	uniqueID  [6]byte
	programID [8]byte

	status        Status
	checksumTimer *ticker.Timer

	correlators      map[uint32]*pendingRequest
	nextCorrelatorID uint32

	log clog.Clog
}

// New brings up a StackContext: persistent store, transaction control
// table, protocol engine, device lifecycle, and data-point registry.
// Transports (AttachLSUDP/AttachUSB) are wired afterward, since they may
// need to fail independently of the rest of the stack coming up (§6:
// native bus, LS/UDP, and USB framing are alternative wire protocols).
func New(cfg StackConfig) (*StackContext, error) {
	if err := cfg.EngineConfig.Valid(); err != nil {
		return nil, fmt.Errorf("izot: %w", err)
	}

	img := &config.Image{
		Addresses:  config.NewAddressTable(cfg.AddressCount),
		Datapoints: make([]config.Datapoint, cfg.DatapointCount),
	}
	if err := img.Domains[0].SetID(cfg.DomainID, int(cfg.DomainLen)); err != nil {
		return nil, err
	}
	img.Domains[0].Subnet, img.Domains[0].Node = cfg.Subnet, cfg.Node

	store, err := persist.NewStore(cfg.PersistDevice, cfg.SegmentMaxSize, cfg.SecurityIICompiledOut)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStackInitializationFailure, err)
	}

	clock := &ticker.Clock{}
	scheduler := persist.NewScheduler(store, clock, cfg.AppSignature)
	table := tcs.New(cfg.TCSCapacity, clock.Now)
	eng := engine.New(cfg.EngineConfig, clock, table)
	eng.SetSource(cfg.DomainID, cfg.DomainLen, cfg.Subnet, cfg.Node)

	device := lifecycle.NewDevice(scheduler, cfg.ResetPin)
	if cfg.ServiceLEDPin != nil {
		device.SetServiceLEDPin(cfg.ServiceLEDPin)
	}

	reg := datapoint.New(cfg.DatapointCount, img.Addresses, eng)
	for i := range img.Datapoints {
		img.Datapoints[i].Index = uint16(i)
	}

	ctx := &StackContext{
		Image:         img,
		Store:         store,
		Scheduler:     scheduler,
		Clock:         clock,
		TCS:           table,
		Engine:        eng,
		Device:        device,
		Datapoints:    reg,
		programID:     cfg.ProgramID,
		checksumTimer: ticker.New(clock),
		correlators:   make(map[uint32]*pendingRequest),
		status: Status{
			ArchitectureNumber: cfg.ArchitectureNumber,
			FirmwareVersion:    cfg.FirmwareVersion,
		},
	}
	ctx.checksumTimer.StartRepeating(checksumCheckPeriod)

	eng.SetCallbacks(ctx)
	device.SetCallbacks(ctx)
	device.SetChecksumRecomputer(ctx.recomputeChecksum)
	reg.SetCompletionHandler(ctx.Callbacks.fireDatapointUpdateCompleted)
	reg.SetUpdateHandler(ctx.Callbacks.fireDatapointUpdateOccurred)

	return ctx, nil
}

// SetLogProvider installs one diagnostic log sink across every layer of
// the stack.
func (ctx *StackContext) SetLogProvider(p clog.LogProvider) {
	ctx.log.SetLogProvider(p)
	ctx.Store.SetLogProvider(p)
	ctx.Engine.SetLogProvider(p)
	ctx.Device.SetLogProvider(p)
	if ctx.Link != nil {
		ctx.Link.SetLogProvider(p)
	}
	if ctx.USB != nil {
		ctx.USB.SetLogProvider(p)
	}
}

// SetUniqueID records the device's 48-bit unique ID, normally read off
// the attached transceiver during the USB handshake (usblink.ReadUniqueID).
func (ctx *StackContext) SetUniqueID(id [6]byte) { ctx.uniqueID = id }

// UniqueID returns the device's recorded unique ID, or
// ErrDeviceUniqueIdNotAvailable if SetUniqueID has not been called yet.
func (ctx *StackContext) UniqueID() ([6]byte, error) {
	var zero [6]byte
	if ctx.uniqueID == zero {
		return zero, ErrDeviceUniqueIdNotAvailable
	}
	return ctx.uniqueID, nil
}

// AttachLSUDP brings up the LS/UDP transport and installs it as the
// engine's link, with the device's domain/subnet/node as its source
// (§4.4). The UDP socket does not join any multicast group.
func (ctx *StackContext) AttachLSUDP() error {
	link, err := lsudp.NewLink(lsudp.NewTable())
	if err != nil {
		return ErrNoIpAddress
	}
	d := ctx.Image.Domains[0]
	link.SetSource(d.ID[:d.Len], d.Len, d.Subnet, d.Node)
	link.SetHandler(ctx.Engine)
	ctx.Engine.SetLink(link)
	ctx.Link = link
	return nil
}

// usbSender adapts usblink.Interface.Send (priority/ack/code-packet
// framed) to engine.LinkSender's SendFrame(dest, raw) shape; dest is
// unused because a USB-attached transceiver has exactly one peer, the
// bus itself.
type usbSender struct{ ifc *usblink.Interface }

func (s *usbSender) SendFrame(_ engine.Addr, raw []byte) error {
	return s.ifc.Send(false, false, usblink.CodePacket{}, raw)
}

// AttachUSB opens the serial-attached transceiver at path and bridges its
// decoded frames into the engine. If no LS/UDP transport is already
// attached, the USB link also becomes the engine's outgoing link.
func (ctx *StackContext) AttachUSB(path string, profile usblink.Profile) error {
	ifc, err := usblink.Open(path, profile)
	if err != nil {
		return err
	}
	ifc.OnMsg = func(msg []byte) {
		if err := ctx.Engine.HandleFrame(msg); err != nil {
			ctx.status.recordError("usblink: " + err.Error())
		}
	}
	ctx.USB = ifc
	if ctx.Link == nil {
		ctx.Engine.SetLink(&usbSender{ifc: ifc})
	}
	return nil
}

func (ctx *StackContext) recomputeChecksum() {
	ctx.Image.Recompute()
	ctx.Scheduler.MarkDirty(persist.SegmentNetworkImage, []byte{ctx.Image.Checksum()})
}

// checkIntegrity runs the 1 Hz configuration checksum verification
// (§3/§7): a mismatch forces ApplicationUnconfig, emits Offline, and
// requests a software reset (S6).
func (ctx *StackContext) checkIntegrity() {
	if !ctx.checksumTimer.Expired() {
		return
	}
	if err := ctx.Image.Verify(); err != nil {
		ctx.status.recordError(err.Error())
		ctx.Device.AppOffLine()
		ctx.Device.ChangeState(lifecycle.ApplicationUnconfig)
		ctx.Device.RequestAppReset()
	}
}

// Pump advances every layer by one event-pump iteration, leaf-first:
// flush any due persistent commit, advance the protocol engine, age the
// LS/UDP mapping table and fire its periodic announcement, drain and
// pump the USB transport, then the device lifecycle (service LED,
// pending reset), and finally the periodic checksum check (§5).
func (ctx *StackContext) Pump(dt time.Duration) {
	for _, err := range ctx.Scheduler.Tick() {
		ctx.status.recordError(err.Error())
	}

	ctx.Engine.Pump(dt)

	if ctx.Link != nil {
		if err := ctx.Link.Tick(dt); err != nil {
			ctx.log.Warn("izot: lsudp tick: %v", err)
		}
	}

	if ctx.USB != nil {
		if err := ctx.USB.ReadFromPort(); err != nil {
			ctx.log.Warn("izot: usb read: %v", err)
		}
		ctx.USB.Pump(dt)
	}

	ctx.Device.Pump(dt)
	ctx.checkIntegrity()
}
