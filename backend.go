package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"

	"github.com/BertoldVdb/w25flash/simflash"
	"github.com/BertoldVdb/w25flash/spidev"
	"github.com/BertoldVdb/w25flash/spiflash"
)

type options struct {
	backend    string
	port       string
	cs         string
	hz         string
	chip       string
	poll       time.Duration
	busyPolicy string
	maxTx      int

	verbose bool
	logJSON bool
}

// hardwareCS is used when the SPI controller drives /CS itself. Every frame
// is a single Tx, so the controller selects the chip for exactly one frame.
type hardwareCS struct{}

func (hardwareCS) Out(l gpio.Level) error { return nil }

type portConn struct {
	spi.Conn
	io.Closer
}

type bus struct {
	spi   spiflash.Transceiver
	cs    spiflash.ChipSelect
	maxTx int
}

func (b *bus) close() {
	if c, ok := b.spi.(io.Closer); ok {
		c.Close()
	}
}

func (o *options) frequency() (physic.Frequency, error) {
	var f physic.Frequency
	if err := f.Set(o.hz); err != nil {
		return 0, errors.Wrapf(err, "invalid frequency %q", o.hz)
	}
	return f, nil
}

func (o *options) gpioCS() (spiflash.ChipSelect, error) {
	if o.cs == "" {
		return hardwareCS{}, nil
	}

	p := gpioreg.ByName(o.cs)
	if p == nil {
		return nil, fmt.Errorf("unknown chip select pin %q", o.cs)
	}
	return p, nil
}

func (o *options) openPeriph() (*bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host initialization failed")
	}

	f, err := o.frequency()
	if err != nil {
		return nil, err
	}
	cs, err := o.gpioCS()
	if err != nil {
		return nil, err
	}

	p, err := spireg.Open(o.port)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open SPI port %q", o.port)
	}

	mode := spi.Mode0
	if o.cs != "" {
		mode |= spi.NoCS
	}
	conn, err := p.Connect(f, mode, 8)
	if err != nil {
		p.Close()
		return nil, errors.Wrap(err, "SPI connection failed")
	}

	return &bus{spi: portConn{conn, p}, cs: cs}, nil
}

func openFT232H() (*ftdi.FT232H, error) {
	for _, dev := range ftdi.All() {
		if ft, ok := dev.(*ftdi.FT232H); ok {
			return ft, nil
		}
	}
	return nil, errors.New("FT232H device not found")
}

func ftdiPin(ft *ftdi.FT232H, name string) gpio.PinIO {
	pins := map[string]gpio.PinIO{
		"D4": ft.D4, "D5": ft.D5, "D6": ft.D6, "D7": ft.D7,
		"C0": ft.C0, "C1": ft.C1, "C2": ft.C2, "C3": ft.C3,
		"C4": ft.C4, "C5": ft.C5, "C6": ft.C6, "C7": ft.C7,
	}
	return pins[strings.ToUpper(name)]
}

func (o *options) openFTDI() (*bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "host initialization failed")
	}

	f, err := o.frequency()
	if err != nil {
		return nil, err
	}

	ft, err := openFT232H()
	if err != nil {
		return nil, err
	}

	/* Without --cs the MPSSE engine drives D3 around every Tx */
	var cs spiflash.ChipSelect = hardwareCS{}
	if o.cs != "" {
		p := ftdiPin(ft, o.cs)
		if p == nil {
			return nil, fmt.Errorf("unknown FT232H pin %q", o.cs)
		}
		cs = p
	}

	p, err := ft.SPI()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get SPI port")
	}
	conn, err := p.Connect(f, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, errors.Wrap(err, "SPI connection failed")
	}

	return &bus{spi: portConn{conn, p}, cs: cs}, nil
}

func (o *options) openSpidev() (*bus, error) {
	f, err := o.frequency()
	if err != nil {
		return nil, err
	}

	port := o.port
	if port == "" {
		port = "/dev/spidev0.0"
	}

	mode := spidev.Mode0
	var cs spiflash.ChipSelect = hardwareCS{}
	if o.cs != "" {
		if _, err := host.Init(); err != nil {
			return nil, errors.Wrap(err, "host initialization failed")
		}
		if cs, err = o.gpioCS(); err != nil {
			return nil, err
		}
		mode |= spidev.NoCS
	}

	s, err := spidev.Open(port, mode, uint32(f/physic.Hertz))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", port)
	}

	return &bus{spi: s, cs: cs, maxTx: s.BufSize}, nil
}

func (o *options) openSim() (*bus, error) {
	chip := simflash.NewW25Q128JV()
	chip.BusyPolls = 3
	return &bus{spi: chip, cs: chip}, nil
}

func (o *options) openBus() (*bus, error) {
	switch o.backend {
	case "periph":
		return o.openPeriph()
	case "ftdi":
		return o.openFTDI()
	case "spidev":
		return o.openSpidev()
	case "sim":
		return o.openSim()
	}
	return nil, fmt.Errorf("unknown backend %q", o.backend)
}

func parseBusyPolicy(s string) (spiflash.BusyPolicy, error) {
	switch strings.ToLower(s) {
	case "wait":
		return spiflash.BusyPolicyWait, nil
	case "refuse":
		return spiflash.BusyPolicyRefuse, nil
	}
	return 0, fmt.Errorf("unknown busy policy %q", s)
}

func (o *options) driverOptions(b *bus) ([]spiflash.Option, error) {
	policy, err := parseBusyPolicy(o.busyPolicy)
	if err != nil {
		return nil, err
	}

	opts := []spiflash.Option{
		spiflash.WithPollInterval(o.poll),
		spiflash.WithBusyPolicy(policy),
	}

	if o.chip != "auto" {
		g, ok := spiflash.GeometryByName(o.chip)
		if !ok {
			return nil, fmt.Errorf("unknown chip %q", o.chip)
		}
		opts = append(opts, spiflash.WithGeometry(g))
	}

	maxTx := o.maxTx
	if maxTx == 0 || (b.maxTx > 0 && b.maxTx < maxTx) {
		maxTx = b.maxTx
	}
	if maxTx > 0 {
		opts = append(opts, spiflash.WithMaxTransactionSize(maxTx))
	}

	return opts, nil
}

// open connects to the flash chip and identifies it.
func (o *options) open(logger *slog.Logger) (*spiflash.Device, error) {
	b, err := o.openBus()
	if err != nil {
		return nil, err
	}

	opts, err := o.driverOptions(b)
	if err != nil {
		b.close()
		return nil, err
	}

	dev, err := spiflash.New(b.spi, b.cs, opts...)
	if err != nil {
		b.close()
		return nil, err
	}
	dev.LogFunc = driverLog(logger)

	if err := dev.Init(); err != nil {
		dev.Close()
		return nil, err
	}

	if o.chip == "auto" {
		g, err := dev.Detect()
		if err != nil {
			dev.Close()
			return nil, err
		}
		logger.Info("detected flash", "chip", g.Name, "capacity", g.Capacity)
	}

	return dev, nil
}
