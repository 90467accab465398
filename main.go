package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BertoldVdb/w25flash/spiflash"
)

type app struct {
	opts   options
	logger *slog.Logger
}

// withDevice opens the flash, runs f and closes it again.
func (a *app) withDevice(f func(dev *spiflash.Device) error) error {
	dev, err := a.opts.open(a.logger)
	if err != nil {
		return err
	}
	defer dev.Close()

	return f(dev)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "w25flash",
		Short:         "Read, program and erase Winbond W25Q SPI NOR flash",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.logger = newLogger(cmd.ErrOrStderr(), a.opts.verbose, a.opts.logJSON)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.opts.backend, "backend", "periph", "bus backend: periph|ftdi|spidev|sim")
	f.StringVar(&a.opts.port, "port", "", "SPI port name or spidev path (periph picks the first port if empty)")
	f.StringVar(&a.opts.cs, "cs", "", "GPIO used as chip select, empty lets the controller drive it")
	f.StringVar(&a.opts.hz, "hz", "1MHz", "SPI clock")
	f.StringVar(&a.opts.chip, "chip", "auto", "flash part, or auto to detect it from the JEDEC ID")
	f.DurationVar(&a.opts.poll, "poll", 100*time.Microsecond, "status poll interval while busy")
	f.StringVar(&a.opts.busyPolicy, "busy-policy", "wait", "what to do when the chip is busy before a write: wait|refuse")
	f.IntVar(&a.opts.maxTx, "max-transfer", 0, "largest SPI transaction in bytes, 0 for the backend limit")
	f.BoolVarP(&a.opts.verbose, "verbose", "v", false, "log driver activity")
	f.BoolVar(&a.opts.logJSON, "log-json", false, "log in JSON")

	root.AddCommand(
		a.idCmd(),
		a.statusCmd(),
		a.resyncCmd(),
		a.readCmd(),
		a.verifyCmd(),
		a.writeCmd(),
		a.eraseCmd(),
		a.selftestCmd(),
		a.chipsCmd(),
		a.portsCmd(),
	)

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("error:", err)
		os.Exit(1)
	}
}
