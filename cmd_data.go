package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/BertoldVdb/w25flash/dump"
	"github.com/BertoldVdb/w25flash/spiflash"
)

const chunkSize = 64 * 1024

// readRegion reads length bytes starting at address, 0 means up to the end
// of the chip.
func readRegion(logger *slog.Logger, dev *spiflash.Device, address, length uint32, fast bool) ([]byte, error) {
	g := dev.Geometry()
	if address >= g.Capacity {
		return nil, fmt.Errorf("%w: 0x%06x", spiflash.ErrorInvalidAddress, address)
	}
	if length == 0 {
		length = g.Capacity - address
	}

	read := dev.Read
	if fast {
		read = dev.FastRead
	}

	buf := make([]byte, length)
	for done := uint32(0); done < length; done += chunkSize {
		end := done + chunkSize
		if end > length {
			end = length
		}
		if err := read(address+done, buf[done:end]); err != nil {
			return nil, errors.Wrapf(err, "read at 0x%06x", address+done)
		}
		logger.Debug("read", "address", address+done, "progress", fmt.Sprintf("%d/%d", end, length))
	}
	return buf, nil
}

// loadInput returns the data to program and where it goes. Dump files carry
// their own base address unless one was given explicitly.
func loadInput(path string, address uint32, explicit bool) (uint32, []byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, errors.Wrap(err, "read input")
	}

	if !dump.IsDump(buf) {
		return address, buf, nil
	}

	h, payload, err := dump.Extract(buf)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s", path)
	}
	if !explicit {
		address = h.Base
	}
	return address, payload, nil
}

func firstMismatch(a, b []byte) int {
	for i := range a {
		if i >= len(b) || a[i] != b[i] {
			return i
		}
	}
	if len(b) > len(a) {
		return len(a)
	}
	return -1
}

func verifyRegion(logger *slog.Logger, dev *spiflash.Device, address uint32, want []byte) error {
	if len(want) == 0 {
		return nil
	}

	got, err := readRegion(logger, dev, address, uint32(len(want)), true)
	if err != nil {
		return err
	}

	if i := firstMismatch(want, got); i >= 0 {
		return fmt.Errorf("verify failed at 0x%06x: read %02x, want %02x", address+uint32(i), got[i], want[i])
	}
	logger.Info("verified", "address", address, "length", len(want), "crc", fmt.Sprintf("%08x", dump.Checksum(got)))
	return nil
}

func (a *app) readCmd() *cobra.Command {
	var (
		address, length uint32
		fast, raw       bool
		out             string
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read flash contents into a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(func(dev *spiflash.Device) error {
				data, err := readRegion(a.logger, dev, address, length, fast)
				if err != nil {
					return err
				}

				if raw {
					return errors.Wrap(os.WriteFile(out, data, 0644), "write output")
				}

				id, err := dev.Identify()
				if err != nil {
					return err
				}
				if err := dump.WriteFile(out, id.Bytes(), address, data); err != nil {
					return err
				}
				a.logger.Info("saved", "file", out, "length", len(data), "crc", fmt.Sprintf("%08x", dump.Checksum(data)))
				return nil
			})
		},
	}

	cmd.Flags().Uint32Var(&address, "addr", 0, "start address")
	cmd.Flags().Uint32Var(&length, "len", 0, "number of bytes, 0 reads to the end of the chip")
	cmd.Flags().BoolVar(&fast, "fast", false, "use the fast read command")
	cmd.Flags().BoolVar(&raw, "raw", false, "write the bare contents instead of a dump file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.MarkFlagRequired("out")

	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var address uint32

	cmd := &cobra.Command{
		Use:   "verify FILE",
		Short: "Compare flash contents with a dump or raw file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, data, err := loadInput(args[0], address, cmd.Flags().Changed("addr"))
			if err != nil {
				return err
			}

			return a.withDevice(func(dev *spiflash.Device) error {
				return verifyRegion(a.logger, dev, base, data)
			})
		},
	}

	cmd.Flags().Uint32Var(&address, "addr", 0, "start address for raw files")
	return cmd
}

// sectorSpan returns the sector aligned region covering length bytes at
// address. The data itself must fit on the chip.
func sectorSpan(g spiflash.Geometry, address uint32, length int) (uint32, uint32, error) {
	end := uint64(address) + uint64(length)
	if end > uint64(g.Capacity) {
		return 0, 0, fmt.Errorf("%w: 0x%06x+%d, capacity %d", spiflash.ErrorInvalidAddress, address, length, g.Capacity)
	}

	start := address &^ (g.SectorSize - 1)
	end = (end + uint64(g.SectorSize) - 1) &^ uint64(g.SectorSize-1)
	return start, uint32(end) - start, nil
}

// programData optionally erases the sectors data touches, programs it at base
// and optionally reads it back. Nothing is erased unless all of data fits.
func programData(logger *slog.Logger, dev *spiflash.Device, base uint32, data []byte, erase, verify bool) error {
	if len(data) == 0 {
		return nil
	}

	start, length, err := sectorSpan(dev.Geometry(), base, len(data))
	if err != nil {
		return err
	}

	if erase {
		logger.Info("erasing", "address", start, "length", length)
		if err := dev.EraseRange(start, length); err != nil {
			return err
		}
	}

	logger.Info("programming", "address", base, "length", len(data))
	if _, err := dev.Write(base, data); err != nil {
		return err
	}

	if verify {
		return verifyRegion(logger, dev, base, data)
	}
	return nil
}

func (a *app) writeCmd() *cobra.Command {
	var (
		address       uint32
		erase, verify bool
	)

	cmd := &cobra.Command{
		Use:   "write FILE",
		Short: "Program a dump or raw file",
		Long: "Program a dump or raw file. The target region must be erased, or --erase\n" +
			"must be given, which erases every sector the data touches.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, data, err := loadInput(args[0], address, cmd.Flags().Changed("addr"))
			if err != nil {
				return err
			}

			return a.withDevice(func(dev *spiflash.Device) error {
				return programData(a.logger, dev, base, data, erase, verify)
			})
		},
	}

	cmd.Flags().Uint32Var(&address, "addr", 0, "start address, dump files carry their own")
	cmd.Flags().BoolVar(&erase, "erase", false, "erase the affected sectors first")
	cmd.Flags().BoolVar(&verify, "verify", false, "read back and compare after programming")
	return cmd
}

func (a *app) eraseCmd() *cobra.Command {
	var address, length uint32

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase sectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(func(dev *spiflash.Device) error {
				if length == 0 {
					length = dev.Geometry().SectorSize
				}
				return dev.EraseRange(address, length)
			})
		},
	}

	cmd.Flags().Uint32Var(&address, "addr", 0, "sector aligned start address")
	cmd.Flags().Uint32Var(&length, "len", 0, "sector aligned length, 0 erases one sector")
	return cmd
}

func equalFF(buf []byte) bool {
	return len(bytes.Trim(buf, "\xff")) == 0
}
