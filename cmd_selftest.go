package main

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BertoldVdb/w25flash/spiflash"
)

var testPattern = []byte{0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56, 0x78, 0x9A}

// selftest runs identify, status, erase, program and read back on the
// sector at address. The sector contents are lost.
func selftest(logger *slog.Logger, dev *spiflash.Device, address uint32) error {
	g := dev.Geometry()

	id, err := dev.Identify()
	if err != nil {
		return err
	}
	logger.Info("JEDEC ID", "manufacturer", fmt.Sprintf("%02X", id.Manufacturer),
		"type", fmt.Sprintf("%02X", id.MemoryType), "capacity", fmt.Sprintf("%02X", id.Capacity))
	if id != g.ID {
		return fmt.Errorf("ID mismatch: read %02X%02X%02X, expected %s", id.Manufacturer, id.MemoryType, id.Capacity, g.Name)
	}

	sr, err := dev.ReadStatus()
	if err != nil {
		return err
	}
	logger.Info("status", "sr1", sr.String(), "busy", sr.Busy(), "wel", sr.WriteEnableLatch(), "bp", sr.BlockProtect())
	if sr.BlockProtect() != 0 {
		logger.Warn("block protection is set, program and erase may be ignored")
	}

	if err := dev.EraseSector(address); err != nil {
		return err
	}

	buf := make([]byte, 16)
	if err := dev.Read(address, buf); err != nil {
		return err
	}
	if !equalFF(buf) {
		return fmt.Errorf("sector not erased: % X", buf)
	}

	if err := dev.ProgramPage(address, testPattern); err != nil {
		return err
	}

	if err := dev.Read(address, buf[:len(testPattern)]); err != nil {
		return err
	}
	if !bytes.Equal(buf[:len(testPattern)], testPattern) {
		return fmt.Errorf("read back % X, want % X", buf[:len(testPattern)], testPattern)
	}

	if err := dev.FastRead(address, buf); err != nil {
		return err
	}
	if !bytes.Equal(buf[:len(testPattern)], testPattern) || !equalFF(buf[len(testPattern):]) {
		return fmt.Errorf("fast read % X", buf)
	}

	if err := dev.EraseSector(address); err != nil {
		return err
	}
	if err := dev.Read(address, buf); err != nil {
		return err
	}
	if !equalFF(buf) {
		return fmt.Errorf("sector not erased after test: % X", buf)
	}

	logger.Info("selftest passed", "chip", g.Name, "address", fmt.Sprintf("0x%06x", address))
	return nil
}

func (a *app) selftestCmd() *cobra.Command {
	var (
		address uint32
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Erase, program and read back one sector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force && a.opts.backend != "sim" {
				return fmt.Errorf("selftest destroys the sector at 0x%06x, use --force", address)
			}

			return a.withDevice(func(dev *spiflash.Device) error {
				return selftest(a.logger, dev, address)
			})
		},
	}

	cmd.Flags().Uint32Var(&address, "addr", 0, "sector used for the test")
	cmd.Flags().BoolVar(&force, "force", false, "confirm that the sector may be erased")
	return cmd
}
