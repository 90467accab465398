package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/BertoldVdb/w25flash/spidev"
	"github.com/BertoldVdb/w25flash/spiflash"
)

func (a *app) idCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Read the JEDEC ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(func(dev *spiflash.Device) error {
				id, err := dev.Identify()
				if err != nil {
					return err
				}

				name := "unknown"
				if g, ok := spiflash.Lookup(id); ok {
					name = g.Name
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%02X %02X %02X %s\n", id.Manufacturer, id.MemoryType, id.Capacity, name)
				return nil
			})
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read status register 1",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(func(dev *spiflash.Device) error {
				sr, err := dev.ReadStatus()
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "SR1 0x%02X %s\n", uint8(sr), sr)
				fmt.Fprintf(cmd.OutOrStdout(), "  BUSY %v WEL %v BP %d\n", sr.Busy(), sr.WriteEnableLatch(), sr.BlockProtect())
				return nil
			})
		},
	}
}

func (a *app) resyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Check that the chip finished its last operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDevice(func(dev *spiflash.Device) error {
				if err := dev.Resync(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "idle")
				return nil
			})
		},
	}
}

func (a *app) chipsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chips",
		Short: "List the supported flash parts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, g := range spiflash.Devices() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %02X%02X%02X %8d bytes, page %d, sector %d\n",
					g.Name, g.ID.Manufacturer, g.ID.MemoryType, g.ID.Capacity, g.Capacity, g.PageSize, g.SectorSize)
			}
			return nil
		},
	}
}

func (a *app) portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List SPI ports known to periph and spidev",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := host.Init(); err != nil {
				a.logger.Warn("host initialization failed", "err", err)
			}
			for _, ref := range spireg.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "periph  %s %v\n", ref.Name, ref.Aliases)
			}

			infos, err := spidev.Find()
			if err != nil {
				return err
			}
			for _, m := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "spidev  %s\n", m)
			}
			return nil
		},
	}
}
