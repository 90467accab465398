package spidev

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
)

const sysClass = "/sys/class/spidev"

// Info describes a spidev node.
type Info struct {
	Path       string
	Bus        int
	ChipSelect int

	// Modalias of the device bound to the node, e.g. "spi:spidev".
	Modalias string
}

func (i Info) String() string {
	return fmt.Sprintf("%s (bus %d, cs %d, %s)", i.Path, i.Bus, i.ChipSelect, i.Modalias)
}

// parseName splits "spidevB.C" into bus and chip select.
func parseName(name string) (int, int, bool) {
	if !strings.HasPrefix(name, "spidev") {
		return 0, 0, false
	}

	bus, cs, ok := strings.Cut(name[6:], ".")
	if !ok {
		return 0, 0, false
	}

	b, err := strconv.ParseUint(bus, 10, 16)
	if err != nil {
		return 0, 0, false
	}
	c, err := strconv.ParseUint(cs, 10, 16)
	if err != nil {
		return 0, 0, false
	}

	return int(b), int(c), true
}

func readModalias(file string) string {
	data, err := os.ReadFile(file)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func find(class string) ([]Info, error) {
	entries, err := os.ReadDir(class)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var results []Info
	for _, m := range entries {
		name := m.Name()

		bus, cs, ok := parseName(name)
		if !ok {
			continue
		}

		results = append(results, Info{
			Path:       "/dev/" + name,
			Bus:        bus,
			ChipSelect: cs,
			Modalias:   readModalias(path.Join(class, name, "device", "modalias")),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Bus != results[j].Bus {
			return results[i].Bus < results[j].Bus
		}
		return results[i].ChipSelect < results[j].ChipSelect
	})
	return results, nil
}

// Find lists the spidev nodes registered in sysfs.
func Find() ([]Info, error) {
	return find(sysClass)
}
