// Package disks maps a handful of named storage device presets to the block
// counts and sizes mkfs needs, so a caller can say --preset=floppy-1.44m
// instead of spelling out raw geometry.
package disks

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// Preset describes one predefined storage device: its marketing name, and
// the block size/count an image of that device should be formatted with.
type Preset struct {
	Slug           string `csv:"slug"`
	Name           string `csv:"name"`
	FirstYear      uint   `csv:"first_year_available"`
	BlockSizeBytes uint   `csv:"block_size_bytes"`
	TotalBlocks    uint   `csv:"total_blocks"`
	Notes          string `csv:"notes"`
}

// TotalSizeBytes gives the size of the preset's device, in bytes.
func (p *Preset) TotalSizeBytes() int64 {
	return int64(p.BlockSizeBytes) * int64(p.TotalBlocks)
}

//go:embed disk-presets.csv
var rawPresetsCSV string

var presets map[string]Preset

func init() {
	presets = make(map[string]Preset)
	reader := strings.NewReader(rawPresetsCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Preset) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("duplicate preset slug %q", row.Slug)
		}
		presets[row.Slug] = row
		return nil
	})
	if err != nil {
		panic("disks: malformed built-in preset table: " + err.Error())
	}
}

// Lookup returns the preset registered under slug.
func Lookup(slug string) (Preset, error) {
	preset, ok := presets[slug]
	if !ok {
		return Preset{}, fmt.Errorf("no predefined disk preset named %q", slug)
	}
	return preset, nil
}

// Names returns every registered preset slug.
func Names() []string {
	names := make([]string, 0, len(presets))
	for slug := range presets {
		names = append(names, slug)
	}
	return names
}
