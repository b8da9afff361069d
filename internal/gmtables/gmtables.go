// Package gmtables holds the General MIDI reference tables the decoder
// needs to turn numeric Program Change and Control Change values into the
// named forms a Voice or CC record carries (spec §4.G: "Program Change maps
// to a Voice record using the General MIDI instrument name" and "known
// controller numbers map to their standard name; unknown numbers pass
// through as cc<N>").
package gmtables

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

type tables struct {
	Instruments map[int]string `yaml:"instruments"`
	Controllers map[int]string `yaml:"controllers"`
}

var (
	once   sync.Once
	loaded tables
	byName map[string]int
)

func load() {
	once.Do(func() {
		if err := yaml.Unmarshal(tablesYAML, &loaded); err != nil {
			panic(fmt.Sprintf("gmtables: embedded table is malformed: %v", err))
		}
		byName = make(map[string]int, len(loaded.Controllers))
		for n, name := range loaded.Controllers {
			byName[name] = n
		}
	})
}

// InstrumentName returns the General MIDI instrument name for a 0-indexed
// program number, or "" if out of range.
func InstrumentName(program int) string {
	load()
	return loaded.Instruments[program]
}

// ProgramForInstrument is the inverse of InstrumentName, used by the
// encoder when a Voice record names a patch by its GM instrument name.
func ProgramForInstrument(name string) (int, bool) {
	load()
	for n, inst := range loaded.Instruments {
		if inst == name {
			return n, true
		}
	}
	return 0, false
}

// ControllerName returns the standard lowercase name for a CC number, and
// true if it is a known controller. Callers should fall back to
// fmt.Sprintf("cc%d", n) when ok is false.
func ControllerName(n int) (string, bool) {
	load()
	name, ok := loaded.Controllers[n]
	return name, ok
}

// ControllerNumber is the inverse of ControllerName.
func ControllerNumber(name string) (int, bool) {
	load()
	n, ok := byName[name]
	return n, ok
}
