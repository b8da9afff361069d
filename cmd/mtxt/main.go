// Command mtxt converts between MTXT performance text and Standard MIDI
// Files, applying an optional chain of transforms in between.
//
// Grounded on other_examples/leafo-songtool's main.go, which dispatches on
// filepath.Ext(filename) to decide whether to read MIDI, chart, or SNG
// data, and on other_examples/icco-genidi's cmd package, which wires a
// cobra.Command tree with one var block of package-level flag targets per
// subcommand. mtxt has only one real operation (convert), so that pattern
// collapses to a single root command with a convert body.
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
