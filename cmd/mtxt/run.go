package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/midi"
	"github.com/supersational/mtxt/internal/mtxterr"
	"github.com/supersational/mtxt/internal/record"
	"github.com/supersational/mtxt/internal/serializer"
	"github.com/supersational/mtxt/internal/store"
	"github.com/supersational/mtxt/internal/transform"
)

func isMtxtExt(ext string) bool { return ext == ".mtxt" }
func isMidiExt(ext string) bool { return ext == ".mid" || ext == ".midi" }

// run dispatches on in/out file extension exactly as
// other_examples/leafo-songtool's main.go does, then drives the parse (or
// decode) -> transform -> serialize (or encode) pipeline.
func run(inPath, outPath string, opts *options) error {
	if opts.applyDirectives && opts.extractDirectives {
		return &usageErr{msg: "--apply-directives and --extract-directives are mutually exclusive"}
	}

	inExt := strings.ToLower(filepath.Ext(inPath))
	outExt := strings.ToLower(filepath.Ext(outPath))

	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}

	st, err := decodeInput(inExt, data, opts)
	if err != nil {
		return err
	}

	st, err = applyTransforms(st, opts)
	if err != nil {
		return err
	}

	out, err := encodeOutput(outExt, st, opts)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return err
	}
	verbosef(opts, "wrote %s", outPath)
	return nil
}

func decodeInput(ext string, data []byte, opts *options) (*store.Store, error) {
	switch {
	case isMtxtExt(ext):
		verbosef(opts, "parsing mtxt text (%d bytes)", len(data))
		doc, bag := record.Parse(string(data))
		for _, w := range bag.Warnings() {
			verbosef(opts, "warning: %s", w.String())
		}
		if bag.HasErrors() {
			return nil, &bagErr{stage: stageParse, bag: bag}
		}
		return store.New(doc), nil
	case isMidiExt(ext):
		verbosef(opts, "decoding standard MIDI file (%d bytes)", len(data))
		f, err := midi.ReadSMF(data)
		if err != nil {
			return nil, err
		}
		doc, bag := midi.Decode(f, midi.Options{MergeNotes: opts.mergeNotes, Verbose: opts.verbose})
		for _, w := range bag.Warnings() {
			verbosef(opts, "warning: %s", w.String())
		}
		if bag.HasErrors() {
			return nil, &bagErr{stage: stageConversion, bag: bag}
		}
		return store.New(doc), nil
	default:
		return nil, &usageErr{msg: fmt.Sprintf("unrecognized input extension %q (want .mtxt, .mid, or .midi)", ext)}
	}
}

func encodeOutput(ext string, s *store.Store, opts *options) ([]byte, error) {
	switch {
	case isMtxtExt(ext):
		verbosef(opts, "formatting mtxt text")
		text, bag := serializer.Format(s, serializer.Options{
			ExtractDirectives: opts.extractDirectives,
			Indent:            opts.indent,
			KeepComments:      opts.keepComments,
		})
		for _, w := range bag.Warnings() {
			verbosef(opts, "warning: %s", w.String())
		}
		if bag.HasErrors() {
			return nil, &bagErr{stage: stageConversion, bag: bag}
		}
		return []byte(text), nil
	case isMidiExt(ext):
		verbosef(opts, "encoding standard MIDI file")
		f, bag := midi.Encode(s, midi.EncodeOptions{
			PPQ:                  opts.ppq,
			RunningStatus:        true,
			TransitionIntervalMs: transitionIntervalMs(s, opts),
		})
		for _, w := range bag.Warnings() {
			verbosef(opts, "warning: %s", w.String())
		}
		if bag.HasErrors() {
			return nil, &bagErr{stage: stageConversion, bag: bag}
		}
		return midi.WriteSMF(f), nil
	default:
		return nil, &usageErr{msg: fmt.Sprintf("unrecognized output extension %q (want .mtxt, .mid, or .midi)", ext)}
	}
}

// transitionIntervalMs resolves the CC/tempo sampling cadence: an explicit
// --transition-interval flag wins, then a `default transition_interval=`
// directive parsed from the source document, then midi.EncodeOptions'
// own built-in fallback (its intervalMs method).
func transitionIntervalMs(s *store.Store, opts *options) float64 {
	if opts.transitionIntervalMs > 0 {
		return opts.transitionIntervalMs
	}
	for _, d := range s.Directives {
		if d.Directive != record.DirTransitionInterval {
			continue
		}
		if ms, err := strconv.ParseFloat(d.Value, 64); err == nil && ms > 0 {
			return ms
		}
	}
	return 0
}

func applyTransforms(s *store.Store, opts *options) (*store.Store, error) {
	if opts.transpose != 0 {
		verbosef(opts, "transpose %+d semitones", opts.transpose)
		var bag *mtxterr.Bag
		s, bag = transform.Transpose(s, opts.transpose)
		for _, w := range bag.Warnings() {
			verbosef(opts, "warning: %s", w.String())
		}
	}
	if opts.quantize > 0 {
		verbosef(opts, "quantize to 1/%d grid", opts.quantize)
		s = transform.Quantize(s, float64(opts.quantize))
	}
	if opts.offset != 0 {
		verbosef(opts, "offset by %g beats", opts.offset)
		s = transform.Offset(s, beat.FromFloat64(opts.offset))
	}
	if opts.swing != 0 {
		verbosef(opts, "swing %g", opts.swing)
		s = transform.Swing(s, opts.swing)
	}
	if opts.humanize != 0 {
		verbosef(opts, "humanize %g (seed %d)", opts.humanize, opts.seed)
		s = transform.Humanize(s, opts.humanize, rand.New(rand.NewSource(opts.seed)))
	}
	if opts.includeChannels != "" {
		set, err := parseChannelSet(opts.includeChannels)
		if err != nil {
			return nil, err
		}
		s = transform.IncludeChannels(s, set)
	}
	if opts.excludeChannels != "" {
		set, err := parseChannelSet(opts.excludeChannels)
		if err != nil {
			return nil, err
		}
		s = transform.ExcludeChannels(s, set)
	}
	if opts.groupChannels {
		s = transform.GroupByChannel(s)
	}
	if opts.sort {
		s = transform.SortCanonical(s)
	}
	return s, nil
}

func parseChannelSet(csv string) (transform.ChannelSet, error) {
	parts := strings.Split(csv, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, &usageErr{msg: fmt.Sprintf("invalid channel id %q", p)}
		}
		ids = append(ids, n)
	}
	return transform.NewChannelSet(ids), nil
}
