package main

import (
	"log"

	"github.com/spf13/cobra"
)

// options collects every flag the convert pipeline reads, bound directly
// to cobra.Command.Flags() in newRootCommand. A plain struct rather than a
// config file or viper layer: mtxt has no persistent settings, only
// per-invocation flags (spec §6).
type options struct {
	transpose int
	quantize  int
	offset    float64
	swing     float64
	humanize  float64
	seed      int64

	includeChannels string
	excludeChannels string

	applyDirectives   bool
	extractDirectives bool
	mergeNotes        bool
	groupChannels     bool
	sort              bool
	indent            bool
	keepComments      bool

	transitionIntervalMs float64
	ppq                  int

	verbose bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "mtxt <in> <out>",
		Short: "Convert between MTXT performance text and Standard MIDI Files",
		Long: `mtxt converts a text-based musical performance format to and from
Standard MIDI Files, applying an optional chain of transforms (transpose,
quantize, offset, swing, humanize, channel filters, grouping) in between.

The direction is chosen from the input and output file extensions:
.mtxt text in, .mid/.midi out encodes; .mid/.midi in, .mtxt out decodes.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.transpose, "transpose", 0, "shift every pitch by N semitones")
	flags.IntVarP(&opts.quantize, "quantize", "q", 0, "snap event times to a 1/N beat grid (0 disables)")
	flags.Float64Var(&opts.offset, "offset", 0, "shift every event time by this many beats")
	flags.Float64Var(&opts.swing, "swing", 0, "delay off-beat eighth notes by this fraction of one third of an eighth note")
	flags.Float64Var(&opts.humanize, "humanize", 0, "jitter event times by up to this many sixteenth-beats")
	flags.Int64Var(&opts.seed, "seed", 1, "random seed for --humanize")
	flags.StringVar(&opts.includeChannels, "include-channels", "", "comma-separated channel ids to keep; channel-less events always pass through")
	flags.StringVar(&opts.excludeChannels, "exclude-channels", "", "comma-separated channel ids to drop; channel-less events always pass through")
	flags.BoolVar(&opts.applyDirectives, "apply-directives", false, "materialize positional defaults into literal fields on text output")
	flags.BoolVar(&opts.extractDirectives, "extract-directives", false, "factor the majority value of each positional default into a default directive on text output")
	flags.BoolVar(&opts.mergeNotes, "merge-notes", true, "pair MIDI note-on/note-off messages into single note records on decode")
	flags.BoolVar(&opts.groupChannels, "group-channels", false, "reorder output so each channel's events are contiguous")
	flags.BoolVar(&opts.sort, "sort", false, "reapply canonical time-ordering before output")
	flags.BoolVar(&opts.indent, "indent", false, "align the time column on text output")
	flags.BoolVar(&opts.keepComments, "keep-comments", true, "retain source comments on text output")
	flags.Float64Var(&opts.transitionIntervalMs, "transition-interval", 0, "CC/tempo transition sampling cadence in milliseconds (0: use the document's default or a built-in fallback)")
	flags.IntVar(&opts.ppq, "ppq", 0, "MIDI ticks per quarter note on encode (0: 480)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log each pipeline stage to stderr")

	return cmd
}

func verbosef(opts *options, format string, args ...any) {
	if opts.verbose {
		log.Printf(format, args...)
	}
}
