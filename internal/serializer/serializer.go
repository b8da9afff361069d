// Package serializer implements the Serializer (spec §4.E): rendering a
// Store back to canonical MTXT text, with optional extraction or
// application of positional default directives.
//
// Grounded on mattdees-guitartutor/backend/handlers/midi.go's buffer-
// building style (build up a []byte / strings.Builder line by line rather
// than templating) and on internal/beat's own canonical-number formatting,
// which this package reuses directly for the time column.
package serializer

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/supersational/mtxt/internal/mtxterr"
	"github.com/supersational/mtxt/internal/record"
	"github.com/supersational/mtxt/internal/store"
)

// Options configures rendering (spec §4.E).
type Options struct {
	// ExtractDirectives computes majority defaults (ch, vel, offvel, dur,
	// transition_curve) across the document's events, emits `default`
	// lines for them, and omits matching inline parameters.
	ExtractDirectives bool

	// Indent left-pads the time column to the width of the widest
	// rendered time token, for visual column alignment.
	Indent bool

	// KeepComments re-emits retained Comment records at their recorded
	// position. Callers should set this to false once a transform has
	// broken source-line correspondence (spec §4.E: "comments are
	// dropped except global header comments" once that happens) — this
	// package has no way to detect that on its own, since Store carries
	// no transform-history flag, so the caller decides.
	KeepComments bool
}

// Format renders a whole Store to canonical MTXT text (spec §4.E).
func Format(s *store.Store, opts Options) (string, *mtxterr.Bag) {
	bag := &mtxterr.Bag{}
	var b strings.Builder

	b.WriteString(fmt.Sprintf("mtxt %d.%d\n", s.Version.Major, s.Version.Minor))

	items := collectItems(s, opts)
	defaults := defaultSet{}
	if opts.ExtractDirectives {
		defaults = extractDirectives(items)
		for _, line := range defaults.directiveLines() {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	lines := make([]string, 0, len(items))
	for _, it := range items {
		line, err := formatItem(it, defaults)
		if err != nil {
			bag.AddError(it.pos().SourceLine, "%v", err)
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
	}

	if opts.Indent {
		lines = applyIndent(lines)
	}

	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	return b.String(), bag
}

// item is a uniform wrapper over everything the serializer can emit, so a
// single Seq-ordered merge can interleave aliases, events, and comments.
type item struct {
	rec     record.Record
	comment *record.Comment
}

func (it item) pos() record.Base {
	if it.comment != nil {
		return it.comment.Base
	}
	return it.rec.Pos()
}

// collectItems gathers everything after the version line — global metas
// first (spec §4.E: "Global metas next"), then the rest of the document in
// file-insertion order, which is safe because aliases are always defined
// before their first use (spec §3: "process-order scoped").
func collectItems(s *store.Store, opts Options) []item {
	var globalMetas, rest []item

	for _, a := range s.Aliases {
		rest = append(rest, item{rec: a})
	}
	for _, e := range s.Events() {
		if m, ok := e.(record.Meta); ok && m.Scope == record.ScopeGlobal {
			globalMetas = append(globalMetas, item{rec: e})
			continue
		}
		rest = append(rest, item{rec: e})
	}
	if opts.KeepComments {
		for i := range s.Comments {
			c := s.Comments[i]
			rest = append(rest, item{comment: &c})
		}
	}

	sort.SliceStable(rest, func(i, j int) bool { return rest[i].pos().Seq < rest[j].pos().Seq })
	sort.SliceStable(globalMetas, func(i, j int) bool { return globalMetas[i].pos().Seq < globalMetas[j].pos().Seq })

	out := make([]item, 0, len(globalMetas)+len(rest))
	out = append(out, globalMetas...)
	out = append(out, rest...)
	return out
}

// formatItem renders one item. An inline comment is re-emitted as its own
// "//" line rather than appended to its originating line — re-threading a
// trailing comment back onto a specific already-built line string would
// need formatRecord to return the owning line's identity alongside its
// text, which isn't worth the plumbing for what is, either way, a
// comment that round-trips as a comment.
func formatItem(it item, d defaultSet) (string, error) {
	if it.comment != nil {
		return "// " + it.comment.Text, nil
	}
	return formatRecord(it.rec, d)
}

func formatRecord(r record.Record, d defaultSet) (string, error) {
	switch v := r.(type) {
	case record.Version:
		return "", nil // emitted separately as the mandatory first line
	case record.Alias:
		return formatAlias(v), nil
	case record.DefaultDirective:
		return "", nil // superseded by extracted directives, if any
	case record.Meta:
		return timed(v.Base, formatMeta(v)), nil
	case record.Label:
		return timed(v.Base, "label "+escapeValue(v.Name)), nil
	case record.Note:
		return formatNote(v, d), nil
	case record.NoteOn:
		return timed(v.Base, formatNoteOn(v, d)), nil
	case record.NoteOff:
		return timed(v.Base, formatNoteOff(v, d)), nil
	case record.CC:
		return timed(v.Base, formatCC(v, d)), nil
	case record.Voice:
		return timed(v.Base, formatVoice(v)), nil
	case record.Tempo:
		return timed(v.Base, formatTempo(v, d)), nil
	case record.TimeSig:
		return timed(v.Base, fmt.Sprintf("timesig %d/%d", v.Num, v.Den)), nil
	case record.Tuning:
		return timed(v.Base, formatTuning(v)), nil
	case record.Reset:
		return timed(v.Base, formatReset(v)), nil
	case record.Sysex:
		return timed(v.Base, "sysex "+hex.EncodeToString(v.Bytes)), nil
	default:
		return "", fmt.Errorf("serializer: unhandled record kind %v", r.Type())
	}
}

func timed(b record.Base, body string) string {
	return b.Time.String() + " " + body
}

func formatAlias(a record.Alias) string {
	toks := make([]string, len(a.Expansion))
	for i, n := range a.Expansion {
		toks[i] = n.String()
	}
	return "alias " + a.Name + " " + strings.Join(toks, " ")
}

func formatMeta(m record.Meta) string {
	scope := "global"
	if m.Scope == record.ScopeChannel {
		scope = fmt.Sprintf("ch=%d", m.Channel)
	}
	return fmt.Sprintf("meta %s %s %s", scope, m.Key, escapeValue(m.Value))
}

// formatNote renders a Note record. A Note whose alias expanded to more
// than one pitch is split into one `note` line per pitch, all sharing the
// same time/channel/velocity/duration — equivalent on playback to a chord
// written with a single multi-pitch alias, since spec §4.C desugars a Note
// to one NoteOn/NoteOff pair per constituent pitch regardless. The
// per-pitch lines are joined with "\n", so callers receive the whole
// multi-line block as one string.
func formatNote(n record.Note, d defaultSet) string {
	var lines []string
	for _, note := range n.Notes {
		parts := []string{"note", note.String()}
		if !d.skipCh || n.Channel != d.ch {
			parts = append(parts, fmt.Sprintf("ch=%d", n.Channel))
		}
		if !d.skipVel || n.Vel != d.vel {
			parts = append(parts, "vel="+formatNum(n.Vel))
		}
		if !d.skipOffVel || n.OffVel != d.offVel {
			parts = append(parts, "offvel="+formatNum(n.OffVel))
		}
		if !d.skipDur || n.Dur != d.dur {
			parts = append(parts, "dur="+n.Dur.String())
		}
		lines = append(lines, timed(n.Base, strings.Join(parts, " ")))
	}
	return strings.Join(lines, "\n")
}

func formatNoteOn(n record.NoteOn, d defaultSet) string {
	parts := []string{"noteon", n.Note.String()}
	if !d.skipCh || n.Channel != d.ch {
		parts = append(parts, fmt.Sprintf("ch=%d", n.Channel))
	}
	if !d.skipVel || n.Vel != d.vel {
		parts = append(parts, "vel="+formatNum(n.Vel))
	}
	return strings.Join(parts, " ")
}

func formatNoteOff(n record.NoteOff, d defaultSet) string {
	parts := []string{"noteoff", n.Note.String()}
	if !d.skipCh || n.Channel != d.ch {
		parts = append(parts, fmt.Sprintf("ch=%d", n.Channel))
	}
	if !d.skipOffVel || n.OffVel != d.offVel {
		parts = append(parts, "offvel="+formatNum(n.OffVel))
	}
	return strings.Join(parts, " ")
}

func formatCC(c record.CC, d defaultSet) string {
	parts := []string{"cc", c.Controller, formatNum(c.Value)}
	if !d.skipCh || c.Channel != d.ch {
		parts = append(parts, fmt.Sprintf("ch=%d", c.Channel))
	}
	if c.Note != nil {
		parts = append(parts, "note="+c.Note.String())
	}
	if c.Transition != nil {
		parts = append(parts, "transition_time="+c.Transition.Tau.String())
		if !d.skipCurve || c.Transition.Curve != d.curve {
			parts = append(parts, "transition_curve="+formatNum(c.Transition.Curve))
		}
	}
	return strings.Join(parts, " ")
}

func formatVoice(v record.Voice) string {
	parts := []string{"voice", fmt.Sprintf("ch=%d", v.Channel)}
	parts = append(parts, v.Voices...)
	return strings.Join(parts, " ")
}

func formatTempo(t record.Tempo, d defaultSet) string {
	parts := []string{"tempo", formatNum(t.BPM)}
	if t.Transition != nil {
		parts = append(parts, "transition_time="+t.Transition.Tau.String())
		if !d.skipCurve || t.Transition.Curve != d.curve {
			parts = append(parts, "transition_curve="+formatNum(t.Transition.Curve))
		}
	}
	return strings.Join(parts, " ")
}

func formatTuning(t record.Tuning) string {
	target := t.PitchClass
	if t.TargetKind == record.TuningTargetNote {
		target = t.Note.String()
	}
	return fmt.Sprintf("tuning %s %s", target, formatNum(t.Cents))
}

func formatReset(r record.Reset) string {
	switch r.Target {
	case record.ResetAll:
		return "reset all"
	case record.ResetTuning:
		return "reset tuning"
	default:
		return fmt.Sprintf("reset ch=%d", r.Channel)
	}
}

// formatNum renders a plain (non-beat) float canonically: shortest decimal
// representation, no trailing zeros, no scientific notation, integers with
// no decimal point — the same rule spec §4.E states for the time column,
// generalized here to every other numeric field (velocity, cents, curve).
func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// escapeValue is the inverse of record.unescapeValue: it re-introduces the
// backslash escapes a free-text meta/label value needs to round-trip
// through the stricter meta-value "//" comment rule (spec §9: a "//"
// preceded by whitespace or start-of-line is a comment).
func escapeValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\n", `\n`)

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '/' && i+1 < len(s) && s[i+1] == '/' && (i == 0 || s[i-1] == ' ' || s[i-1] == '\t') {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func applyIndent(lines []string) []string {
	width := 0
	cols := make([]int, len(lines))
	for i, l := range lines {
		sp := strings.IndexByte(l, ' ')
		if sp < 0 {
			sp = len(l)
		}
		cols[i] = sp
		if sp > width {
			width = sp
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		sp := cols[i]
		if sp >= len(l) {
			out[i] = l
			continue
		}
		pad := strings.Repeat(" ", width-sp)
		out[i] = l[:sp] + pad + l[sp:]
	}
	return out
}

// StreamWriter flushes one record at a time (spec §5: "a serializer mode
// that flushes each record on append"). It always renders in fully-inlined
// form — majority-directive extraction needs whole-document knowledge it
// deliberately does not buffer for, and --indent's column width is
// likewise a whole-document property, so a streamed file is never
// column-padded.
type StreamWriter struct {
	w           io.Writer
	wroteHeader bool
	version     record.Version
}

// NewStreamWriter returns a StreamWriter that will emit the mandatory
// version line before the first Write call.
func NewStreamWriter(w io.Writer, version record.Version) *StreamWriter {
	return &StreamWriter{w: w, version: version}
}

// Write formats and flushes one Record immediately.
func (sw *StreamWriter) Write(r record.Record) error {
	if !sw.wroteHeader {
		if _, err := fmt.Fprintf(sw.w, "mtxt %d.%d\n", sw.version.Major, sw.version.Minor); err != nil {
			return err
		}
		sw.wroteHeader = true
	}
	line, err := formatRecord(r, defaultSet{})
	if err != nil {
		return err
	}
	if line == "" {
		return nil
	}
	_, err = fmt.Fprintln(sw.w, line)
	return err
}
