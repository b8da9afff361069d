// Package record implements the Record Parser's typed event model (spec
// §3, §4.C): the discriminated union of MTXT line kinds, plus the
// composite ordering key used by internal/store.
//
// Grounded on mattdees-guitartutor/backend/models/models.go's flat,
// field-only struct style (Instrument, Progression, ChordVariant are plain
// data with no behavior beyond accessors) — generalized here to one
// concrete struct per record variant with a shared Base, the idiomatic Go
// substitute for a tagged union.
package record

import (
	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/pitch"
)

// Kind discriminates the concrete Record variant.
type Kind int

const (
	KindVersion Kind = iota
	KindMeta
	KindAlias
	KindDefaultDirective
	KindNote
	KindNoteOn
	KindNoteOff
	KindCC
	KindVoice
	KindTempo
	KindTimeSig
	KindTuning
	KindReset
	KindSysex
	KindComment
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindVersion:
		return "version"
	case KindMeta:
		return "meta"
	case KindAlias:
		return "alias"
	case KindDefaultDirective:
		return "default"
	case KindNote:
		return "note"
	case KindNoteOn:
		return "noteon"
	case KindNoteOff:
		return "noteoff"
	case KindCC:
		return "cc"
	case KindVoice:
		return "voice"
	case KindTempo:
		return "tempo"
	case KindTimeSig:
		return "timesig"
	case KindTuning:
		return "tuning"
	case KindReset:
		return "reset"
	case KindSysex:
		return "sysex"
	case KindComment:
		return "comment"
	case KindLabel:
		return "label"
	default:
		return "unknown"
	}
}

// Record is the common interface implemented by every line-kind struct.
// Common fields (time, source line) live in the embedded Base; channel,
// where applicable, is a field on the concrete type rather than on Base,
// since not every Record carries one.
type Record interface {
	isRecord()
	Type() Kind
	Pos() Base
}

// Base holds the fields spec §3 calls common to every Record: a beat-time
// (meaningful only for time-bearing kinds; Zero otherwise), the 1-based
// source line for diagnostics, and a file-insertion sequence number used
// as the tertiary sort key (spec §4.C: "file-insertion order is preserved
// as a tertiary key").
type Base struct {
	Time       beat.Beat
	SourceLine int
	Seq        int
}

func (b Base) Pos() Base { return b }

// Version must be the first non-comment record; only 1.x is accepted.
type Version struct {
	Base
	Major int
	Minor int
}

func (Version) isRecord()    {}
func (Version) Type() Kind   { return KindVersion }

// Scope distinguishes a Meta record's applicability.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeChannel
)

// Meta is free-text metadata, global or channel-scoped (spec §9 Q3: the
// scoped form is canonical; a legacy unscoped line is treated as global).
type Meta struct {
	Base
	Scope   Scope
	Channel int // valid when Scope == ScopeChannel
	Key     string
	Value   string
}

func (Meta) isRecord()  {}
func (Meta) Type() Kind { return KindMeta }

// Alias maps a symbolic name to one or more concrete note identifiers.
// Redefinition shadows a prior definition of the same name (spec §3).
type Alias struct {
	Base
	Name      string
	Expansion []pitch.NoteId
}

func (Alias) isRecord()  {}
func (Alias) Type() Kind { return KindAlias }

// DirectiveKind enumerates the positional defaults spec §3 names.
type DirectiveKind int

const (
	DirCh DirectiveKind = iota
	DirVel
	DirOffVel
	DirDur
	DirTransitionCurve
	DirTransitionInterval
)

func (k DirectiveKind) String() string {
	switch k {
	case DirCh:
		return "ch"
	case DirVel:
		return "vel"
	case DirOffVel:
		return "offvel"
	case DirDur:
		return "dur"
	case DirTransitionCurve:
		return "transition_curve"
	case DirTransitionInterval:
		return "transition_interval"
	default:
		return "unknown"
	}
}

// DefaultDirective sets a positional default applied to subsequent
// records until re-set; it is not itself a timed event.
type DefaultDirective struct {
	Base
	Directive DirectiveKind
	Value     string
}

func (DefaultDirective) isRecord()  {}
func (DefaultDirective) Type() Kind { return KindDefaultDirective }

// Transition is the envelope attached to a CC or Tempo record describing a
// glide to the record's value over Tau beats with shape Curve (spec §4.F).
// Tau==0 means an instantaneous set.
type Transition struct {
	Curve float64
	Tau   beat.Beat
}

// Note is the shorthand record that desugars to a NoteOn/NoteOff pair at
// MIDI-export time (spec §3). A note reference may expand (via alias) to more than
// one concrete pitch, in which case every pitch in Notes sounds together.
type Note struct {
	Base
	Channel int
	Notes   []pitch.NoteId
	Dur     beat.Beat
	Vel     float64
	OffVel  float64
}

func (Note) isRecord()  {}
func (Note) Type() Kind { return KindNote }

// NoteOn is an explicit note-on event, distinct from the Note shorthand.
type NoteOn struct {
	Base
	Channel int
	Note    pitch.NoteId
	Vel     float64
}

func (NoteOn) isRecord()  {}
func (NoteOn) Type() Kind { return KindNoteOn }

// NoteOff is an explicit note-off event.
type NoteOff struct {
	Base
	Channel int
	Note    pitch.NoteId
	OffVel  float64
}

func (NoteOff) isRecord()  {}
func (NoteOff) Type() Kind { return KindNoteOff }

// CC is a controller value, either channel-wide (Note == nil) or
// per-note (Note != nil), per the two CC ranks in spec §4.C's sort order.
// Controller is the canonical standard name ("volume", "pan", "pitch", …)
// or, for an unrecognized CC number, "cc<N>" as spec §4.G's decoder emits.
type CC struct {
	Base
	Channel    int
	Controller string
	Value      float64
	Note       *pitch.NoteId
	Transition *Transition
}

func (CC) isRecord()  {}
func (CC) Type() Kind { return KindCC }

// Voice is an ordered fallback list of instrument/voice names for a
// channel.
type Voice struct {
	Base
	Channel int
	Voices  []string
}

func (Voice) isRecord()  {}
func (Voice) Type() Kind { return KindVoice }

// Tempo sets beats-per-minute, optionally as a transition target.
type Tempo struct {
	Base
	BPM        float64
	Transition *Transition
}

func (Tempo) isRecord()  {}
func (Tempo) Type() Kind { return KindTempo }

// TimeSig sets the prevailing time signature; Den must be a power of two
// in {1,2,4,8,16,32,64} (spec §3).
type TimeSig struct {
	Base
	Num int
	Den int
}

func (TimeSig) isRecord()  {}
func (TimeSig) Type() Kind { return KindTimeSig }

// TuningTarget distinguishes a pitch-class-wide microtuning offset from a
// single-note one.
type TuningTarget int

const (
	TuningTargetPitchClass TuningTarget = iota
	TuningTargetNote
)

// Tuning applies a cents offset to a pitch class or a specific note.
type Tuning struct {
	Base
	TargetKind TuningTarget
	PitchClass string // valid when TargetKind == TuningTargetPitchClass
	Note       pitch.NoteId
	Cents      float64
}

func (Tuning) isRecord()  {}
func (Tuning) Type() Kind { return KindTuning }

// ResetTarget enumerates what a Reset record clears.
type ResetTarget int

const (
	ResetAll ResetTarget = iota
	ResetChannel
	ResetTuning
)

// Reset clears either all channel state, one channel, or microtuning
// state, per spec §4.H.
type Reset struct {
	Base
	Target  ResetTarget
	Channel int // valid when Target == ResetChannel
}

func (Reset) isRecord()  {}
func (Reset) Type() Kind { return KindReset }

// Sysex is a raw system-exclusive payload, passed through verbatim.
type Sysex struct {
	Base
	Bytes []byte
}

func (Sysex) isRecord()  {}
func (Sysex) Type() Kind { return KindSysex }

// Comment is retained only for round-trip when the serializer is
// configured to preserve comments (spec §3); Inline marks a trailing
// same-line comment as opposed to a whole-line one.
type Comment struct {
	Base
	Text   string
	Inline bool
}

func (Comment) isRecord()  {}
func (Comment) Type() Kind { return KindComment }

// Label is a zero-duration named marker. It is not named by spec.md's
// Record union; supplemented from the pack's williamsharkey-midi
// messages/meta package, which models SMF Marker (FF 06) as its own
// message type distinct from free-text Meta. A Label round-trips through
// SMF as a Marker meta event, giving MTXT a lightweight rehearsal-mark
// primitive that doesn't overload `meta`.
type Label struct {
	Base
	Name string
}

func (Label) isRecord()  {}
func (Label) Type() Kind { return KindLabel }

// typeRank implements spec §4.C's stable secondary sort key:
// Meta < Tuning < Reset < TimeSig < Tempo < Voice < CC(channel-wide) <
// NoteOff < NoteOn < CC(per-note) < Sysex.
//
// Note shoulders the same rank as NoteOn: it represents an onset at its
// own Time, and its derived NoteOff (at Time+Dur) is only materialized at
// MIDI-export time (spec §3), so it never competes with a real NoteOff
// for tie-break order within the Event Store.
//
// Label has no place in the spec's listed rank chain; it is ordered
// immediately after Sysex as the newest, least entangled addition.
func typeRank(r Record) int {
	switch v := r.(type) {
	case Meta:
		return 0
	case Tuning:
		return 1
	case Reset:
		return 2
	case TimeSig:
		return 3
	case Tempo:
		return 4
	case Voice:
		return 5
	case CC:
		if v.Note == nil {
			return 6
		}
		return 9
	case NoteOff:
		return 7
	case NoteOn:
		return 8
	case Note:
		return 8
	case Sysex:
		return 10
	case Label:
		return 11
	default:
		return 12
	}
}

// Less implements the full composite ordering contract: time ascending,
// then type rank, then file-insertion order.
func Less(a, b Record) bool {
	pa, pb := a.Pos(), b.Pos()
	if c := pa.Time.Cmp(pb.Time); c != 0 {
		return c < 0
	}
	if ra, rb := typeRank(a), typeRank(b); ra != rb {
		return ra < rb
	}
	return pa.Seq < pb.Seq
}
