package midi

import (
	"fmt"
	"math"
	"sort"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/gmtables"
	"github.com/supersational/mtxt/internal/mtxterr"
	"github.com/supersational/mtxt/internal/record"
	"github.com/supersational/mtxt/internal/store"
	"github.com/supersational/mtxt/internal/transition"
)

// EncodeOptions controls the encoder (spec §4.H, §6).
type EncodeOptions struct {
	PPQ            int
	RunningStatus  bool
	TransitionIntervalMs float64
}

func (o EncodeOptions) ppq() int {
	if o.PPQ > 0 {
		return o.PPQ
	}
	return TicksPerQuarter
}

func (o EncodeOptions) intervalMs() float64 {
	if o.TransitionIntervalMs > 0 {
		return o.TransitionIntervalMs
	}
	return 20 // 50Hz default sampling, fine enough for audible CC ramps
}

// trackEvent is one channel or meta/sysex event queued for a track, in
// insertion order, to be delta-encoded and optionally running-status
// compressed at the end.
type trackEvent struct {
	tick  uint32
	bytes []byte // full status+data bytes (no delta, no meta length header)
}

// Encode renders a Store into a Standard MIDI File (spec §4.H).
func Encode(s *store.Store, opts EncodeOptions) (*File, *mtxterr.Bag) {
	bag := &mtxterr.Bag{}
	ppq := opts.ppq()

	beatToTick := func(t beat.Beat) uint32 {
		exact := t.Float64() * float64(ppq)
		return bankersRound(exact)
	}

	logicalChannels := map[int]bool{}
	for _, r := range s.Events() {
		switch v := r.(type) {
		case record.NoteOn:
			logicalChannels[v.Channel] = true
		case record.NoteOff:
			logicalChannels[v.Channel] = true
		case record.Note:
			logicalChannels[v.Channel] = true
		case record.CC:
			logicalChannels[v.Channel] = true
		case record.Voice:
			logicalChannels[v.Channel] = true
		}
	}
	alloc := newChannelAllocator(logicalChannels)
	conflicted := conflictingChannels(s)
	txSegments := buildTransitionSegments(s, bag)

	events := make(map[int][]trackEvent) // track index -> events

	emit := func(trackIdx int, tick uint32, bytes []byte) {
		events[trackIdx] = append(events[trackIdx], trackEvent{tick: tick, bytes: bytes})
	}

	tempoMeta := func(bpm float64) []byte {
		return append([]byte{0xFF}, append([]byte{0x51, 0x03}, encode24(60_000_000.0/bpm)...)...)
	}

	// Tempo track (track 0) always carries tempo meta events.
	sawTempo := false
	for _, r := range s.Events() {
		if tmp, ok := r.(record.Tempo); ok {
			emit(0, beatToTick(tmp.Base.Time), tempoMeta(tmp.BPM))
			sawTempo = true
			if tmp.Transition != nil {
				if seg, ok := txSegments[tmp.Base.Seq]; ok {
					delta := transition.MsToBeats(opts.intervalMs(), seg.V0)
					for _, smp := range seg.Sample(delta, func(v float64) int { return int(math.Round(v)) }) {
						emit(0, beatToTick(smp.Time), tempoMeta(float64(smp.Value)))
					}
				}
			}
		}
	}
	if !sawTempo {
		emit(0, 0, []byte{0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20}) // 120 BPM default
	}

	shadowPitch := map[int]float64{} // physical channel -> currently active pitch-wheel semitone offset

	for _, r := range s.Events() {
		switch v := r.(type) {
		case record.Note:
			for _, n := range v.Notes {
				midiNum, ok := n.MIDI()
				if !ok {
					bag.AddError(v.Base.SourceLine, "note %s is out of MIDI range", n.String())
					continue
				}
				ch, trackIdx := alloc.physical(v.Channel)
				onTick := beatToTick(v.Base.Time)
				offTick := beatToTick(v.Base.Time.Add(v.Dur))
				if n.Cents != 0 {
					bendCh, bendTrack := ch, trackIdx
					if conflicted[v.Channel] {
						bendCh, bendTrack = alloc.shadow(v.Channel, n.Cents)
					}
					emitPitchBend(events, bendTrack, onTick, bendCh, n.Cents, shadowPitch)
					emit(bendTrack, onTick, []byte{0x90 | byte(bendCh), byte(midiNum), velByte(v.Vel)})
					emit(bendTrack, offTick, []byte{0x80 | byte(bendCh), byte(midiNum), velByte(v.OffVel)})
					emit(bendTrack, offTick, []byte{0xE0 | byte(bendCh), 0x00, 0x40})
					continue
				}
				emit(trackIdx, onTick, []byte{0x90 | byte(ch), byte(midiNum), velByte(v.Vel)})
				emit(trackIdx, offTick, []byte{0x80 | byte(ch), byte(midiNum), velByte(v.OffVel)})
			}
		case record.NoteOn:
			midiNum, ok := v.Note.MIDI()
			if !ok {
				bag.AddError(v.Base.SourceLine, "note %s is out of MIDI range", v.Note.String())
				continue
			}
			ch, trackIdx := alloc.physical(v.Channel)
			tick := beatToTick(v.Base.Time)
			if v.Note.Cents != 0 {
				bendCh, bendTrack := ch, trackIdx
				if conflicted[v.Channel] {
					bendCh, bendTrack = alloc.shadow(v.Channel, v.Note.Cents)
				}
				emitPitchBend(events, bendTrack, tick, bendCh, v.Note.Cents, shadowPitch)
				emit(bendTrack, tick, []byte{0x90 | byte(bendCh), byte(midiNum), velByte(v.Vel)})
				continue
			}
			emit(trackIdx, tick, []byte{0x90 | byte(ch), byte(midiNum), velByte(v.Vel)})
		case record.NoteOff:
			midiNum, ok := v.Note.MIDI()
			if !ok {
				continue
			}
			ch, trackIdx := alloc.physical(v.Channel)
			tick := beatToTick(v.Base.Time)
			if v.Note.Cents != 0 {
				bendCh, bendTrack := ch, trackIdx
				if conflicted[v.Channel] {
					bendCh, bendTrack = alloc.shadow(v.Channel, v.Note.Cents)
				}
				emit(bendTrack, tick, []byte{0x80 | byte(bendCh), byte(midiNum), velByte(v.OffVel)})
				emit(bendTrack, tick, []byte{0xE0 | byte(bendCh), 0x00, 0x40})
				continue
			}
			emit(trackIdx, tick, []byte{0x80 | byte(ch), byte(midiNum), velByte(v.OffVel)})
		case record.CC:
			ch, trackIdx := alloc.physical(v.Channel)
			tick := beatToTick(v.Base.Time)
			emitCC(emit, trackIdx, tick, ch, v.Controller, v.Value)
			if v.Transition != nil {
				if seg, ok := txSegments[v.Base.Seq]; ok {
					round, unround := quantizer(v.Controller)
					delta := transition.MsToBeats(opts.intervalMs(), currentTempo(s, v.Base.Time))
					for _, smp := range seg.Sample(delta, round) {
						emitCC(emit, trackIdx, beatToTick(smp.Time), ch, v.Controller, unround(smp.Value))
					}
				}
			}
		case record.Voice:
			ch, trackIdx := alloc.physical(v.Channel)
			if len(v.Voices) == 0 {
				continue
			}
			program, ok := gmtables.ProgramForInstrument(v.Voices[0])
			if !ok {
				program = 0
			}
			emit(trackIdx, beatToTick(v.Base.Time), []byte{0xC0 | byte(ch), byte(program)})
		case record.Reset:
			tick := beatToTick(v.Base.Time)
			switch v.Target {
			case record.ResetAll:
				for logical := range logicalChannels {
					ch, trackIdx := alloc.physical(logical)
					emit(trackIdx, tick, []byte{0xB0 | byte(ch), 123, 0})
					emit(trackIdx, tick, []byte{0xB0 | byte(ch), 121, 0})
				}
			case record.ResetChannel:
				ch, trackIdx := alloc.physical(v.Channel)
				emit(trackIdx, tick, []byte{0xB0 | byte(ch), 123, 0})
				emit(trackIdx, tick, []byte{0xB0 | byte(ch), 121, 0})
			case record.ResetTuning:
				// No MIDI bytes; tuning state lives only in the mtxt domain.
			}
		case record.Sysex:
			emit(0, beatToTick(v.Base.Time), append([]byte{0xF0}, v.Bytes...))
		case record.Label:
			emit(0, beatToTick(v.Base.Time), metaTextEvent(0x06, v.Name))
		}
	}

	if alloc.usedOverflow() {
		emit(0, 0, metaTextEvent(0x7F, "channelmap:"+alloc.channelMapString()))
	}

	trackIdxs := make([]int, 0, len(events))
	for idx := range events {
		trackIdxs = append(trackIdxs, idx)
	}
	sort.Ints(trackIdxs)

	f := &File{Header: Header{Format: pickFormat(len(trackIdxs)), PPQ: uint16(ppq)}}
	for _, idx := range trackIdxs {
		f.Tracks = append(f.Tracks, Track{Data: buildTrackBytes(events[idx], opts.RunningStatus)})
	}
	return f, bag
}

func pickFormat(numTracks int) Format {
	if numTracks <= 1 {
		return Format0
	}
	return Format1
}

func velByte(v float64) byte {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	b := int(math.Round(v * 127))
	if b > 127 {
		b = 127
	}
	return byte(b)
}

func emitCC(emit func(int, uint32, []byte), trackIdx int, tick uint32, ch int, controller string, value float64) {
	if controller == "pitch" {
		rng := 2.0
		wheel := int(math.Round(value/rng*8192)) + 8192
		if wheel < 0 {
			wheel = 0
		}
		if wheel > 16383 {
			wheel = 16383
		}
		emit(trackIdx, tick, []byte{0xE0 | byte(ch), byte(wheel & 0x7F), byte(wheel >> 7)})
		return
	}
	if controller == "pressure" {
		emit(trackIdx, tick, []byte{0xD0 | byte(ch), velByte(value)})
		return
	}
	num, ok := gmtables.ControllerNumber(controller)
	if !ok {
		var n int
		if _, err := fmt.Sscanf(controller, "cc%d", &n); err == nil {
			num = n
		}
	}
	emit(trackIdx, tick, []byte{0xB0 | byte(ch), byte(num), velByte(value)})
}

func emitPitchBend(events map[int][]trackEvent, trackIdx int, tick uint32, ch int, cents float64, shadowPitch map[int]float64) {
	rng := 2.0
	semitones := cents / 100.0
	wheel := int(math.Round(semitones/rng*8192)) + 8192
	if wheel < 0 {
		wheel = 0
	}
	if wheel > 16383 {
		wheel = 16383
	}
	events[trackIdx] = append(events[trackIdx], trackEvent{tick: tick, bytes: []byte{0xE0 | byte(ch), byte(wheel & 0x7F), byte(wheel >> 7)}})
	shadowPitch[ch] = semitones
}

func encode24(v float64) []byte {
	u := uint32(v)
	return []byte{byte(u >> 16), byte(u >> 8), byte(u)}
}

func metaTextEvent(metaType byte, text string) []byte {
	out := []byte{0xFF, metaType}
	out = append(out, varLen(uint32(len(text)))...)
	out = append(out, []byte(text)...)
	return out
}

// bankersRound implements round-half-to-even with ties broken toward the
// later tick (spec §4.H): an exact .5 fraction always rounds up to the
// later tick (floor+1), and every other value goes through math.Round.
func bankersRound(v float64) uint32 {
	frac := v - math.Floor(v)
	if frac == 0.5 {
		return uint32(math.Floor(v)) + 1
	}
	return uint32(math.Round(v))
}

// buildTrackBytes sorts a track's queued events by tick (stable, preserving
// emission order within a tick — which already places note-offs before
// note-ons because the caller emits them in that relative order per spec
// §4.C's tie-break), then delta-encodes them, optionally suppressing
// repeated status bytes (running status).
func buildTrackBytes(evs []trackEvent, runningStatus bool) []byte {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].tick < evs[j].tick })
	var out []byte
	var lastTick uint32
	var lastStatus byte
	for _, e := range evs {
		delta := e.tick - lastTick
		out = append(out, varLen(delta)...)
		lastTick = e.tick
		b := e.bytes
		if runningStatus && len(b) > 0 && b[0] < 0xF0 && b[0] == lastStatus {
			out = append(out, b[1:]...)
		} else {
			out = append(out, b...)
			if len(b) > 0 && b[0] < 0xF0 {
				lastStatus = b[0]
			} else {
				lastStatus = 0
			}
		}
	}
	out = append(out, varLen(0)...)
	out = append(out, endOfTrackEvent()...)
	return out
}

// buildTransitionSegments groups every CC/Tempo record carrying a
// Transition by its (channel, controller[, note]) key, resolves each one's
// start value via the Event Store, and folds overlapping segments through
// transition.Preempt in start-time order (spec §4.F's preemption rule). The
// result is keyed by the originating record's Base.Seq, since Seq uniquely
// identifies a record within one Store. A transition whose start time has
// no defined value at or before it is a reference error (spec §3 invariant
// 4): it is reported on bag and the record is dropped from its group rather
// than rendered against a fabricated start value.
func buildTransitionSegments(s *store.Store, bag *mtxterr.Bag) map[int]transition.Segment {
	type candidate struct {
		seq int
		seg transition.Segment
	}
	groups := map[string][]candidate{}

	addCC := func(v record.CC) {
		t0 := v.Base.Time.Sub(v.Transition.Tau)
		storeKey := store.Key{Channel: v.Channel, Controller: v.Controller, Note: v.Note}
		v0, _, ok := s.LatestValueBefore(storeKey, t0)
		if !ok {
			bag.AddError(v.Base.SourceLine, "transition on channel %d controller %s has no defined value at or before its start time", v.Channel, v.Controller)
			return
		}
		noteKey := ""
		if v.Note != nil {
			noteKey = v.Note.String()
		}
		k := fmt.Sprintf("cc:%d:%s:%s", v.Channel, v.Controller, noteKey)
		groups[k] = append(groups[k], candidate{seq: v.Base.Seq, seg: transition.Segment{
			T0: t0, T1: v.Base.Time, V0: v0, V1: v.Value, Alpha: v.Transition.Curve,
		}})
	}
	addTempo := func(v record.Tempo) {
		t0 := v.Base.Time.Sub(v.Transition.Tau)
		v0, _, ok := s.LatestValueBefore(store.Key{Controller: "tempo"}, t0)
		if !ok {
			bag.AddError(v.Base.SourceLine, "tempo transition has no defined tempo at or before its start time")
			return
		}
		groups["tempo"] = append(groups["tempo"], candidate{seq: v.Base.Seq, seg: transition.Segment{
			T0: t0, T1: v.Base.Time, V0: v0, V1: v.BPM, Alpha: v.Transition.Curve,
		}})
	}

	for _, r := range s.Events() {
		switch v := r.(type) {
		case record.CC:
			if v.Transition != nil {
				addCC(v)
			}
		case record.Tempo:
			if v.Transition != nil {
				addTempo(v)
			}
		}
	}

	out := map[int]transition.Segment{}
	for _, cands := range groups {
		sort.SliceStable(cands, func(i, j int) bool {
			if c := cands[i].seg.T0.Cmp(cands[j].seg.T0); c != 0 {
				return c < 0
			}
			return cands[i].seq < cands[j].seq
		})
		for i := 1; i < len(cands); i++ {
			earlier, later := transition.Preempt(cands[i-1].seg, cands[i].seg)
			cands[i-1].seg, cands[i].seg = earlier, later
		}
		for _, c := range cands {
			out[c.seq] = c.seg
		}
	}
	return out
}

// quantizer returns the rounding function used to dedup consecutive
// transition samples for a given controller, and its inverse, used to turn
// a sampled integer back into the domain value emitCC expects. Pitch bend
// quantizes to the 14-bit wheel range; all other controllers quantize to
// the 7-bit MIDI value range.
func quantizer(controller string) (round func(float64) int, unround func(int) float64) {
	if controller == "pitch" {
		const rng = 2.0
		round = func(semitones float64) int {
			wheel := int(math.Round(semitones/rng*8192)) + 8192
			if wheel < 0 {
				wheel = 0
			}
			if wheel > 16383 {
				wheel = 16383
			}
			return wheel
		}
		unround = func(wheel int) float64 { return (float64(wheel-8192) / 8192.0) * rng }
		return round, unround
	}
	round = func(v float64) int { return int(math.Round(v * 127)) }
	unround = func(n int) float64 { return float64(n) / 127.0 }
	return round, unround
}

func currentTempo(s *store.Store, at beat.Beat) float64 {
	v, _, ok := s.LatestValueBefore(store.Key{Controller: "tempo"}, at)
	if !ok {
		return 120
	}
	return v
}

// noteInterval is one sounding note's [start, end) window on a channel,
// carrying the cents value active throughout it, used by
// conflictingChannels to find overlaps.
type noteInterval struct {
	start, end beat.Beat
	cents      float64
}

// conflictingChannels reports which logical channels ever sound two or
// more notes at the same instant with distinct cents values. Spec §4.A
// only requires splitting microtonal notes onto separate physical channels
// when such a conflict exists; a channel with only one active cents value
// at a time can ride its own physical channel's pitch wheel directly.
//
// record.Note intervals come straight from Base.Time/Dur. record.NoteOn/
// NoteOff pairs are matched by (channel, absolute MIDI number) in event
// order, the same identity a real synthesizer uses to pair them; a NoteOn
// with no matching NoteOff is treated as sounding through the end of the
// document, since an unterminated note still occupies the channel.
func conflictingChannels(s *store.Store) map[int]bool {
	events := s.Events()

	var docEnd beat.Beat
	for _, r := range events {
		if t := r.Pos().Time; t.Cmp(docEnd) > 0 {
			docEnd = t
		}
	}
	openEnd := docEnd.Add(beat.Unit) // one beat past the last event, always "still sounding"

	type pendingKey struct {
		channel int
		midi    int
	}
	pending := map[pendingKey][]noteInterval{}
	intervals := map[int][]noteInterval{}

	for _, r := range events {
		switch v := r.(type) {
		case record.Note:
			for _, n := range v.Notes {
				intervals[v.Channel] = append(intervals[v.Channel], noteInterval{
					start: v.Base.Time, end: v.Base.Time.Add(v.Dur), cents: n.Cents,
				})
			}
		case record.NoteOn:
			midiNum, ok := v.Note.MIDI()
			if !ok {
				continue
			}
			k := pendingKey{v.Channel, midiNum}
			pending[k] = append(pending[k], noteInterval{start: v.Base.Time, end: openEnd, cents: v.Note.Cents})
		case record.NoteOff:
			midiNum, ok := v.Note.MIDI()
			if !ok {
				continue
			}
			k := pendingKey{v.Channel, midiNum}
			q := pending[k]
			if len(q) == 0 {
				continue
			}
			onset := q[0]
			pending[k] = q[1:]
			onset.end = v.Base.Time
			intervals[v.Channel] = append(intervals[v.Channel], onset)
		}
	}
	for k, q := range pending {
		intervals[k.channel] = append(intervals[k.channel], q...)
	}

	conflicts := map[int]bool{}
	for ch, ivls := range intervals {
		for i := 0; i < len(ivls); i++ {
			for j := i + 1; j < len(ivls); j++ {
				if ivls[i].cents == ivls[j].cents {
					continue
				}
				if ivls[i].start.Cmp(ivls[j].end) < 0 && ivls[j].start.Cmp(ivls[i].end) < 0 {
					conflicts[ch] = true
				}
			}
		}
	}
	return conflicts
}

// channelAllocator maps mtxt logical channels (which may run >= 16, spec
// §4.H) onto physical MIDI channels 0-15 split across tracks, and hands out
// shadow channels for microtonal notes sharing a logical channel.
type channelAllocator struct {
	logicalToPhysical map[int][2]int // logical -> [physical channel, track index]
	nextTrack         int
	nextPhysInTrack   int
	shadows           map[[2]interface{}][2]int // (logical, roundedCents) -> [physical, track]
	overflowUsed      bool
}

func newChannelAllocator(logical map[int]bool) *channelAllocator {
	a := &channelAllocator{
		logicalToPhysical: map[int][2]int{},
		shadows:           map[[2]interface{}][2]int{},
		nextTrack:         1,
	}
	keys := make([]int, 0, len(logical))
	for k := range logical {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, logicalCh := range keys {
		if logicalCh < 16 {
			a.logicalToPhysical[logicalCh] = [2]int{logicalCh, 0}
			continue
		}
		a.overflowUsed = true
		if a.nextPhysInTrack >= 16 {
			a.nextTrack++
			a.nextPhysInTrack = 0
		}
		a.logicalToPhysical[logicalCh] = [2]int{a.nextPhysInTrack, a.nextTrack}
		a.nextPhysInTrack++
	}
	return a
}

func (a *channelAllocator) physical(logicalCh int) (ch int, track int) {
	if p, ok := a.logicalToPhysical[logicalCh]; ok {
		return p[0], p[1]
	}
	return logicalCh % 16, 0
}

func (a *channelAllocator) shadow(logicalCh int, cents float64) (ch int, track int) {
	rounded := math.Round(cents*100) / 100
	key := [2]interface{}{logicalCh, rounded}
	if p, ok := a.shadows[key]; ok {
		return p[0], p[1]
	}
	if a.nextPhysInTrack >= 16 {
		a.nextTrack++
		a.nextPhysInTrack = 0
	}
	p := [2]int{a.nextPhysInTrack, a.nextTrack}
	a.shadows[key] = p
	a.nextPhysInTrack++
	return p[0], p[1]
}

func (a *channelAllocator) usedOverflow() bool { return a.overflowUsed }

func (a *channelAllocator) channelMapString() string {
	keys := make([]int, 0, len(a.logicalToPhysical))
	for k := range a.logicalToPhysical {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	s := ""
	for i, k := range keys {
		p := a.logicalToPhysical[k]
		if i > 0 {
			s += ";"
		}
		s += fmt.Sprintf("%d:%d,%d", k, p[1], p[0])
	}
	return s
}
