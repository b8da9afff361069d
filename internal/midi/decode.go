package midi

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/gmtables"
	"github.com/supersational/mtxt/internal/mtxterr"
	"github.com/supersational/mtxt/internal/pitch"
	"github.com/supersational/mtxt/internal/record"
)

// Options controls decode behavior driven by CLI flags (spec §6).
type Options struct {
	MergeNotes bool
	Verbose    bool
}

// chanMsg is one decoded channel-voice message at an absolute tick. track
// is the SMF track it came from, needed alongside channel to reverse a
// channelmap remap (spec §4.H overflow channels, §4.G round-trip).
type chanMsg struct {
	tick    uint32
	track   int
	channel int
	status  byte // high nibble: 0x8,0x9,0xA,0xB,0xC,0xD,0xE
	data1   byte
	data2   byte
}

// metaMsg is one decoded meta or sysex event at an absolute tick.
type metaMsg struct {
	tick  uint32
	kind  byte // 0xFF meta type, or 0xF0/0xF7 for sysex
	bytes []byte
}

// Decode turns a parsed SMF File into a Document (spec §4.G).
func Decode(f *File, opts Options) (*record.Document, *mtxterr.Bag) {
	bag := &mtxterr.Bag{}
	ppq := int(f.Header.PPQ)
	if ppq <= 0 {
		ppq = TicksPerQuarter
	}
	doc := &record.Document{Version: record.Version{Major: 1, Minor: 0}}

	seq := 0
	nextSeq := func() int { s := seq; seq++; return s }

	var allChan []chanMsg
	var allMeta []metaMsg
	dominantChannel := make([]int, len(f.Tracks))

	for ti, trk := range f.Tracks {
		chans, metas, err := parseTrack(trk.Data)
		if err != nil {
			bag.AddError(0, "track %d: %v", ti, err)
			continue
		}
		counts := make(map[int]int)
		for _, m := range chans {
			counts[m.channel]++
		}
		best, bestCount := 0, -1
		for ch, c := range counts {
			if c > bestCount {
				best, bestCount = ch, c
			}
		}
		dominantChannel[ti] = best
		for i := range chans {
			chans[i].track = ti
		}
		allChan = append(allChan, chans...)
		for _, m := range metas {
			allMeta = append(allMeta, metaMsg{tick: m.tick, kind: m.kind, bytes: m.bytes})
		}
		_ = ti
	}

	sort.SliceStable(allChan, func(i, j int) bool { return allChan[i].tick < allChan[j].tick })
	sort.SliceStable(allMeta, func(i, j int) bool { return allMeta[i].tick < allMeta[j].tick })

	tickToBeat := func(tick uint32) beat.Beat {
		return beat.FromFloat64(float64(tick) / float64(ppq))
	}

	bendRange := make(map[int]float64) // per-channel pitch-bend range in semitones
	rpnSelected := make(map[int][2]byte)

	channelMap := parseChannelMapMeta(allMeta)
	remapChannel := func(track, physical int) int {
		if logical, ok := channelMap[[2]int{track, physical}]; ok {
			return logical
		}
		return physical
	}

	var noteOns, noteOffs []record.Record

	for _, m := range allChan {
		t := tickToBeat(m.tick)
		base := record.Base{Time: t, SourceLine: 0, Seq: nextSeq()}
		logicalCh := remapChannel(m.track, m.channel)
		switch m.status {
		case 0x8: // note off
			note := pitch.FromMIDI(int(m.data1))
			noteOffs = append(noteOffs, record.NoteOff{Base: base, Channel: logicalCh, Note: note, OffVel: float64(m.data2) / 127.0})
		case 0x9: // note on (velocity 0 normalized to off)
			note := pitch.FromMIDI(int(m.data1))
			if m.data2 == 0 {
				noteOffs = append(noteOffs, record.NoteOff{Base: base, Channel: logicalCh, Note: note, OffVel: 1.0})
			} else {
				noteOns = append(noteOns, record.NoteOn{Base: base, Channel: logicalCh, Note: note, Vel: float64(m.data2) / 127.0})
			}
		case 0xB: // control change
			ctrl := int(m.data1)
			switch ctrl {
			case 100:
				rpnSelected[m.channel] = [2]byte{rpnSelected[m.channel][0], m.data2}
				continue
			case 101:
				rpnSelected[m.channel] = [2]byte{m.data2, rpnSelected[m.channel][1]}
				continue
			case 6:
				if rpnSelected[m.channel] == [2]byte{0, 0} {
					bendRange[m.channel] = float64(m.data2)
				}
				continue
			}
			name, known := gmtables.ControllerName(ctrl)
			if !known {
				name = fmt.Sprintf("cc%d", ctrl)
			}
			doc.Events = append(doc.Events, record.CC{Base: base, Channel: logicalCh, Controller: name, Value: float64(m.data2) / 127.0})
		case 0xC: // program change
			name := gmtables.InstrumentName(int(m.data1))
			if name == "" {
				name = fmt.Sprintf("program%d", m.data1)
			}
			doc.Events = append(doc.Events, record.Voice{Base: base, Channel: logicalCh, Voices: []string{name}})
		case 0xD: // channel pressure
			doc.Events = append(doc.Events, record.CC{Base: base, Channel: logicalCh, Controller: "pressure", Value: float64(m.data1) / 127.0})
		case 0xA: // polyphonic key pressure
			note := pitch.FromMIDI(int(m.data1))
			doc.Events = append(doc.Events, record.CC{Base: base, Channel: logicalCh, Controller: "polypressure", Value: float64(m.data2) / 127.0, Note: &note})
		case 0xE: // pitch wheel
			wheel := int(m.data1) | int(m.data2)<<7
			rng := bendRange[m.channel]
			if rng <= 0 {
				rng = 2
			}
			semitones := (float64(wheel) - 8192.0) / 8192.0 * rng
			doc.Events = append(doc.Events, record.CC{Base: base, Channel: logicalCh, Controller: "pitch", Value: semitones})
		}
	}

	doc.Events = append(doc.Events, pairOrKeepNotes(noteOns, noteOffs, opts.MergeNotes)...)

	var sawTempo bool
	for _, m := range allMeta {
		t := tickToBeat(m.tick)
		base := record.Base{Time: t, SourceLine: 0, Seq: nextSeq()}
		if m.kind == 0xF0 || m.kind == 0xF7 {
			doc.Events = append(doc.Events, record.Sysex{Base: base, Bytes: append([]byte(nil), m.bytes...)})
			continue
		}
		if len(m.bytes) == 0 {
			continue
		}
		metaType := m.bytes[0]
		payload := m.bytes[1:]
		switch metaType {
		case 0x51: // tempo
			if len(payload) >= 3 {
				bpm := usPerQuarterToBPM(u24(payload[0], payload[1], payload[2]))
				doc.Events = append(doc.Events, record.Tempo{Base: base, BPM: bpm})
				sawTempo = true
			}
		case 0x58: // time signature
			if len(payload) >= 2 {
				num := int(payload[0])
				den := 1 << payload[1]
				doc.Events = append(doc.Events, record.TimeSig{Base: base, Num: num, Den: den})
			}
		case 0x01, 0x02, 0x05, 0x06, 0x03: // text, copyright, lyric, marker, track name
			key := metaKey(metaType)
			if metaType == 0x06 {
				doc.Events = append(doc.Events, record.Label{Base: base, Name: string(payload)})
			} else {
				doc.Events = append(doc.Events, record.Meta{Base: base, Scope: record.ScopeGlobal, Key: key, Value: string(payload)})
			}
		case 0x7F: // channel map; already consumed into channelMap above
		}
	}
	if !sawTempo {
		doc.Events = append(doc.Events, record.Tempo{Base: record.Base{Time: beat.Zero, Seq: nextSeq()}, BPM: 120})
	}

	doc.Aliases = nil
	doc.Directives = nil
	return doc, bag
}

// parseChannelMapMeta scans the decoded meta events for a 0x7F
// "channelmap:" payload written by channelAllocator.channelMapString and
// parses it into a (track, physical channel) -> logical channel lookup, so
// the >= 16 logical channels spec §4.H overflows onto physical channels
// 0-15 round-trip back to their original numbers (spec §8 scenario S6).
// Absent a channelmap event, the map is empty and channels decode as-is.
func parseChannelMapMeta(metas []metaMsg) map[[2]int]int {
	out := map[[2]int]int{}
	const prefix = "channelmap:"
	for _, m := range metas {
		if m.kind != 0xFF || len(m.bytes) == 0 || m.bytes[0] != 0x7F {
			continue
		}
		payload := string(m.bytes[1:])
		if !strings.HasPrefix(payload, prefix) {
			continue
		}
		for _, entry := range strings.Split(payload[len(prefix):], ";") {
			if entry == "" {
				continue
			}
			parts := strings.SplitN(entry, ":", 2)
			if len(parts) != 2 {
				continue
			}
			logical, err := strconv.Atoi(parts[0])
			if err != nil {
				continue
			}
			trackChan := strings.SplitN(parts[1], ",", 2)
			if len(trackChan) != 2 {
				continue
			}
			track, err1 := strconv.Atoi(trackChan[0])
			physical, err2 := strconv.Atoi(trackChan[1])
			if err1 != nil || err2 != nil {
				continue
			}
			out[[2]int{track, physical}] = logical
		}
	}
	return out
}

func metaKey(t byte) string {
	switch t {
	case 0x01:
		return "text"
	case 0x02:
		return "copyright"
	case 0x03:
		return "track_name"
	case 0x05:
		return "lyric"
	default:
		return "text"
	}
}

// pairOrKeepNotes pairs NoteOn/NoteOff records sharing (channel, pitch) into
// Note shorthand records when merge is requested (spec §4.G); otherwise the
// separate on/off records are returned unchanged.
func pairOrKeepNotes(ons, offs []record.Record, merge bool) []record.Record {
	if !merge {
		out := make([]record.Record, 0, len(ons)+len(offs))
		out = append(out, ons...)
		out = append(out, offs...)
		return out
	}
	type key struct {
		ch   int
		note pitch.NoteId
	}
	pending := make(map[key][]record.NoteOn)
	var out []record.Record
	for _, r := range ons {
		on := r.(record.NoteOn)
		k := key{on.Channel, on.Note}
		pending[k] = append(pending[k], on)
	}
	// Sort offs by time so the earliest unmatched on is paired with the
	// earliest subsequent off on the same key.
	sorted := append([]record.Record(nil), offs...)
	sort.SliceStable(sorted, func(i, j int) bool { return record.Less(sorted[i], sorted[j]) })
	used := make(map[key]int)
	for _, r := range sorted {
		off := r.(record.NoteOff)
		k := key{off.Channel, off.Note}
		onList := pending[k]
		idx := used[k]
		if idx >= len(onList) {
			out = append(out, off) // unmatched off, keep as-is
			continue
		}
		on := onList[idx]
		used[k] = idx + 1
		out = append(out, record.Note{
			Base:   on.Base,
			Channel: on.Channel,
			Notes:  []pitch.NoteId{on.Note},
			Dur:    off.Base.Time.Sub(on.Base.Time),
			Vel:    on.Vel,
			OffVel: off.OffVel,
		})
	}
	// Any on without a matching off stays a NoteOn (stuck note).
	for k, onList := range pending {
		for i := used[k]; i < len(onList); i++ {
			out = append(out, onList[i])
		}
	}
	return out
}

// parseTrack walks one MTrk chunk's raw bytes, applying running status, and
// returns its channel-voice messages and meta/sysex events with absolute
// tick positions.
func parseTrack(data []byte) ([]chanMsg, []metaMsg, error) {
	var chans []chanMsg
	var metas []metaMsg
	var tick uint32
	var runningStatus byte
	pos := 0
	for pos < len(data) {
		delta, next, err := readVarLen(data, pos)
		if err != nil {
			return nil, nil, err
		}
		pos = next
		tick += delta

		if pos >= len(data) {
			return nil, nil, fmt.Errorf("truncated event at tick %d", tick)
		}
		b := data[pos]
		var status byte
		if b&0x80 != 0 {
			status = b
			pos++
		} else {
			status = runningStatus
		}
		if status == 0 {
			return nil, nil, fmt.Errorf("no running status available at tick %d", tick)
		}

		switch {
		case status == 0xFF: // meta
			if pos >= len(data) {
				return nil, nil, fmt.Errorf("truncated meta event at tick %d", tick)
			}
			metaType := data[pos]
			pos++
			length, next, err := readVarLen(data, pos)
			if err != nil {
				return nil, nil, err
			}
			pos = next
			end := pos + int(length)
			if end > len(data) {
				return nil, nil, fmt.Errorf("truncated meta payload at tick %d", tick)
			}
			payload := append([]byte{metaType}, data[pos:end]...)
			metas = append(metas, metaMsg{tick: tick, kind: 0xFF, bytes: payload})
			pos = end
			runningStatus = 0 // meta events clear running status

		case status == 0xF0 || status == 0xF7: // sysex
			length, next, err := readVarLen(data, pos)
			if err != nil {
				return nil, nil, err
			}
			pos = next
			end := pos + int(length)
			if end > len(data) {
				return nil, nil, fmt.Errorf("truncated sysex payload at tick %d", tick)
			}
			metas = append(metas, metaMsg{tick: tick, kind: status, bytes: append([]byte(nil), data[pos:end]...)})
			pos = end
			runningStatus = 0

		default: // channel voice message
			runningStatus = status
			typ := status >> 4
			ch := int(status & 0x0F)
			if pos >= len(data) {
				return nil, nil, fmt.Errorf("truncated channel message at tick %d", tick)
			}
			d1 := data[pos]
			pos++
			var d2 byte
			if typ != 0xC && typ != 0xD {
				if pos >= len(data) {
					return nil, nil, fmt.Errorf("truncated channel message at tick %d", tick)
				}
				d2 = data[pos]
				pos++
			}
			chans = append(chans, chanMsg{tick: tick, channel: ch, status: typ, data1: d1, data2: d2})
		}
	}
	return chans, metas, nil
}
