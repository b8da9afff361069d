package record

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/mtxterr"
	"github.com/supersational/mtxt/internal/pitch"
)

const (
	defaultVel    = 0.8
	defaultOffVel = 1.0
)

var defaultDur = beat.FromFloat64(1.0)

// finalize implements spec §4.C's second pass: alias expansion, directive
// application, range validation, and numeric canonicalization. It is a
// single forward scan over the line-ordered prelims, mirroring the
// "process-order scoped; redefinition shadows" rule for both aliases and
// positional defaults (spec §3, §9): each reference resolves against
// whatever was most recently defined at that point in the file, so the
// scan never needs a second lookup pass over the whole document.
func finalize(prelims []prelim, bag *mtxterr.Bag) *Document {
	doc := &Document{}
	aliasTable := map[string][]pitch.NoteId{}

	for _, p := range prelims {
		switch p.kind {
		case pVersion:
			doc.Version = finalizeVersion(p, bag)

		case pComment:
			doc.Comments = append(doc.Comments, Comment{
				Base:   Base{Time: beat.Zero, SourceLine: p.line, Seq: p.seq},
				Text:   p.rawValue,
				Inline: p.inline,
			})

		case pMeta:
			doc.Events = append(doc.Events, Meta{
				Base:    Base{Time: p.time, SourceLine: p.line, Seq: p.seq},
				Scope:   p.scope,
				Channel: p.scopeChannel,
				Key:     p.name,
				Value:   p.rawValue,
			})

		case pAlias:
			if _, self := indexOf(p.idents, p.name); self {
				bag.AddError(p.line, "alias %q cannot reference itself", p.name)
				continue
			}
			expansion := make([]pitch.NoteId, 0, len(p.idents))
			ok := true
			for _, tok := range p.idents {
				notes, found := resolveNoteToken(tok, aliasTable)
				if !found {
					bag.AddError(p.line, "unresolved note or alias reference %q", tok)
					ok = false
					continue
				}
				expansion = append(expansion, notes...)
			}
			if !ok || len(expansion) == 0 {
				continue
			}
			aliasTable[p.name] = expansion
			doc.Aliases = append(doc.Aliases, Alias{
				Base:      Base{Time: beat.Zero, SourceLine: p.line, Seq: p.seq},
				Name:      p.name,
				Expansion: expansion,
			})

		case pDirective:
			kind, value, ok := directiveFromKV(p.kv)
			if !ok {
				bag.AddError(p.line, "default directive has no recognized parameter")
				continue
			}
			doc.Directives = append(doc.Directives, DefaultDirective{
				Base:      Base{Time: beat.Zero, SourceLine: p.line, Seq: p.seq},
				Directive: kind,
				Value:     value,
			})

		case pNote:
			finalizeNote(p, aliasTable, bag, doc)

		case pNoteOn:
			finalizeNoteOn(p, aliasTable, bag, doc)

		case pNoteOff:
			finalizeNoteOff(p, aliasTable, bag, doc)

		case pCC:
			finalizeCC(p, aliasTable, bag, doc)

		case pVoice:
			finalizeVoice(p, bag, doc)

		case pTempo:
			finalizeTempo(p, bag, doc)

		case pTimeSig:
			finalizeTimeSig(p, bag, doc)

		case pTuning:
			finalizeTuning(p, bag, doc)

		case pReset:
			finalizeReset(p, bag, doc)

		case pSysex:
			finalizeSysex(p, bag, doc)

		case pLabel:
			doc.Events = append(doc.Events, Label{
				Base: Base{Time: p.time, SourceLine: p.line, Seq: p.seq},
				Name: p.rawValue,
			})
		}
	}

	return doc
}

func indexOf(s []string, v string) (int, bool) {
	for i, x := range s {
		if x == v {
			return i, true
		}
	}
	return -1, false
}

func resolveNoteToken(tok string, aliasTable map[string][]pitch.NoteId) ([]pitch.NoteId, bool) {
	if n, ok := pitch.Parse(tok); ok {
		return []pitch.NoteId{n}, true
	}
	if exp, ok := aliasTable[tok]; ok {
		return exp, true
	}
	return nil, false
}

func finalizeVersion(p prelim, bag *mtxterr.Bag) Version {
	if len(p.numbers) == 0 {
		bag.AddError(p.line, "mtxt version requires a version number")
		return Version{Base: Base{SourceLine: p.line, Seq: p.seq}, Major: 1, Minor: 0}
	}
	major, minor := 0, 0
	text := p.numbers[0]
	if dot := strings.IndexByte(text, '.'); dot >= 0 {
		major, _ = strconv.Atoi(text[:dot])
		minor, _ = strconv.Atoi(text[dot+1:])
	} else {
		major, _ = strconv.Atoi(text)
	}
	if major != 1 {
		bag.AddError(p.line, "unsupported mtxt version %s (only 1.x is accepted)", text)
	}
	return Version{Base: Base{SourceLine: p.line, Seq: p.seq}, Major: major, Minor: minor}
}

func directiveFromKV(kv map[string]string) (DirectiveKind, string, bool) {
	order := []struct {
		key  string
		kind DirectiveKind
	}{
		{"ch", DirCh}, {"vel", DirVel}, {"offvel", DirOffVel}, {"dur", DirDur},
		{"transition_curve", DirTransitionCurve}, {"transition_interval", DirTransitionInterval},
	}
	for _, o := range order {
		if v, ok := kv[o.key]; ok {
			return o.kind, v, true
		}
	}
	return 0, "", false
}

func resolveChannel(kv map[string]string, state directiveState, bag *mtxterr.Bag, line int) (int, bool) {
	if v, ok := kv["ch"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			bag.AddError(line, "invalid channel %q: %v", v, err)
			return 0, false
		}
		if n < 0 || n > 65535 {
			bag.AddError(line, "channel %d out of range [0, 65535]", n)
			return 0, false
		}
		return n, true
	}
	if state.ch != nil {
		return *state.ch, true
	}
	// Spec §8 S1 exercises a note with no inline ch= and no prior default
	// ch directive, expecting channel 0 on export — so channel 0 is the
	// fallback constant, same in spirit as vel/offvel/dur, even though §3's
	// invariant list singles it out as having none.
	return 0, true
}

func resolveFraction(kv map[string]string, key string, fallback *float64, defaultValue float64, min, max float64, bag *mtxterr.Bag, line int) float64 {
	if v, ok := kv[key]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			bag.AddError(line, "invalid %s %q: %v", key, v, err)
			return defaultValue
		}
		if f < min || f > max {
			bag.AddError(line, "%s value %v out of range [%v, %v]", key, f, min, max)
		}
		return f
	}
	if fallback != nil {
		return *fallback
	}
	return defaultValue
}

func resolveDur(kv map[string]string, state directiveState, bag *mtxterr.Bag, line int) beat.Beat {
	if v, ok := kv["dur"]; ok {
		d, err := beat.Parse(v)
		if err != nil {
			bag.AddError(line, "invalid dur %q: %v", v, err)
			return defaultDur
		}
		return d
	}
	if state.dur != nil {
		return *state.dur
	}
	return defaultDur
}

func resolveNotes(noteTok string, aliasTable map[string][]pitch.NoteId, bag *mtxterr.Bag, line int) ([]pitch.NoteId, bool) {
	if noteTok == "" {
		bag.AddError(line, "note record requires a note or alias reference")
		return nil, false
	}
	notes, ok := resolveNoteToken(noteTok, aliasTable)
	if !ok {
		bag.AddError(line, "unresolved note or alias reference %q", noteTok)
		return nil, false
	}
	for _, n := range notes {
		if n.Cents < -99 || n.Cents > 99 {
			bag.AddError(line, "note %q cents %v out of range [-99, 99]", noteTok, n.Cents)
			return nil, false
		}
	}
	return notes, true
}

func finalizeNote(p prelim, aliasTable map[string][]pitch.NoteId, bag *mtxterr.Bag, doc *Document) {
	notes, ok := resolveNotes(p.noteTok, aliasTable, bag, p.line)
	if !ok {
		return
	}
	ch, ok := resolveChannel(p.kv, p.state, bag, p.line)
	if !ok {
		return
	}
	vel := resolveFraction(p.kv, "vel", p.state.vel, defaultVel, 0, 1, bag, p.line)
	offVel := resolveFraction(p.kv, "offvel", p.state.offVel, defaultOffVel, 0, 1, bag, p.line)
	dur := resolveDur(p.kv, p.state, bag, p.line)
	doc.Events = append(doc.Events, Note{
		Base:    Base{Time: p.time, SourceLine: p.line, Seq: p.seq},
		Channel: ch,
		Notes:   notes,
		Dur:     dur,
		Vel:     vel,
		OffVel:  offVel,
	})
}

func finalizeNoteOn(p prelim, aliasTable map[string][]pitch.NoteId, bag *mtxterr.Bag, doc *Document) {
	notes, ok := resolveNotes(p.noteTok, aliasTable, bag, p.line)
	if !ok {
		return
	}
	ch, ok := resolveChannel(p.kv, p.state, bag, p.line)
	if !ok {
		return
	}
	vel := resolveFraction(p.kv, "vel", p.state.vel, defaultVel, 0, 1, bag, p.line)
	for _, n := range notes {
		doc.Events = append(doc.Events, NoteOn{
			Base:    Base{Time: p.time, SourceLine: p.line, Seq: p.seq},
			Channel: ch,
			Note:    n,
			Vel:     vel,
		})
	}
}

func finalizeNoteOff(p prelim, aliasTable map[string][]pitch.NoteId, bag *mtxterr.Bag, doc *Document) {
	notes, ok := resolveNotes(p.noteTok, aliasTable, bag, p.line)
	if !ok {
		return
	}
	ch, ok := resolveChannel(p.kv, p.state, bag, p.line)
	if !ok {
		return
	}
	offVel := resolveFraction(p.kv, "offvel", p.state.offVel, defaultOffVel, 0, 1, bag, p.line)
	for _, n := range notes {
		doc.Events = append(doc.Events, NoteOff{
			Base:    Base{Time: p.time, SourceLine: p.line, Seq: p.seq},
			Channel: ch,
			Note:    n,
			OffVel:  offVel,
		})
	}
}

func parseTransition(kv map[string]string, state directiveState, bag *mtxterr.Bag, line int) *Transition {
	tStr, hasT := kv["transition_time"]
	if !hasT {
		return nil
	}
	tau, err := beat.Parse(tStr)
	if err != nil {
		bag.AddError(line, "invalid transition_time %q: %v", tStr, err)
		return nil
	}
	curve := 0.0
	if state.transitionCurve != nil {
		curve = *state.transitionCurve
	}
	if cStr, ok := kv["transition_curve"]; ok {
		c, err := strconv.ParseFloat(cStr, 64)
		if err != nil {
			bag.AddError(line, "invalid transition_curve %q: %v", cStr, err)
		} else {
			curve = c
		}
	}
	if curve < -1 || curve > 1 {
		bag.AddWarning(line, "transition_curve %v is outside the practical range [-1, 1]", curve)
	}
	return &Transition{Curve: curve, Tau: tau}
}

func finalizeCC(p prelim, aliasTable map[string][]pitch.NoteId, bag *mtxterr.Bag, doc *Document) {
	if p.name == "" {
		bag.AddError(p.line, "cc record requires a controller name")
		return
	}
	if len(p.numbers) == 0 {
		bag.AddError(p.line, "cc record requires a value")
		return
	}
	value, err := strconv.ParseFloat(p.numbers[0], 64)
	if err != nil {
		bag.AddError(p.line, "invalid cc value %q: %v", p.numbers[0], err)
		return
	}
	ch, ok := resolveChannel(p.kv, p.state, bag, p.line)
	if !ok {
		return
	}
	var notePtr *pitch.NoteId
	if tok, ok := p.kv["note"]; ok {
		notes, found := resolveNoteToken(tok, aliasTable)
		if !found || len(notes) == 0 {
			bag.AddError(p.line, "unresolved note reference %q in cc", tok)
			return
		}
		notePtr = &notes[0]
	}
	doc.Events = append(doc.Events, CC{
		Base:       Base{Time: p.time, SourceLine: p.line, Seq: p.seq},
		Channel:    ch,
		Controller: p.name,
		Value:      value,
		Note:       notePtr,
		Transition: parseTransition(p.kv, p.state, bag, p.line),
	})
}

func finalizeVoice(p prelim, bag *mtxterr.Bag, doc *Document) {
	chStr, ok := p.kv["ch"]
	if !ok {
		bag.AddError(p.line, "voice record requires ch=")
		return
	}
	ch, err := strconv.Atoi(chStr)
	if err != nil {
		bag.AddError(p.line, "invalid channel %q: %v", chStr, err)
		return
	}
	doc.Events = append(doc.Events, Voice{
		Base:    Base{Time: p.time, SourceLine: p.line, Seq: p.seq},
		Channel: ch,
		Voices:  p.idents,
	})
}

func finalizeTempo(p prelim, bag *mtxterr.Bag, doc *Document) {
	if len(p.numbers) == 0 {
		bag.AddError(p.line, "tempo record requires a BPM value")
		return
	}
	bpm, err := strconv.ParseFloat(p.numbers[0], 64)
	if err != nil {
		bag.AddError(p.line, "invalid bpm %q: %v", p.numbers[0], err)
		return
	}
	if bpm <= 0 {
		bag.AddError(p.line, "tempo %v must be positive", bpm)
		return
	}
	doc.Events = append(doc.Events, Tempo{
		Base:       Base{Time: p.time, SourceLine: p.line, Seq: p.seq},
		BPM:        bpm,
		Transition: parseTransition(p.kv, p.state, bag, p.line),
	})
}

var validDenominators = map[int]bool{1: true, 2: true, 4: true, 8: true, 16: true, 32: true, 64: true}

func finalizeTimeSig(p prelim, bag *mtxterr.Bag, doc *Document) {
	if len(p.numbers) == 0 {
		bag.AddError(p.line, "timesig record requires a num/den value")
		return
	}
	text := p.numbers[0]
	slash := strings.IndexByte(text, '/')
	if slash < 0 {
		bag.AddError(p.line, "timesig value %q must be num/den", text)
		return
	}
	num, errN := strconv.Atoi(text[:slash])
	den, errD := strconv.Atoi(text[slash+1:])
	if errN != nil || errD != nil {
		bag.AddError(p.line, "invalid timesig value %q", text)
		return
	}
	if !validDenominators[den] {
		bag.AddError(p.line, "timesig denominator %d must be a power of two in [1,64]", den)
		return
	}
	doc.Events = append(doc.Events, TimeSig{
		Base: Base{Time: p.time, SourceLine: p.line, Seq: p.seq},
		Num:  num,
		Den:  den,
	})
}

func finalizeTuning(p prelim, bag *mtxterr.Bag, doc *Document) {
	if len(p.numbers) == 0 {
		bag.AddError(p.line, "tuning record requires a cents value")
		return
	}
	cents, err := strconv.ParseFloat(p.numbers[0], 64)
	if err != nil {
		bag.AddError(p.line, "invalid cents %q: %v", p.numbers[0], err)
		return
	}
	if cents < -100.0 || cents > 100.0 {
		bag.AddError(p.line, "tuning cents %v out of range [-100, 100]", cents)
		return
	}
	rec := Tuning{Base: Base{Time: p.time, SourceLine: p.line, Seq: p.seq}, Cents: cents}
	if note, ok := pitch.Parse(p.name); ok {
		rec.TargetKind = TuningTargetNote
		rec.Note = note
	} else if pc, ok := pitch.NormalizePitchClass(p.name); ok {
		rec.TargetKind = TuningTargetPitchClass
		rec.PitchClass = pc
	} else {
		bag.AddError(p.line, "unrecognized tuning target %q", p.name)
		return
	}
	doc.Events = append(doc.Events, rec)
}

func finalizeReset(p prelim, bag *mtxterr.Bag, doc *Document) {
	rec := Reset{Base: Base{Time: p.time, SourceLine: p.line, Seq: p.seq}}
	if chStr, ok := p.kv["ch"]; ok {
		ch, err := strconv.Atoi(chStr)
		if err != nil {
			bag.AddError(p.line, "invalid channel %q: %v", chStr, err)
			return
		}
		rec.Target = ResetChannel
		rec.Channel = ch
	} else if len(p.idents) > 0 {
		switch strings.ToLower(p.idents[0]) {
		case "all":
			rec.Target = ResetAll
		case "tuning":
			rec.Target = ResetTuning
		default:
			bag.AddError(p.line, "unrecognized reset target %q", p.idents[0])
			return
		}
	} else {
		bag.AddError(p.line, "reset record requires a target (all, tuning, or ch=<n>)")
		return
	}
	doc.Events = append(doc.Events, rec)
}

func finalizeSysex(p prelim, bag *mtxterr.Bag, doc *Document) {
	text := strings.TrimSpace(p.name)
	if text == "" {
		bag.AddError(p.line, "sysex record requires a hex byte payload")
		return
	}
	if len(text)%2 != 0 {
		bag.AddError(p.line, "sysex payload %q has an odd number of hex digits", text)
		return
	}
	raw, err := hex.DecodeString(text)
	if err != nil {
		bag.AddError(p.line, "invalid sysex hex payload %q: %v", text, err)
		return
	}
	doc.Events = append(doc.Events, Sysex{
		Base:  Base{Time: p.time, SourceLine: p.line, Seq: p.seq},
		Bytes: raw,
	})
}
