package record

import (
	"strconv"
	"strings"

	"github.com/supersational/mtxt/internal/beat"
	"github.com/supersational/mtxt/internal/lexer"
	"github.com/supersational/mtxt/internal/mtxterr"
)

// Document is the result of a full parse: the structural records kept
// aside from the Event Store, plus the time-bearing Events that
// internal/store sorts into canonical order.
type Document struct {
	Version    Version
	Aliases    []Alias
	Directives []DefaultDirective
	Comments   []Comment
	Events     []Record
}

// Parse implements the two-pass Record Parser (spec §4.C): a line pass
// that tokenizes and classifies each line into a preliminary record, and a
// finalize pass that expands aliases, applies positional defaults, and
// validates ranges. Diagnostics accumulate in the returned Bag; Parse
// returns a nil Document only on a structural failure (spec §4.C: "unless
// the failure is structural (no version)").
func Parse(source string) (*Document, *mtxterr.Bag) {
	bag := &mtxterr.Bag{}
	source = strings.TrimPrefix(source, "\xef\xbb\xbf")
	lines := splitLines(source)

	prelims := linePass(lines, bag)
	hasVersion := false
	for _, p := range prelims {
		if p.kind == pVersion {
			hasVersion = true
			break
		}
	}
	if !hasVersion {
		bag.AddError(0, "no mtxt version record found")
		return nil, bag
	}

	return finalize(prelims, bag), bag
}

func splitLines(source string) []string {
	source = strings.ReplaceAll(source, "\r\n", "\n")
	source = strings.ReplaceAll(source, "\r", "\n")
	return strings.Split(source, "\n")
}

// prelimKind distinguishes the shape of raw data captured during the line
// pass, prior to alias/default resolution.
type prelimKind int

const (
	pVersion prelimKind = iota
	pMeta
	pAlias
	pDirective
	pNote
	pNoteOn
	pNoteOff
	pCC
	pVoice
	pTempo
	pTimeSig
	pTuning
	pReset
	pSysex
	pComment
	pLabel
)

// directiveState is the positional default vector spec §9 requires:
// "capture a directive-state vector as lines are read, snapshot it into
// each event." nil fields mean "no directive in effect"; the constant
// fallback (vel=0.8, offvel=1.0, dur=1.0) applies only in finalize, after
// the snapshot is consulted.
type directiveState struct {
	ch                 *int
	vel                *float64
	offVel             *float64
	dur                *beat.Beat
	transitionCurve    *float64
	transitionInterval *float64
}

// clone returns an independent snapshot. Every field is either a pointer
// into an immutable value (directives are never mutated after creation,
// only replaced) or a plain value, so a shallow copy is sufficient.
func (s directiveState) clone() directiveState { return s }

type prelim struct {
	kind    prelimKind
	line    int
	seq     int
	hasTime bool
	time    beat.Beat
	keyword string

	noteTok string   // note or alias reference token (note/noteon/noteoff)
	idents  []string // bare identifier tokens beyond keyword/scope/noteTok
	numbers []string // bare number tokens beyond keyword/noteTok
	kv      map[string]string
	name    string // alias name, meta key, cc controller, tuning target, sysex payload

	scope        Scope
	scopeChannel int

	rawValue string // meta value / label text, raw (escapes applied)
	inline   bool   // comment only

	state directiveState
}

// linePass implements spec §4.C's first pass. `meta` and `label` lines are
// handled by manual whitespace scanning rather than lexer.Tokenize,
// because their values are free text to end-of-line (spec §3) and may
// contain characters — like the "://" in a URL — that the general token
// grammar (spec §4.B) does not accept as a bare word. Every other keyword's
// argument grammar is tokens only (numbers, identifiers, kv pairs,
// comments), so it is tokenized normally.
func linePass(lines []string, bag *mtxterr.Bag) []prelim {
	var out []prelim
	seq := 0
	state := directiveState{}

	emit := func(p prelim) {
		p.seq = seq
		out = append(out, p)
		seq++
	}

	for i, raw := range lines {
		lineNo := i + 1
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if idx := strings.Index(strings.TrimLeft(raw, " \t"), "//"); idx == 0 {
			slashPos := strings.Index(raw, "//")
			emit(prelim{kind: pComment, line: lineNo, rawValue: strings.TrimSpace(raw[slashPos+2:])})
			continue
		}

		firstWord, _, firstEnd := scanWord(raw, 0)
		if firstWord == "" {
			continue
		}

		var p prelim
		p.line = lineNo
		keywordEnd := firstEnd
		keyword := firstWord
		if t, err := beat.Parse(firstWord); err == nil {
			p.hasTime = true
			p.time = t
			kw, _, kwEnd := scanWord(raw, firstEnd)
			if kw == "" {
				bag.AddError(lineNo, "expected a keyword after the time value")
				continue
			}
			keyword = kw
			keywordEnd = kwEnd
		}
		keyword = strings.ToLower(keyword)
		p.keyword = keyword

		switch keyword {
		case "meta":
			scopeWord, _, scopeEnd := scanWord(raw, keywordEnd)
			scope, scopeCh, afterScope := ScopeGlobal, 0, keywordEnd
			switch {
			case strings.EqualFold(scopeWord, "global"):
				afterScope = scopeEnd
			case strings.Contains(scopeWord, "="):
				if eq := strings.IndexByte(scopeWord, '='); strings.EqualFold(scopeWord[:eq], "ch") {
					if n, err := strconv.Atoi(scopeWord[eq+1:]); err == nil {
						scope, scopeCh, afterScope = ScopeChannel, n, scopeEnd
					}
				}
			}
			keyWord, _, keyEnd := scanWord(raw, afterScope)
			if keyWord == "" {
				bag.AddError(lineNo, "meta requires a key")
				continue
			}
			p.kind = pMeta
			p.scope = scope
			p.scopeChannel = scopeCh
			p.name = keyWord
			p.rawValue = unescapeValue(valueFrom(raw, keyEnd))
			emit(p)
			continue

		case "label":
			p.kind = pLabel
			p.rawValue = unescapeValue(valueFrom(raw, keywordEnd))
			emit(p)
			continue
		}

		toks, err := lexer.Tokenize(raw[keywordEnd:])
		if err != nil {
			bag.AddError(lineNo, "%v", err)
			continue
		}
		if n := len(toks); n > 0 && toks[n-1].Kind == lexer.KindEOF {
			toks = toks[:n-1]
		}
		offsetColumns(toks, keywordEnd)

		var trailingComment *lexer.Token
		if n := len(toks); n > 0 && toks[n-1].Kind == lexer.KindComment {
			trailingComment = &toks[n-1]
			toks = toks[:n-1]
		}

		if !classifyTokenLine(&p, keyword, toks, &state, bag, lineNo) {
			continue
		}
		emit(p)

		if trailingComment != nil {
			emit(prelim{kind: pComment, line: lineNo, rawValue: trailingComment.Value, inline: true})
		}
	}
	return out
}

// classifyTokenLine fills in p for every keyword whose argument grammar is
// pure tokens (everything except meta/label). Returns false if the line
// could not be classified (an error has already been recorded).
func classifyTokenLine(p *prelim, keyword string, toks []lexer.Token, state *directiveState, bag *mtxterr.Bag, lineNo int) bool {
	switch keyword {
	case "mtxt":
		p.kind = pVersion
		p.numbers = tokensOfKind(toks, lexer.KindNumber)

	case "alias":
		p.kind = pAlias
		if len(toks) == 0 {
			bag.AddError(lineNo, "alias requires a name")
			return false
		}
		p.name = toks[0].Text
		p.idents = identTexts(toks[1:])

	case "default":
		p.kind = pDirective
		kv := tokensOfKind(toks, lexer.KindKV)
		if len(kv) == 0 {
			bag.AddError(lineNo, "default requires a key=value parameter")
			return false
		}
		p.kv = kvMap(kv)
		applyDirectiveToState(state, p.kv)

	case "note":
		p.kind = pNote
		p.noteTok, toks = firstIdent(toks)
		p.kv = kvMap(tokensOfKind(toks, lexer.KindKV))
		p.state = state.clone()

	case "noteon":
		p.kind = pNoteOn
		p.noteTok, toks = firstIdent(toks)
		p.kv = kvMap(tokensOfKind(toks, lexer.KindKV))
		p.state = state.clone()

	case "noteoff":
		p.kind = pNoteOff
		p.noteTok, toks = firstIdent(toks)
		p.kv = kvMap(tokensOfKind(toks, lexer.KindKV))
		p.state = state.clone()

	case "cc":
		p.kind = pCC
		p.name, toks = firstIdent(toks)
		p.numbers = tokensOfKind(toks, lexer.KindNumber)
		p.kv = kvMap(tokensOfKind(toks, lexer.KindKV))
		p.state = state.clone()

	case "voice":
		p.kind = pVoice
		p.kv = kvMap(tokensOfKind(toks, lexer.KindKV))
		p.idents = tokensOfKind(toks, lexer.KindIdent)

	case "tempo":
		p.kind = pTempo
		p.numbers = tokensOfKind(toks, lexer.KindNumber)
		p.kv = kvMap(tokensOfKind(toks, lexer.KindKV))
		p.state = state.clone()

	case "timesig":
		p.kind = pTimeSig
		p.numbers = tokensOfKind(toks, lexer.KindNumber)

	case "tuning":
		p.kind = pTuning
		p.name, toks = firstIdent(toks)
		p.numbers = tokensOfKind(toks, lexer.KindNumber)

	case "reset":
		p.kind = pReset
		p.idents = tokensOfKind(toks, lexer.KindIdent)
		p.kv = kvMap(tokensOfKind(toks, lexer.KindKV))

	case "sysex":
		p.kind = pSysex
		p.name, _ = firstIdent(toks)

	default:
		bag.AddError(lineNo, "unknown record keyword %q", keyword)
		return false
	}
	return true
}

// scanWord returns the next whitespace-delimited word in s starting at or
// after byte offset from, plus its [start,end) byte range. Returns ""
// (start==end==from or later) if none remains.
func scanWord(s string, from int) (word string, start, end int) {
	i, n := from, len(s)
	for i < n && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	start = i
	for i < n && s[i] != ' ' && s[i] != '\t' {
		i++
	}
	return s[start:i], start, i
}

func offsetColumns(toks []lexer.Token, offset int) {
	for i := range toks {
		toks[i].Column += offset
	}
}

func tokensOfKind(toks []lexer.Token, k lexer.Kind) []string {
	var out []string
	for _, t := range toks {
		if t.Kind == k {
			out = append(out, t.Text)
		}
	}
	return out
}

func identTexts(toks []lexer.Token) []string {
	var out []string
	for _, t := range toks {
		if t.Kind == lexer.KindIdent {
			out = append(out, t.Text)
		}
	}
	return out
}

// firstIdent extracts the first identifier token from toks, returning the
// remaining tokens with it removed (so subsequent kv/number scanning does
// not see it again).
func firstIdent(toks []lexer.Token) (string, []lexer.Token) {
	for i, t := range toks {
		if t.Kind == lexer.KindIdent {
			rest := make([]lexer.Token, 0, len(toks)-1)
			rest = append(rest, toks[:i]...)
			rest = append(rest, toks[i+1:]...)
			return t.Text, rest
		}
	}
	return "", toks
}

func kvMap(toks []string) map[string]string {
	m := make(map[string]string, len(toks))
	for _, t := range toks {
		if eq := strings.IndexByte(t, '='); eq > 0 {
			m[t[:eq]] = t[eq+1:]
		}
	}
	return m
}

// valueFrom returns the free-text remainder of the original line starting
// just after byte offset fromByte, so that multi-word values (meta values,
// label names) keep their original spacing instead of being re-joined from
// separately-scanned tokens. It applies the stricter meta-value comment
// rule (spec §9) to strip any trailing "// comment".
func valueFrom(raw string, fromByte int) string {
	if fromByte >= len(raw) {
		return ""
	}
	value, _ := lexer.TokenizeMetaValue(strings.TrimLeft(raw[fromByte:], " \t"))
	return strings.TrimSpace(value)
}

func unescapeValue(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case '/':
				b.WriteByte('/')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func applyDirectiveToState(state *directiveState, kv map[string]string) {
	for k, v := range kv {
		switch k {
		case "ch":
			if n, err := strconv.Atoi(v); err == nil {
				state.ch = &n
			}
		case "vel":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				state.vel = &f
			}
		case "offvel":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				state.offVel = &f
			}
		case "dur":
			if d, err := beat.Parse(v); err == nil {
				state.dur = &d
			}
		case "transition_curve":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				state.transitionCurve = &f
			}
		case "transition_interval":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				state.transitionInterval = &f
			}
		}
	}
}
