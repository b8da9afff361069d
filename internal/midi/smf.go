// Package midi implements the Standard MIDI File codec (spec §4.G, §4.H):
// decoding an SMF into time-stamped Records and encoding Records back into
// an SMF, including tempo-map construction, running status, note-on/off
// normalization, pitch-wheel and controller mapping, and channel-overflow
// track splitting.
//
// Grounded on mattdees-guitartutor/backend/handlers/midi.go's SMF writer
// (varLen, tempoEvent, endOfTrack, the MThd/MTrk buffer-building shape),
// generalized from a fixed-pattern generator into a full read/write codec,
// and on williamsharkey-midi/messages/channel/reader.go's status-byte
// dispatch and "note-on velocity 0 is a note-off" normalization rule.
package midi

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// TicksPerQuarter is the default SMF resolution (spec §4.G: "PPQ, default
// 480").
const TicksPerQuarter = 480

// Format is the SMF header format field (0, 1, or 2).
type Format uint16

const (
	Format0 Format = 0
	Format1 Format = 1
	Format2 Format = 2
)

// Header is a parsed MThd chunk.
type Header struct {
	Format    Format
	NumTracks uint16
	PPQ       uint16
}

// Track is one parsed MTrk chunk's raw event bytes, not yet delta-decoded.
type Track struct {
	Data []byte
}

// File is a fully parsed SMF: header plus raw track chunks. decode.go turns
// this into a *record.Document; encode.go builds one from a Store.
type File struct {
	Header Header
	Tracks []Track
}

// ReadSMF parses the MThd and MTrk chunk structure of raw SMF bytes,
// without interpreting track event bytes.
func ReadSMF(data []byte) (*File, error) {
	r := &chunkReader{data: data}
	tag, body, err := r.chunk()
	if err != nil {
		return nil, err
	}
	if tag != "MThd" || len(body) < 6 {
		return nil, fmt.Errorf("not a standard MIDI file: missing MThd header")
	}
	f := &File{
		Header: Header{
			Format:    Format(binary.BigEndian.Uint16(body[0:2])),
			NumTracks: binary.BigEndian.Uint16(body[2:4]),
			PPQ:       binary.BigEndian.Uint16(body[4:6]),
		},
	}
	for {
		tag, body, err := r.chunk()
		if err == errEOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if tag != "MTrk" {
			continue // unknown chunk type, skip per SMF spec
		}
		f.Tracks = append(f.Tracks, Track{Data: body})
	}
	return f, nil
}

var errEOF = fmt.Errorf("end of chunks")

type chunkReader struct {
	data []byte
	pos  int
}

func (r *chunkReader) chunk() (tag string, body []byte, err error) {
	if r.pos >= len(r.data) {
		return "", nil, errEOF
	}
	if r.pos+8 > len(r.data) {
		return "", nil, fmt.Errorf("truncated chunk header at offset %d", r.pos)
	}
	tag = string(r.data[r.pos : r.pos+4])
	length := binary.BigEndian.Uint32(r.data[r.pos+4 : r.pos+8])
	start := r.pos + 8
	end := start + int(length)
	if end > len(r.data) {
		return "", nil, fmt.Errorf("chunk %q length %d overruns file", tag, length)
	}
	r.pos = end
	return tag, r.data[start:end], nil
}

// WriteSMF serializes a File into raw SMF bytes.
func WriteSMF(f *File) []byte {
	var buf bytes.Buffer
	buf.WriteString("MThd")
	binary.Write(&buf, binary.BigEndian, uint32(6))
	binary.Write(&buf, binary.BigEndian, uint16(f.Header.Format))
	binary.Write(&buf, binary.BigEndian, uint16(len(f.Tracks)))
	binary.Write(&buf, binary.BigEndian, f.Header.PPQ)
	for _, trk := range f.Tracks {
		buf.WriteString("MTrk")
		binary.Write(&buf, binary.BigEndian, uint32(len(trk.Data)))
		buf.Write(trk.Data)
	}
	return buf.Bytes()
}

// varLen encodes a MIDI variable-length quantity.
func varLen(v uint32) []byte {
	if v < 0x80 {
		return []byte{byte(v)}
	}
	var buf [5]byte
	n := 0
	for tmp := v; tmp > 0; tmp >>= 7 {
		n++
	}
	for i := n - 1; i >= 0; i-- {
		b := byte((v >> (uint(i) * 7)) & 0x7F)
		if i > 0 {
			b |= 0x80
		}
		buf[n-1-i] = b
	}
	return buf[:n]
}

// readVarLen decodes a variable-length quantity starting at data[pos],
// returning the value and the next unread position.
func readVarLen(data []byte, pos int) (uint32, int, error) {
	var v uint32
	for {
		if pos >= len(data) {
			return 0, pos, fmt.Errorf("truncated variable-length quantity at offset %d", pos)
		}
		b := data[pos]
		pos++
		v = (v << 7) | uint32(b&0x7F)
		if b&0x80 == 0 {
			break
		}
	}
	return v, pos, nil
}

func tempoMetaEvent(bpm float64) []byte {
	uspq := uint32(60_000_000.0 / bpm)
	return []byte{0xFF, 0x51, 0x03, byte(uspq >> 16), byte(uspq >> 8), byte(uspq)}
}

func endOfTrackEvent() []byte {
	return []byte{0xFF, 0x2F, 0x00}
}

// usPerQuarterToBPM converts a tempo meta-event's 24-bit microseconds-per-
// quarter-note payload back to BPM.
func usPerQuarterToBPM(uspq uint32) float64 {
	if uspq == 0 {
		return 120
	}
	return 60_000_000.0 / float64(uspq)
}

func u24(b0, b1, b2 byte) uint32 {
	return uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
}
