package proto

import (
	"encoding/binary"
	"math"
)

// Writer appends fields to a growing frame. Call Header first and Finalize
// last.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Header appends a header whose length is patched by Finalize.
func (w *Writer) Header(t MessageType) {
	w.buf = append(w.buf, byte(t), 0, 0, 0, 0, 0, 0, 0)
}

func (w *Writer) Uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) Float32(v float32) {
	w.Uint32(math.Float32bits(v))
}

func (w *Writer) Vec2(v Vec2) {
	w.Float32(v.X)
	w.Float32(v.Y)
}

func (w *Writer) PlayerState(ps PlayerState) {
	w.Uint32(ps.ID)
	w.Vec2(ps.Position)
	w.Uint32(ps.Score)
	w.Uint32(ps.LastProcessedInputSeq)
	w.Uint32(ps.LastProcessedInputTS)
}

func (w *Writer) CoinState(cs CoinState) {
	w.Uint32(cs.ID)
	w.Vec2(cs.Position)
}

// Finalize writes the total length into the header and returns the frame.
func (w *Writer) Finalize() []byte {
	if len(w.buf) >= HeaderSize {
		binary.LittleEndian.PutUint32(w.buf[4:8], uint32(len(w.buf)))
	}
	return w.buf
}

// Reader is a bounds-checked cursor over a received frame. A failed read
// leaves the cursor where it was.
type Reader struct {
	data   []byte
	offset int
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int {
	return len(r.data) - r.offset
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.data) {
		return nil, ErrShortBuffer
	}
	b := r.data[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *Reader) Header() (Header, error) {
	b, err := r.take(HeaderSize)
	if err != nil {
		return Header{}, err
	}
	return parseHeader(b), nil
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) Vec2() (Vec2, error) {
	if r.Remaining() < 8 {
		return Vec2{}, ErrShortBuffer
	}
	x, _ := r.Float32()
	y, _ := r.Float32()
	return Vec2{X: x, Y: y}, nil
}

// PlayerState reads a whole record or nothing.
func (r *Reader) PlayerState() (PlayerState, error) {
	if r.Remaining() < playerStateSize {
		return PlayerState{}, ErrShortBuffer
	}
	var ps PlayerState
	ps.ID, _ = r.Uint32()
	ps.Position, _ = r.Vec2()
	ps.Score, _ = r.Uint32()
	ps.LastProcessedInputSeq, _ = r.Uint32()
	ps.LastProcessedInputTS, _ = r.Uint32()
	return ps, nil
}

// CoinState reads a whole record or nothing.
func (r *Reader) CoinState() (CoinState, error) {
	if r.Remaining() < coinStateSize {
		return CoinState{}, ErrShortBuffer
	}
	var cs CoinState
	cs.ID, _ = r.Uint32()
	cs.Position, _ = r.Vec2()
	return cs, nil
}

func parseHeader(b []byte) Header {
	return Header{
		Type:   MessageType(b[0]),
		Length: binary.LittleEndian.Uint32(b[4:8]),
	}
}

// ParseHeader decodes the header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortBuffer
	}
	return parseHeader(b), nil
}
