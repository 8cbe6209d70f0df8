package proto

import (
	"context"
	"errors"
	"io"
)

type deframeState uint8

const (
	awaitHeader deframeState = iota
	awaitBody
)

// Deframer splits a byte stream into frames. It alternates between waiting
// for a header-sized block and waiting for the body that header announced.
// Headers with an out-of-range length are dropped whole and the machine goes
// back to waiting for the next header-sized block.
type Deframer struct {
	state     deframeState
	header    [HeaderSize]byte
	have      int
	body      []byte
	want      int
	malformed uint64
}

// Malformed reports how many header blocks have been discarded so far.
func (d *Deframer) Malformed() uint64 {
	return d.malformed
}

// Feed consumes p and returns every frame it completed. Returned frames own
// their memory.
func (d *Deframer) Feed(p []byte) [][]byte {
	var frames [][]byte
	for len(p) > 0 {
		switch d.state {
		case awaitHeader:
			n := copy(d.header[d.have:], p)
			d.have += n
			p = p[n:]
			if d.have < HeaderSize {
				continue
			}
			d.have = 0
			h := parseHeader(d.header[:])
			if !h.Valid() {
				// Header-only control frames carry nothing a reader acts on.
				if h.Length != HeaderSize {
					d.malformed++
				}
				continue
			}
			d.want = h.BodyLength()
			d.body = make([]byte, HeaderSize, int(h.Length))
			copy(d.body, d.header[:])
			d.state = awaitBody
		case awaitBody:
			n := min(d.want, len(p))
			d.body = append(d.body, p[:n]...)
			d.want -= n
			p = p[n:]
			if d.want == 0 {
				frames = append(frames, d.body)
				d.body = nil
				d.state = awaitHeader
			}
		}
	}
	return frames
}

// ReadFrames feeds r through a Deframer until r fails or ctx is done. fn runs
// for every complete frame; onMalformed, if set, receives the number of header
// blocks discarded by each read. io.EOF is reported as a nil error.
func ReadFrames(ctx context.Context, r io.Reader, fn func([]byte), onMalformed func(int)) error {
	var d Deframer
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			before := d.Malformed()
			for _, frame := range d.Feed(buf[:n]) {
				fn(frame)
			}
			if dropped := d.Malformed() - before; dropped > 0 && onMalformed != nil {
				onMalformed(int(dropped))
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
