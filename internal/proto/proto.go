// Package proto implements the binary wire protocol shared by the server and
// the client. Every message starts with an 8 byte header: the message type in
// byte 0, three reserved bytes, then the total frame length (header included)
// as a little-endian uint32. Fields are written raw in little-endian order.
package proto

import "errors"

// MessageType identifies the payload that follows a header.
type MessageType uint8

const (
	ClientConnect    MessageType = 1
	ClientInputMsg   MessageType = 2
	ServerGameState  MessageType = 3
	ServerStartGame  MessageType = 4
	ClientDisconnect MessageType = 5
)

func (t MessageType) String() string {
	switch t {
	case ClientConnect:
		return "CLIENT_CONNECT"
	case ClientInputMsg:
		return "CLIENT_INPUT"
	case ServerGameState:
		return "SERVER_GAME_STATE"
	case ServerStartGame:
		return "SERVER_START_GAME"
	case ClientDisconnect:
		return "CLIENT_DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

const (
	// HeaderSize is the encoded size of Header.
	HeaderSize = 8
	// MaxFrameSize is the exclusive upper bound on a frame's declared length.
	MaxFrameSize = 65536

	// MaxEntities is the largest player or coin count a state message can carry.
	MaxEntities = 255

	playerStateSize = 24
	coinStateSize   = 12
	inputSize       = 16
)

var (
	// ErrShortBuffer is returned when a read would run past the end of the buffer.
	ErrShortBuffer = errors.New("proto: read past end of buffer")
	// ErrMalformedHeader is returned for headers whose length is out of bounds.
	ErrMalformedHeader = errors.New("proto: malformed header")
	// ErrUnexpectedType is returned when a decoder is handed the wrong message.
	ErrUnexpectedType = errors.New("proto: unexpected message type")
	// ErrTooManyEntities is returned when a state does not fit the uint8 counts.
	ErrTooManyEntities = errors.New("proto: too many entities for state message")
)

// Header prefixes every frame.
type Header struct {
	Type   MessageType
	Length uint32
}

// Valid reports whether the declared length lies strictly between HeaderSize
// and MaxFrameSize. Frames that fail this check are discarded by receivers.
func (h Header) Valid() bool {
	return h.Length > HeaderSize && h.Length < MaxFrameSize
}

// BodyLength is the number of bytes that follow the header.
func (h Header) BodyLength() int {
	if h.Length < HeaderSize {
		return 0
	}
	return int(h.Length) - HeaderSize
}

type Vec2 struct {
	X, Y float32
}

type PlayerState struct {
	ID                    uint32
	Position              Vec2
	Score                 uint32
	LastProcessedInputSeq uint32
	LastProcessedInputTS  uint32
}

type CoinState struct {
	ID       uint32
	Position Vec2
}

type ClientInput struct {
	DX, DY    float32
	Timestamp uint32
	Seq       uint32
}

// GameState is the body of SERVER_GAME_STATE.
type GameState struct {
	Timestamp uint32
	Players   []PlayerState
	Coins     []CoinState
}

// StartGame is the body of SERVER_START_GAME.
type StartGame struct {
	PlayerID uint32
}
