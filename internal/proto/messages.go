package proto

import "fmt"

func EncodeConnect() []byte {
	w := NewWriter(HeaderSize)
	w.Header(ClientConnect)
	return w.Finalize()
}

func EncodeDisconnect() []byte {
	w := NewWriter(HeaderSize)
	w.Header(ClientDisconnect)
	return w.Finalize()
}

func EncodeInput(in ClientInput) []byte {
	w := NewWriter(HeaderSize + inputSize)
	w.Header(ClientInputMsg)
	w.Float32(in.DX)
	w.Float32(in.DY)
	w.Uint32(in.Timestamp)
	w.Uint32(in.Seq)
	return w.Finalize()
}

func EncodeStartGame(msg StartGame) []byte {
	w := NewWriter(HeaderSize + 4)
	w.Header(ServerStartGame)
	w.Uint32(msg.PlayerID)
	return w.Finalize()
}

// EncodeGameState serializes a full snapshot. The counts travel as single
// bytes, so more than MaxEntities players or coins is an error.
func EncodeGameState(gs GameState) ([]byte, error) {
	if len(gs.Players) > MaxEntities || len(gs.Coins) > MaxEntities {
		return nil, fmt.Errorf("%w: %d players, %d coins", ErrTooManyEntities, len(gs.Players), len(gs.Coins))
	}
	w := NewWriter(HeaderSize + 6 + len(gs.Players)*playerStateSize + len(gs.Coins)*coinStateSize)
	w.Header(ServerGameState)
	w.Uint32(gs.Timestamp)
	w.Uint8(uint8(len(gs.Players)))
	w.Uint8(uint8(len(gs.Coins)))
	for _, ps := range gs.Players {
		w.PlayerState(ps)
	}
	for _, cs := range gs.Coins {
		w.CoinState(cs)
	}
	return w.Finalize(), nil
}

// openFrame reads the header of frame and checks its type.
func openFrame(frame []byte, want MessageType) (*Reader, error) {
	r := NewReader(frame)
	h, err := r.Header()
	if err != nil {
		return nil, err
	}
	if int(h.Length) != len(frame) {
		return nil, fmt.Errorf("%w: header says %d bytes, frame has %d", ErrMalformedHeader, h.Length, len(frame))
	}
	if h.Type != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedType, h.Type, want)
	}
	return r, nil
}

func DecodeInput(frame []byte) (ClientInput, error) {
	r, err := openFrame(frame, ClientInputMsg)
	if err != nil {
		return ClientInput{}, err
	}
	if r.Remaining() < inputSize {
		return ClientInput{}, fmt.Errorf("decode input: %w", ErrShortBuffer)
	}
	var in ClientInput
	in.DX, _ = r.Float32()
	in.DY, _ = r.Float32()
	in.Timestamp, _ = r.Uint32()
	in.Seq, _ = r.Uint32()
	return in, nil
}

func DecodeStartGame(frame []byte) (StartGame, error) {
	r, err := openFrame(frame, ServerStartGame)
	if err != nil {
		return StartGame{}, err
	}
	id, err := r.Uint32()
	if err != nil {
		return StartGame{}, fmt.Errorf("decode start game: %w", err)
	}
	return StartGame{PlayerID: id}, nil
}

// DecodeGameState decodes a whole snapshot. A truncated record anywhere fails
// the entire message; no partial state is returned.
func DecodeGameState(frame []byte) (GameState, error) {
	r, err := openFrame(frame, ServerGameState)
	if err != nil {
		return GameState{}, err
	}
	ts, err := r.Uint32()
	if err != nil {
		return GameState{}, fmt.Errorf("decode state timestamp: %w", err)
	}
	playerCount, err := r.Uint8()
	if err != nil {
		return GameState{}, fmt.Errorf("decode state player count: %w", err)
	}
	coinCount, err := r.Uint8()
	if err != nil {
		return GameState{}, fmt.Errorf("decode state coin count: %w", err)
	}
	if need := int(playerCount)*playerStateSize + int(coinCount)*coinStateSize; r.Remaining() < need {
		return GameState{}, fmt.Errorf("decode state records: need %d bytes, have %d: %w", need, r.Remaining(), ErrShortBuffer)
	}

	gs := GameState{
		Timestamp: ts,
		Players:   make([]PlayerState, 0, playerCount),
		Coins:     make([]CoinState, 0, coinCount),
	}
	for i := 0; i < int(playerCount); i++ {
		ps, err := r.PlayerState()
		if err != nil {
			return GameState{}, fmt.Errorf("decode player %d: %w", i, err)
		}
		gs.Players = append(gs.Players, ps)
	}
	for i := 0; i < int(coinCount); i++ {
		cs, err := r.CoinState()
		if err != nil {
			return GameState{}, fmt.Errorf("decode coin %d: %w", i, err)
		}
		gs.Coins = append(gs.Coins, cs)
	}
	return gs, nil
}
