package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatBool writes a boolean the way clients expect: "True" or "False".
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseBool accepts "true"/"false" in any letter case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: not a boolean %q", ErrMalformed, s)
}

// LobbySummary is the lobby record shown to browsing clients.
type LobbySummary struct {
	ID          int
	Name        string
	Host        string
	PlayerCount int
}

// LobbySummaryArity is the number of fields in an encoded LobbySummary.
const LobbySummaryArity = 4

// Fields flattens s in wire order.
func (s LobbySummary) Fields() []string {
	return []string{strconv.Itoa(s.ID), s.Name, s.Host, strconv.Itoa(s.PlayerCount)}
}

// ParseLobbySummary reads one record from exactly LobbySummaryArity fields.
func ParseLobbySummary(f []string) (LobbySummary, error) {
	if len(f) != LobbySummaryArity {
		return LobbySummary{}, fmt.Errorf("%w: lobby record wants %d fields, got %d", ErrArity, LobbySummaryArity, len(f))
	}
	id, err := strconv.Atoi(f[0])
	if err != nil {
		return LobbySummary{}, fmt.Errorf("%w: lobby id %q", ErrMalformed, f[0])
	}
	n, err := strconv.Atoi(f[3])
	if err != nil {
		return LobbySummary{}, fmt.Errorf("%w: player count %q", ErrMalformed, f[3])
	}
	return LobbySummary{ID: id, Name: f[1], Host: f[2], PlayerCount: n}, nil
}

// PlayerInfo is the pregame record of one seated player.
type PlayerInfo struct {
	ID    int
	Name  string
	Ready bool
}

// PlayerInfoArity is the number of fields in an encoded PlayerInfo.
const PlayerInfoArity = 3

// Fields flattens p in wire order.
func (p PlayerInfo) Fields() []string {
	return []string{strconv.Itoa(p.ID), p.Name, FormatBool(p.Ready)}
}

// ParsePlayerInfo reads one record from exactly PlayerInfoArity fields.
func ParsePlayerInfo(f []string) (PlayerInfo, error) {
	if len(f) != PlayerInfoArity {
		return PlayerInfo{}, fmt.Errorf("%w: player record wants %d fields, got %d", ErrArity, PlayerInfoArity, len(f))
	}
	id, err := strconv.Atoi(f[0])
	if err != nil {
		return PlayerInfo{}, fmt.Errorf("%w: player id %q", ErrMalformed, f[0])
	}
	ready, err := ParseBool(f[2])
	if err != nil {
		return PlayerInfo{}, err
	}
	return PlayerInfo{ID: id, Name: f[1], Ready: ready}, nil
}

// Chunk splits a flat parameter list into records of arity fields each.
func Chunk(params []string, arity int) ([][]string, error) {
	if arity <= 0 || len(params)%arity != 0 {
		return nil, fmt.Errorf("%w: %d fields is not a multiple of %d", ErrArity, len(params), arity)
	}
	out := make([][]string, 0, len(params)/arity)
	for i := 0; i < len(params); i += arity {
		out = append(out, params[i:i+arity])
	}
	return out, nil
}

// EncodeLobbyList flattens lobbies into one parameter list.
func EncodeLobbyList(lobbies []LobbySummary) []string {
	out := make([]string, 0, len(lobbies)*LobbySummaryArity)
	for _, l := range lobbies {
		out = append(out, l.Fields()...)
	}
	return out
}

// ParseLobbyList reverses EncodeLobbyList.
func ParseLobbyList(params []string) ([]LobbySummary, error) {
	chunks, err := Chunk(params, LobbySummaryArity)
	if err != nil {
		return nil, err
	}
	out := make([]LobbySummary, 0, len(chunks))
	for _, c := range chunks {
		s, err := ParseLobbySummary(c)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// EncodePlayerList flattens players into one parameter list.
func EncodePlayerList(players []PlayerInfo) []string {
	out := make([]string, 0, len(players)*PlayerInfoArity)
	for _, p := range players {
		out = append(out, p.Fields()...)
	}
	return out
}

// ParsePlayerList reverses EncodePlayerList.
func ParsePlayerList(params []string) ([]PlayerInfo, error) {
	chunks, err := Chunk(params, PlayerInfoArity)
	if err != nil {
		return nil, err
	}
	out := make([]PlayerInfo, 0, len(chunks))
	for _, c := range chunks {
		p, err := ParsePlayerInfo(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
