package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodePlain(t *testing.T) {
	m := New(LoginRequest, "alice", "Secret123")
	assert.Equal(t, "LoginRequest:(alice,Secret123)", m.Encode())
	assert.Equal(t, "NotARobotRequest:()", New(NotARobotRequest).Encode())
}

func TestDecodePlain(t *testing.T) {
	m, err := Decode("LoginRequest:(alice,Secret123)", AuthFamily)
	require.NoError(t, err)
	assert.Equal(t, LoginRequest, m.Type)
	assert.Equal(t, []string{"alice", "Secret123"}, m.Params)
}

func TestDecodeEmptyParams(t *testing.T) {
	m, err := Decode("TakeRandomCard:()", GameFamily)
	require.NoError(t, err)
	assert.Empty(t, m.Params)
	assert.Equal(t, "", m.Param(0))
}

func TestDecodeKeepsEmptyFields(t *testing.T) {
	m, err := Decode("RegisterRequest:(bob,,x@y)", AuthFamily)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "", "x@y"}, m.Params)
}

func TestDecodeEscapes(t *testing.T) {
	m, err := Decode(`CreateLobby:(a\,b \(c\) d\\e)`, LobbyFamily)
	require.NoError(t, err)
	assert.Equal(t, []string{`a,b (c) d\e`}, m.Params)
}

func TestEncodeEscapes(t *testing.T) {
	m := New(CreateLobby, "Bob's (fun), room")
	assert.Equal(t, `CreateLobby:(Bob's \(fun\)\, room)`, m.Encode())
}

func TestDecodeErrors(t *testing.T) {
	cases := map[string]error{
		"":                           ErrMalformed,
		"LoginRequest":               ErrMalformed,
		"LoginRequest:alice":         ErrMalformed,
		"LoginRequest:(alice":        ErrMalformed,
		"LoginRequest:alice)":        ErrMalformed,
		`LoginRequest:(alice\)`:      ErrMalformed,
		"Bogus:(x)":                  ErrUnknownType,
		"PlaceCard:(Red_1)":          ErrUnknownType,
		":(x)":                       ErrMalformed,
	}
	for raw, want := range cases {
		_, err := Decode(raw, AuthFamily)
		assert.ErrorIs(t, err, want, "input %q", raw)
	}
}

func TestFamiliesAreDisjoint(t *testing.T) {
	for _, tp := range []Type{LoginRequest, AuthenticationRequest} {
		assert.True(t, AuthFamily.Has(tp))
		assert.False(t, LobbyFamily.Has(tp))
		assert.False(t, GameFamily.Has(tp))
		assert.True(t, SessionFamily.Has(tp))
	}
	assert.True(t, LobbyFamily.Has(JoinLobby))
	assert.True(t, GameFamily.Has(TakeRandomCard))
	assert.True(t, SessionFamily.Has(ColorSwitch))
}

func TestExpect(t *testing.T) {
	m := New(LoginRequest, "alice")
	assert.NoError(t, m.Expect(1))
	assert.ErrorIs(t, m.Expect(2), ErrArity)
}

func TestPropertyEncodeDecodeRoundTrip(t *testing.T) {
	types := []Type{PlaceCard, ColorSwitch, PlayerWon, PregamePlayerList}
	rapid.Check(t, func(t *rapid.T) {
		tp := rapid.SampledFrom(types).Draw(t, "type")
		params := rapid.SliceOfN(rapid.StringN(1, 20, -1), 1, 8).Draw(t, "params")
		got, err := Decode(New(tp, params...).Encode(), GameFamily)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Type != tp || len(got.Params) != len(params) {
			t.Fatalf("got %#v want %v %q", got, tp, params)
		}
		for i := range params {
			if got.Params[i] != params[i] {
				t.Fatalf("param %d: got %q want %q", i, got.Params[i], params[i])
			}
		}
	})
}

func TestPropertyPlainValuesEncodeVerbatim(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.StringMatching(`[A-Za-z0-9_@. ]{0,20}`).Draw(t, "value")
		if got := New(GetStatsRequest, v).Encode(); got != "GetStatsRequest:("+v+")" {
			t.Fatalf("unexpected encoding %q", got)
		}
	})
}
