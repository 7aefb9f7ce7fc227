package protocol

// Type is a message type name as spelled on the wire.
type Type string

// Authentication endpoint types.
const (
	LoginRequest           Type = "LoginRequest"
	LoginResponse          Type = "LoginResponse"
	RegisterRequest        Type = "RegisterRequest"
	RegisterResponse       Type = "RegisterResponse"
	TwoFARequest           Type = "TwoFARequest"
	TwoFAResponse          Type = "TwoFAResponse"
	ForgotPasswordRequest  Type = "ForgotPasswordRequest"
	ForgotPasswordResponse Type = "ForgotPasswordResponse"
	NotARobotRequest       Type = "NotARobotRequest"
	NotARobotResponse      Type = "NotARobotResponse"
	AuthenticationRequest  Type = "AuthenticationRequest"
)

// Lobby browsing types.
const (
	LobbyList            Type = "LobbyList"
	JoinedLobbySelection Type = "JoinedLobbySelection"
	CreateLobby          Type = "CreateLobby"
	JoinLobby            Type = "JoinLobby"
	GetStatsRequest      Type = "GetStatsRequest"
	GetStatsResponse     Type = "GetStatsResponse"
)

// In-lobby and in-game types.
const (
	PregamePlayerList   Type = "PregamePlayerList"
	GameStarted         Type = "GameStarted"
	PlayerWon           Type = "PlayerWon"
	PlayerLost          Type = "PlayerLost"
	PlayerJoinedPregame Type = "PlayerJoinedPregame"
	PlayerLeftPregame   Type = "PlayerLeftPregame"
	PlayerReadyUnready  Type = "PlayerReadyUnready"
	YourTurn            Type = "YourTurn"
	TakeCard            Type = "TakeCard"
	PlaceCard           Type = "PlaceCard"
	CallUno             Type = "CallUno"
	EnableUno           Type = "EnableUno"
	DisableUno          Type = "DisableUno"
	NewCardOnStack      Type = "NewCardOnStack"
	EnemyAddCard        Type = "EnemyAddCard"
	EnemyRemoveCard     Type = "EnemyRemoveCard"
	ColorSwitch         Type = "ColorSwitch"
	TakeRandomCard      Type = "TakeRandomCard"
)

// Family is a closed set of message types accepted in one context.
type Family struct {
	name  string
	types map[Type]struct{}
}

func newFamily(name string, types ...Type) Family {
	f := Family{name: name, types: make(map[Type]struct{}, len(types))}
	for _, t := range types {
		f.types[t] = struct{}{}
	}
	return f
}

// Has reports whether t belongs to f.
func (f Family) Has(t Type) bool {
	_, ok := f.types[t]
	return ok
}

// String returns the family name.
func (f Family) String() string { return f.name }

// Message families.
var (
	AuthFamily = newFamily("auth",
		LoginRequest, LoginResponse, RegisterRequest, RegisterResponse,
		TwoFARequest, TwoFAResponse, ForgotPasswordRequest, ForgotPasswordResponse,
		NotARobotRequest, NotARobotResponse, AuthenticationRequest,
	)
	LobbyFamily = newFamily("lobby",
		LobbyList, JoinedLobbySelection, CreateLobby, JoinLobby,
		GetStatsRequest, GetStatsResponse,
	)
	GameFamily = newFamily("game",
		PregamePlayerList, GameStarted, PlayerWon, PlayerLost,
		PlayerJoinedPregame, PlayerLeftPregame, PlayerReadyUnready, YourTurn,
		TakeCard, PlaceCard, CallUno, EnableUno, DisableUno, NewCardOnStack,
		EnemyAddCard, EnemyRemoveCard, ColorSwitch, TakeRandomCard,
	)
	// SessionFamily is everything an authenticated gameplay connection may send.
	SessionFamily = union("session", AuthFamily, LobbyFamily, GameFamily)
)

func union(name string, fs ...Family) Family {
	var all []Type
	for _, f := range fs {
		for t := range f.types {
			all = append(all, t)
		}
	}
	return newFamily(name, all...)
}
