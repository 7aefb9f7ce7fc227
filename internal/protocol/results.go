package protocol

// LoginResult is the outcome carried by LoginResponse.
type LoginResult string

const (
	LoginNone                        LoginResult = "None"
	LoginUnknownError                LoginResult = "UnknownError"
	LoginSuccess                     LoginResult = "Success"
	LoginUsernameDoesNotExist        LoginResult = "UsernameDoesNotExist"
	LoginWrongPassword               LoginResult = "WrongPassword"
	LoginTwoFactorAuthenticationSent LoginResult = "TwoFactorAuthenticationSent"
)

// RegisterResult is the outcome carried by RegisterResponse.
type RegisterResult string

const (
	RegisterNone                        RegisterResult = "None"
	RegisterSuccess                     RegisterResult = "Success"
	RegisterUsernameExists              RegisterResult = "UsernameExists"
	RegisterInvalidUsername             RegisterResult = "InvalidUsername"
	RegisterInvalidPassword             RegisterResult = "InvalidPassword"
	RegisterInvalidEmail                RegisterResult = "InvalidEmail"
	RegisterEmailInUse                  RegisterResult = "EmailInUse"
	RegisterTwoFactorAuthenticationSent RegisterResult = "TwoFactorAuthenticationSent"
	RegisterUnknownError                RegisterResult = "UnknownError"
)

// TwoFAResult is the outcome carried by TwoFAResponse.
type TwoFAResult string

const (
	TwoFANone            TwoFAResult = "None"
	TwoFASuccess         TwoFAResult = "Success"
	TwoFAWrongCode       TwoFAResult = "Wrong2FACode"
	TwoFAUnknownError    TwoFAResult = "UnknownError"
	TwoFAInvalidUsername TwoFAResult = "InvalidUsername"
	TwoFACodeExpired     TwoFAResult = "TwoFACodeExpired"
)

// NotARobotSquares tags a NotARobotResponse carrying nine tile flags.
const NotARobotSquares = "Squares"

// JoinResult is the outcome carried by CreateLobby and JoinLobby replies.
type JoinResult string

const (
	JoinSuccess        JoinResult = "Success"
	JoinFailed         JoinResult = "Failed"
	JoinLobbyFull      JoinResult = "LobbyFull"
	JoinLobbyNotFound  JoinResult = "LobbyNotFound"
	JoinGameInProgress JoinResult = "GameInProgress"
)
