package domain

import "errors"

var (
	ErrSessionActive       = errors.New("session already connecting or connected")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Language is the spoken-language tag propagated to the agent as the
// "language" participant attribute.
type Language string

const (
	LanguageEnglish  Language = "en"
	LanguageJapanese Language = "ja"

	AttrLanguage = "language"
)

func ParseLanguage(s string) (Language, error) {
	switch l := Language(s); l {
	case LanguageEnglish, LanguageJapanese:
		return l, nil
	}
	return "", ErrUnsupportedLanguage
}

// Toggle flips between the two supported languages.
func (l Language) Toggle() Language {
	if l == LanguageJapanese {
		return LanguageEnglish
	}
	return LanguageJapanese
}

func (l Language) Label() string {
	if l == LanguageJapanese {
		return "日本語"
	}
	return "English"
}

// Session is one user-initiated call attempt.
type Session struct {
	Room     RoomName `json:"room"`
	Identity Identity `json:"identity"`
	Phase    Phase    `json:"phase"`
	Language Language `json:"language"`
}

func (s Session) Joined() bool { return s.Phase == PhaseConnected }
