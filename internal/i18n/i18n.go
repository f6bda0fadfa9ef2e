package i18n

// Language selects which side of a bilingual message is shown to the user.
type Language string

const (
	LangJA Language = "ja"
	LangEN Language = "en"
)

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool { return l == LangJA || l == LangEN }

// Bilingual is the wire shape for user-facing proxy messages.
type Bilingual struct {
	JA string `json:"ja"`
	EN string `json:"en"`
}

// Pick returns the side matching lang, defaulting to Japanese.
func (b Bilingual) Pick(lang Language) string {
	if lang == LangEN {
		return b.EN
	}
	return b.JA
}

// ErrorClass names one user-facing failure category. The set is closed:
// raw upstream error text never reaches the user, only one of these.
type ErrorClass string

const (
	ClassTimeout     ErrorClass = "timeout"
	ClassNetwork     ErrorClass = "network_error"
	ClassRateLimit   ErrorClass = "rate_limit"
	ClassServerError ErrorClass = "server_error"
	ClassDefault     ErrorClass = "default"
)

var errorMessages = map[ErrorClass]Bilingual{
	ClassTimeout: {
		JA: "応答がタイムアウトしました。しばらくしてからもう一度お試しください。",
		EN: "The request timed out. Please try again in a moment.",
	},
	ClassNetwork: {
		JA: "接続エラーが発生しました。ネットワークをご確認ください。",
		EN: "A network error occurred. Please check your connection.",
	},
	ClassRateLimit: {
		JA: "リクエストが多すぎます。しばらくお待ちください。",
		EN: "Too many requests. Please wait a moment.",
	},
	ClassServerError: {
		JA: "サーバーエラーが発生しました。しばらくしてからもう一度お試しください。",
		EN: "A server error occurred. Please try again later.",
	},
	ClassDefault: {
		JA: "申し訳ありません、エラーが発生しました。もう一度お試しください。",
		EN: "Sorry, something went wrong. Please try again.",
	},
}

// ErrorMessage returns the bilingual message for class, falling back to the
// generic message for unknown classes.
func ErrorMessage(class ErrorClass) Bilingual {
	if m, ok := errorMessages[class]; ok {
		return m
	}
	return errorMessages[ClassDefault]
}

// Greeting is the opening assistant turn seeded into an empty conversation.
func Greeting(lang Language) string {
	if lang == LangEN {
		return "Hello! How can I help you today?"
	}
	return "こんにちは！ご質問があればお気軽にどうぞ。"
}

// Tier rate-limit reasons, keyed by tier name.
var tierMessages = map[string]Bilingual{
	"minute": {
		JA: "送信が速すぎます。1分ほどお待ちください。",
		EN: "You are sending messages too quickly. Please wait about a minute.",
	},
	"ten_minutes": {
		JA: "短時間に送信が集中しています。少し時間をおいてください。",
		EN: "Too many messages in a short period. Please take a short break.",
	},
	"day": {
		JA: "本日の送信上限に達しました。明日もう一度お試しください。",
		EN: "You have reached today's message limit. Please try again tomorrow.",
	},
}

// TierMessage returns the bilingual denial reason for a named tier.
func TierMessage(tier string) Bilingual {
	if m, ok := tierMessages[tier]; ok {
		return m
	}
	return errorMessages[ClassRateLimit]
}
