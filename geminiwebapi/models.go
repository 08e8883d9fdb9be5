package geminiwebapi

import "net/http"

// Gemini web endpoints and default headers ----------------------------------

// Endpoints groups the service URLs a client talks to. The defaults point at
// the live service; tests and mirrors may substitute their own set.
type Endpoints struct {
	Google        string
	Init          string
	Generate      string
	RotateCookies string
	Upload        string
}

// DefaultEndpoints returns the production endpoint set.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Google:        "https://www.google.com",
		Init:          "https://gemini.google.com/app",
		Generate:      "https://gemini.google.com/_/BardChatUi/data/assistant.lamda.BardFrontendService/StreamGenerate",
		RotateCookies: "https://accounts.google.com/RotateCookies",
		Upload:        "https://content-push.googleapis.com/upload",
	}
}

var (
	HeadersGemini = http.Header{
		"Content-Type":  []string{"application/x-www-form-urlencoded;charset=utf-8"},
		"Host":          []string{"gemini.google.com"},
		"Origin":        []string{"https://gemini.google.com"},
		"Referer":       []string{"https://gemini.google.com/"},
		"User-Agent":    []string{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
		"X-Same-Domain": []string{"1"},
	}
	HeadersRotateCookies = http.Header{
		"Content-Type": []string{"application/json"},
	}
	HeadersUpload = http.Header{
		"Push-ID": []string{"feeds/mcudyrk2a4khkz"},
	}
)

// Cookie names required for authentication.
const (
	CookiePSID   = "__Secure-1PSID"
	CookiePSIDTS = "__Secure-1PSIDTS"
	CookieNID    = "NID"
)

// Model metadata -------------------------------------------------------------

// Model selects a backend variant. Each variant maps to a header value; adding
// a new one is a table entry, not a code path.
type Model struct {
	Name         string
	ModelHeader  http.Header
	AdvancedOnly bool
}

var (
	ModelUnspecified = Model{
		Name:        "unspecified",
		ModelHeader: http.Header{},
	}
	ModelG20Flash = Model{
		Name: "gemini-2.0-flash",
		ModelHeader: http.Header{
			"x-goog-ext-525001261-jspb": []string{"[1,null,null,null,\"f299729663a2343f\"]"},
		},
	}
	ModelG20FlashThinking = Model{
		Name: "gemini-2.0-flash-thinking",
		ModelHeader: http.Header{
			"x-goog-ext-525001261-jspb": []string{"[null,null,null,null,\"7ca48d02d802f20a\"]"},
		},
	}
	ModelG25Flash = Model{
		Name: "gemini-2.5-flash",
		ModelHeader: http.Header{
			"x-goog-ext-525001261-jspb": []string{"[1,null,null,null,\"35609594dbe934d8\"]"},
		},
	}
	ModelG25Pro = Model{
		Name: "gemini-2.5-pro",
		ModelHeader: http.Header{
			"x-goog-ext-525001261-jspb": []string{"[1,null,null,null,\"2525e3954d185b3c\"]"},
		},
	}
	ModelG25FlashImage = Model{
		Name: "gemini-2.5-flash-image-preview",
		ModelHeader: http.Header{
			"x-goog-ext-525001261-jspb": []string{"[1,null,null,null,\"f8f8f5ea629f5d37\"]"},
		},
	}
	ModelG20ExpAdvanced = Model{
		Name: "gemini-2.0-exp-advanced",
		ModelHeader: http.Header{
			"x-goog-ext-525001261-jspb": []string{"[null,null,null,null,\"b1e46a6037e6aa9f\"]"},
		},
		AdvancedOnly: true,
	}
	ModelG25ExpAdvanced = Model{
		Name: "gemini-2.5-exp-advanced",
		ModelHeader: http.Header{
			"x-goog-ext-525001261-jspb": []string{"[null,null,null,null,\"203e6bb81620bcfe\"]"},
		},
		AdvancedOnly: true,
	}
)

// allModels is the lookup table behind ModelFromName.
var allModels = []Model{
	ModelUnspecified,
	ModelG20Flash,
	ModelG20FlashThinking,
	ModelG25Flash,
	ModelG25Pro,
	ModelG25FlashImage,
	ModelG20ExpAdvanced,
	ModelG25ExpAdvanced,
}

// ModelFromName resolves a model by its name.
func ModelFromName(name string) (Model, error) {
	for _, m := range allModels {
		if m.Name == name {
			return m, nil
		}
	}
	return Model{}, &ValueError{Msg: "Unknown model name: " + name}
}

// imageGenerationModels marks variants whose requests carry the image marker.
var imageGenerationModels = map[string]struct{}{
	"gemini-2.5-flash-image-preview": {},
}

// Known error codes returned inside the response envelope.
const (
	ErrorUsageLimitExceeded   = 1037
	ErrorModelInconsistent    = 1050
	ErrorModelHeaderInvalid   = 1052
	ErrorIPTemporarilyBlocked = 1060
)
