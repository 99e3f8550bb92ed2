package domain

// Dependency identifies an external collaborator the resilience layer guards.
type Dependency string

const (
	DependencySpeechToTextPrimary  Dependency = "speech-to-text-primary"
	DependencySpeechToTextFallback Dependency = "speech-to-text-fallback"
	DependencyTranslation          Dependency = "translation"
	DependencySpeechSynthesis      Dependency = "speech-synthesis"
	DependencyAIEnhancement        Dependency = "ai-enhancement"
	DependencySessionStore         Dependency = "session-store"
	DependencyObjectStore          Dependency = "object-store"
	DependencyIdentity             Dependency = "identity"
	DependencyChannel              Dependency = "channel"
	DependencyCache                Dependency = "cache"
)

// KnownDependencies lists every dependency the gateway understands, in display order.
var KnownDependencies = []Dependency{
	DependencySpeechToTextPrimary,
	DependencySpeechToTextFallback,
	DependencyTranslation,
	DependencySpeechSynthesis,
	DependencyAIEnhancement,
	DependencySessionStore,
	DependencyObjectStore,
	DependencyIdentity,
	DependencyChannel,
	DependencyCache,
}

// dependencyLabels are the plain-language names shown to end users.
var dependencyLabels = map[Dependency]string{
	DependencySpeechToTextPrimary:  "speech recognition",
	DependencySpeechToTextFallback: "backup speech recognition",
	DependencyTranslation:          "translation",
	DependencySpeechSynthesis:      "voice playback",
	DependencyAIEnhancement:        "translation enhancement",
	DependencySessionStore:         "session history",
	DependencyObjectStore:          "file storage",
	DependencyIdentity:             "sign-in",
	DependencyChannel:              "live connection",
	DependencyCache:                "session cache",
}

// Label returns a user-facing name without vendor or infrastructure jargon.
func (d Dependency) Label() string {
	if label, ok := dependencyLabels[d]; ok {
		return label
	}
	return "this service"
}

// IsKnown reports whether d is one of KnownDependencies.
func (d Dependency) IsKnown() bool {
	_, ok := dependencyLabels[d]
	return ok
}

func (d Dependency) String() string {
	return string(d)
}
