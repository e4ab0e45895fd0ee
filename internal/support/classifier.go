package support

import "strings"

// Intent is a set of intents recognized in a free-text input.
type Intent uint8

const (
	// IntentReport means the user only wants to report the issue.
	IntentReport Intent = 1 << iota
	// IntentResolution means the user still wants a resolution.
	IntentResolution
	// IntentRefund asks for a refund.
	IntentRefund
	// IntentReorder asks for a reorder.
	IntentReorder
	// IntentAffirm is a plain yes/ok.
	IntentAffirm
)

// Has reports whether all intents in other are present.
func (i Intent) Has(other Intent) bool {
	return other != 0 && i&other == other
}

// Classifier maps free text to the intents it expresses.
type Classifier interface {
	Classify(input string) Intent
}

// KeywordClassifier matches case-insensitive substrings.
type KeywordClassifier struct {
	phrases []intentPhrases
}

type intentPhrases struct {
	intent  Intent
	phrases []string
}

// NewKeywordClassifier returns the classifier with the built-in phrase sets.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{phrases: []intentPhrases{
		{IntentReport, []string{"only want to report", "report this issue"}},
		{IntentResolution, []string{"still like a resolution", "resolution for this issue"}},
		{IntentRefund, []string{"refund"}},
		{IntentReorder, []string{"reorder", "re-order", "order"}},
		{IntentAffirm, []string{"yes", "ok"}},
	}}
}

// Classify returns every intent whose phrase occurs in input.
func (k *KeywordClassifier) Classify(input string) Intent {
	lower := strings.ToLower(input)
	var out Intent
	for _, set := range k.phrases {
		for _, p := range set.phrases {
			if strings.Contains(lower, p) {
				out |= set.intent
				break
			}
		}
	}
	return out
}
