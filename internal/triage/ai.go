package triage

import (
	"context"
	"strings"

	"github.com/joshsymonds/mailtriage/internal/gmail"
)

// Classifier suggests labels for a message from a catalog of candidates and
// names the model that produced them.
type Classifier interface {
	Classify(ctx context.Context, msg gmail.Message, candidates []string) (labels []string, model string, err error)
}

// aiNamespace is the reserved label prefix for classifier output. Each
// model writes under AI/<MODEL>/ so that suggestions from different models
// never clobber each other.
const aiNamespace = "AI"

// ApplyAILabels converts classifier output into add/remove operations
// relative to the item's current labels. Suggestions are namespaced as
// AI/<MODEL>/<label>; labels under the same model namespace that the
// classifier no longer suggests are removed, which makes AI labelling
// self-correcting across runs.
func ApplyAILabels(current map[string]struct{}, suggested []string, model string, adds, removes *[]string) {
	prefix := strings.ToUpper(aiNamespace + "/" + model + "/")

	newLabels := make(map[string]struct{}, len(suggested))
	for _, label := range suggested {
		name := strings.ToUpper(aiNamespace + "/" + model + "/" + label)
		newLabels[name] = struct{}{}
		if _, ok := current[name]; !ok {
			*adds = append(*adds, name)
		}
	}

	for name := range current {
		if !strings.HasPrefix(strings.ToUpper(name), prefix) {
			continue
		}
		if _, ok := newLabels[name]; !ok {
			*removes = append(*removes, name)
		}
	}
}
