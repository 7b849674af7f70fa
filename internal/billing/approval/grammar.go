package approval

import "strings"

// Decision enumerates approval outcomes.
type Decision string

const (
	DecisionNone     Decision = "NONE"
	DecisionApproved Decision = "APPROVED"
	DecisionRejected Decision = "REJECTED"
)

// approvePhrases is the finite allow-list of normalized utterances that
// count as transmission approval. Anything not matching classifies as NONE;
// under-approving is safe, over-approving is not.
var approvePhrases = map[string]struct{}{
	"send it":                       {},
	"send the invoice":              {},
	"send this invoice":             {},
	"send invoice":                  {},
	"send them":                     {},
	"approved":                      {},
	"approved send it":              {},
	"approved to send":              {},
	"go ahead and send":             {},
	"go ahead and send it":          {},
	"go ahead and send the invoice": {},
	"proceed with sending":          {},
	"proceed with the send":         {},
}

var rejectPhrases = map[string]struct{}{
	"no":                      {},
	"dont send":               {},
	"dont send it":            {},
	"do not send":             {},
	"do not send it":          {},
	"dont send the invoice":   {},
	"do not send the invoice": {},
	"cancel":                  {},
	"cancel it":               {},
	"reject":                  {},
	"rejected":                {},
	"hold off":                {},
	"not yet":                 {},
}

// leadIns are affirmative fillers stripped before matching, so that
// "yes, send it" and "ok please send the invoice" reduce to allow-list
// entries.
var leadIns = []string{"yes", "yeah", "yep", "ok", "okay", "sure", "please", "great"}

// Classify maps an utterance to a decision. The grammar is an explicit
// allow-list: phrases approving creation, vague acknowledgments, and
// anything ambiguous classify as NONE, never APPROVED.
func Classify(utterance string) Decision {
	norm := normalize(utterance)
	if norm == "" {
		return DecisionNone
	}
	if _, ok := rejectPhrases[norm]; ok {
		return DecisionRejected
	}
	stripped := stripLeadIns(norm)
	if _, ok := approvePhrases[stripped]; ok {
		return DecisionApproved
	}
	return DecisionNone
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func stripLeadIns(s string) string {
	words := strings.Fields(s)
	for len(words) > 1 {
		if !isLeadIn(words[0]) {
			break
		}
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func isLeadIn(word string) bool {
	for _, l := range leadIns {
		if word == l {
			return true
		}
	}
	return false
}
