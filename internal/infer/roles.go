package infer

import (
	"strings"

	"github.com/roach88/procprobe/internal/ir"
)

// normalizeRole turns a parameter or column name into a role:
// "p_owner_user_id" becomes "owner user".
func normalizeRole(name string) string {
	r := strings.ToLower(strings.TrimSpace(name))
	for _, prefix := range []string{"p_", "in_", "_"} {
		if strings.HasPrefix(r, prefix) {
			r = r[len(prefix):]
			break
		}
	}
	for _, suffix := range []string{"_ids", "_id", "_uuid"} {
		if strings.HasSuffix(r, suffix) && len(r) > len(suffix) {
			r = r[:len(r)-len(suffix)]
			break
		}
	}
	return strings.Join(strings.FieldsFunc(r, func(c rune) bool {
		return c == '_' || c == ' ' || c == '-'
	}), " ")
}

// words splits a display name or role into lowercase words.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(c rune) bool {
		return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
	})
}

// hasPhrase reports whether phrase (space separated) occurs as consecutive words.
func hasPhrase(ws []string, phrase string) bool {
	p := strings.Fields(phrase)
	if len(p) == 0 || len(p) > len(ws) {
		return false
	}
	for i := 0; i+len(p) <= len(ws); i++ {
		match := true
		for j := range p {
			if !sameWord(ws[i+j], p[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// sameWord matches a word or its plural.
func sameWord(w, want string) bool {
	return w == want || w == want+"s" || w == want+"es"
}

// fixtureRule maps role phrases to a fixture. Ordered: compound roles
// ("hei asset", "payment method") come before the generic words they contain.
type fixtureRule struct {
	role    ir.FixtureRole
	phrases []string
}

var fixtureRules = []fixtureRule{
	{ir.FixtureHEIAsset, []string{"hei asset", "hei"}},
	{ir.FixturePropertyAsset, []string{"property asset", "property"}},
	{ir.FixturePaymentMethod, []string{"payment method"}},
	{ir.FixtureSubscription, []string{"subscription"}},
	{ir.FixturePlan, []string{"plan"}},
	{ir.FixtureIntegration, []string{"integration"}},
	{ir.FixturePersona, []string{"persona", "beneficiary"}},
	{ir.FixtureFFC, []string{"ffc", "group", "family"}},
	{ir.FixtureCategory, []string{"category"}},
	{ir.FixtureAsset, []string{"asset"}},
	{ir.FixtureTenant, []string{"tenant"}},
	{ir.FixtureEmail, []string{"email"}},
	{ir.FixturePhone, []string{"phone"}},
	{ir.FixtureUser, []string{"user", "owner", "principal", "created by", "updated by", "actor"}},
}

// fixtureForRole returns the fixture a role refers to.
func fixtureForRole(role string) (ir.FixtureRole, bool) {
	ws := words(role)
	for _, rule := range fixtureRules {
		for _, phrase := range rule.phrases {
			if hasPhrase(ws, phrase) {
				return rule.role, true
			}
		}
	}
	return "", false
}

// textKind is a specific flavor of free text.
type textKind int

const (
	textWord textKind = iota
	textEmail
	textPhone
	textPersonName
)

var textRules = []struct {
	kind    textKind
	phrases []string
}{
	{textEmail, []string{"email", "email address"}},
	{textPhone, []string{"phone", "phone number", "mobile"}},
	{textPersonName, []string{"first name", "last name", "full name", "person name", "display name", "firstname", "lastname"}},
}

// textKindFor classifies a role or display name into a text flavor.
func textKindFor(s string) textKind {
	ws := words(s)
	for _, rule := range textRules {
		for _, phrase := range rule.phrases {
			if hasPhrase(ws, phrase) {
				return rule.kind
			}
		}
	}
	return textWord
}

// bodyTextHints are literal substrings that imply a text role anywhere in
// the executable text.
var bodyTextHints = []struct {
	substr string
	role   string
}{
	{"p_email", "email"},
	{"p_phone", "phone"},
	{"p_first_name", "first name"},
	{"p_last_name", "last name"},
}

// bodyTextRole returns the role implied by literal substrings in exec.
func bodyTextRole(exec string) string {
	lower := strings.ToLower(exec)
	for _, h := range bodyTextHints {
		if strings.Contains(lower, h.substr) {
			return h.role
		}
	}
	return ""
}

// nameFixture returns the fixture a display name points at, for
// identifiers with no documented role.
func nameFixture(displayName string) (ir.FixtureRole, string, bool) {
	role := strings.Join(words(displayName), " ")
	f, ok := fixtureForRole(role)
	if !ok {
		return "", "", false
	}
	return f, string(f), true
}

// isPercentage reports a percentage-flavored role or name.
func isPercentage(s string) bool {
	ws := words(s)
	return hasPhrase(ws, "percent") || hasPhrase(ws, "percentage") || hasPhrase(ws, "pct") ||
		hasPhrase(ws, "ownership") || hasPhrase(ws, "share")
}

// isTransfer reports a name describing an incremental transfer.
func isTransfer(s string) bool {
	ws := words(s)
	return hasPhrase(ws, "transfer") || hasPhrase(ws, "adjust") || hasPhrase(ws, "increment")
}

// isExpiry reports a temporal role pointing forward in time.
func isExpiry(s string) bool {
	ws := words(s)
	for _, w := range ws {
		if strings.HasPrefix(w, "expir") || w == "until" || w == "deadline" {
			return true
		}
	}
	return false
}

// mentionsTenant reports a role or name referring to the tenant.
func mentionsTenant(s string) bool {
	return hasPhrase(words(s), "tenant")
}
