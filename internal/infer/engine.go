package infer

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/roach88/procprobe/internal/ir"
)

// UnresolvedError reports a placeholder index with no ParameterSpec.
// It indicates a defect in inference and is never defaulted away.
type UnresolvedError struct {
	Statement string
	Index     int
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("statement %s: placeholder $%d did not resolve to a parameter spec", e.Statement, e.Index)
}

// Engine infers parameter specs from SQL text.
// Safe for concurrent use; it holds no mutable state.
type Engine struct {
	rules Rules
	log   *zap.Logger
}

// NewEngine creates an inference engine. A nil logger disables logging.
func NewEngine(rules Rules, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{rules: rules, log: log}
}

// Rules returns the engine's rules.
func (e *Engine) Rules() Rules {
	return e.rules
}

var commentTypeRe = regexp.MustCompile(`(?i)^` + typePattern)

// Infer returns one ParameterSpec per placeholder, indexed 1..N, where N is
// the highest placeholder in the executable text. A statement without
// placeholders yields an empty list.
func (e *Engine) Infer(rawSQL, displayName string) ([]ir.ParameterSpec, error) {
	exec := executableText(rawSQL)
	n := maxPlaceholder(exec)
	if n == 0 {
		return []ir.ParameterSpec{}, nil
	}

	casts := castsByIndex(rawSQL)
	comments := docComments(rawSQL)
	uses := firstUseLines(rawSQL)
	bindings := bodyBindings(exec)

	specs := make([]ir.ParameterSpec, 0, n)
	for i := 1; i <= n; i++ {
		useLine, used := uses[i]
		dc, documented := nearestComment(comments[i], useLine, used)

		p := ir.ParameterSpec{Index: i}
		cast := e.inferType(&p, casts[i], dc, documented, used)
		e.inferRole(&p, dc, documented, bindings[i], exec, displayName)
		e.chooseStrategy(&p, cast, displayName)
		specs = append(specs, p)
	}

	if err := checkIndexes(displayName, specs, n); err != nil {
		return nil, err
	}

	for _, p := range specs {
		if p.Fallback {
			e.log.Warn("inference fallback",
				zap.String("statement", displayName),
				zap.Int("index", p.Index),
				zap.String("type", string(p.Type)),
				zap.String("reason", p.FallbackReason))
		}
	}
	return specs, nil
}

// checkIndexes enforces exactly one spec per index 1..n.
func checkIndexes(name string, specs []ir.ParameterSpec, n int) error {
	seen := make(map[int]bool, len(specs))
	for _, p := range specs {
		if p.Index < 1 || p.Index > n || seen[p.Index] || p.Strategy == nil {
			return &UnresolvedError{Statement: name, Index: p.Index}
		}
		seen[p.Index] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			return &UnresolvedError{Statement: name, Index: i}
		}
	}
	return nil
}

// inferType picks the most specific class among the placeholder's casts.
// The documenting comment's type is used when the text has no cast.
func (e *Engine) inferType(p *ir.ParameterSpec, casts []castInfo, dc docComment, documented, used bool) castInfo {
	best, bestRule := castInfo{}, -1
	for _, c := range casts {
		idx := e.rules.classify(c)
		if idx >= 0 && (bestRule < 0 || idx < bestRule) {
			best, bestRule = c, idx
		}
	}

	if bestRule < 0 && len(casts) == 0 && documented && dc.cast != "" {
		if m := commentTypeRe.FindStringSubmatch(dc.cast); m != nil {
			c := parseCast(m[1], m[2], m[3])
			if idx := e.rules.classify(c); idx >= 0 {
				best, bestRule = c, idx
			}
		}
	}

	switch {
	case bestRule >= 0:
		p.Type = typeRules[bestRule].class
		p.Cast = best.raw
		if p.Type == ir.TypeDecimal && best.hasPrec {
			p.Precision, p.Scale = best.precision, best.scale
		}
		return best
	case len(casts) > 0:
		p.Type = ir.TypeText
		p.Cast = casts[0].raw
		fallback(p, fmt.Sprintf("unrecognized type %q; treated as text", casts[0].raw))
	case !used:
		p.Type = ir.TypeText
		fallback(p, "placeholder not referenced in executable text; treated as text")
	default:
		p.Type = ir.TypeText
		fallback(p, "no cast; treated as text")
	}
	return castInfo{}
}

// inferRole mines a semantic role: documenting comment first, then the name
// the placeholder is bound to in the body, then the display name and
// literal substrings of the body for identifiers and text.
//
// A body binding only wins when it means something for the type class;
// "id = $1" says nothing about which fixture to use. An unrecognized binding
// is kept only when nothing later produces a role.
func (e *Engine) inferRole(p *ir.ParameterSpec, dc docComment, documented bool, binding, exec, displayName string) {
	if documented {
		if role := normalizeRole(dc.name); role != "" {
			p.Role, p.RoleSource = role, ir.RoleFromComment
			return
		}
	}
	bound := normalizeRole(binding)
	if bound != "" && e.recognizedRole(p.Type, bound) {
		p.Role, p.RoleSource = bound, ir.RoleFromBody
		return
	}
	defer func() {
		if p.Role == "" && bound != "" {
			p.Role, p.RoleSource = bound, ir.RoleFromBody
		}
	}()

	switch p.Type {
	case ir.TypeIdentifier, ir.TypeIdentifierArray:
		if _, role, ok := nameFixture(displayName); ok {
			p.Role, p.RoleSource = role, ir.RoleFromName
		}
	case ir.TypeText, ir.TypeTextArray:
		switch textKindFor(displayName) {
		case textEmail:
			p.Role, p.RoleSource = "email", ir.RoleFromName
		case textPhone:
			p.Role, p.RoleSource = "phone", ir.RoleFromName
		case textPersonName:
			p.Role, p.RoleSource = "person name", ir.RoleFromName
		default:
			if role := bodyTextRole(exec); role != "" {
				p.Role, p.RoleSource = role, ir.RoleFromBody
			}
		}
	}
}

// recognizedRole reports whether role drives a strategy for class.
func (e *Engine) recognizedRole(class ir.TypeClass, role string) bool {
	switch class {
	case ir.TypeIdentifier, ir.TypeIdentifierArray:
		_, ok := fixtureForRole(role)
		return ok
	case ir.TypeText, ir.TypeTextArray:
		if _, ok := e.rules.TextLiterals[role]; ok {
			return true
		}
		return textKindFor(role) != textWord
	default:
		return true
	}
}

func fallback(p *ir.ParameterSpec, reason string) {
	if p.Fallback {
		p.FallbackReason += "; " + reason
	} else {
		p.FallbackReason = reason
	}
	p.Fallback = true
}
