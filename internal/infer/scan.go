package infer

import (
	"regexp"
	"strconv"
	"strings"
)

// typePattern matches a type name with optional schema, multi-word suffix,
// length or precision modifier and array brackets.
const typePattern = `((?:[a-z_][a-z0-9_]*\.)?[a-z_][a-z0-9_]*` +
	`(?:\s+(?:varying|precision|with\s+time\s+zone|without\s+time\s+zone))?)` +
	`\s*(\(\s*\d+\s*(?:,\s*\d+\s*)?\))?\s*(\[\s*\])?`

var (
	placeholderRe = regexp.MustCompile(`\$(\d+)`)
	castRe        = regexp.MustCompile(`(?i)\$(\d+)\s*::\s*` + typePattern)
	castAsRe      = regexp.MustCompile(`(?i)\bcast\s*\(\s*\$(\d+)\s+as\s+` + typePattern)
	modifierRe    = regexp.MustCompile(`\d+`)
	spaceRe       = regexp.MustCompile(`\s+`)

	// -- $2: p_owner_user_id UUID - the owning user
	docCommentRe = regexp.MustCompile(`^\s*--\s*\$(\d+)\s*:\s*([A-Za-z_][A-Za-z0-9_]*)(?:\s+([^\n]*?))?\s*$`)

	// p_email => $3, tenant_id = $1
	bindingRe = regexp.MustCompile(`(?i)\b([a-z_][a-z0-9_]*)\s*(?:=>|:=|=)\s*\$(\d+)\b`)
)

// isCommentLine reports whether a line is comment-only.
func isCommentLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "--")
}

// executableText drops comment-only lines.
func executableText(sql string) string {
	lines := strings.Split(sql, "\n")
	kept := lines[:0:0]
	for _, line := range lines {
		if !isCommentLine(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// maxPlaceholder returns the highest $N index in text, 0 when there is none.
func maxPlaceholder(text string) int {
	highest := 0
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest
}

// parseCast normalizes a matched type into castInfo.
func parseCast(name, modifier, brackets string) castInfo {
	name = spaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), " ")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}

	c := castInfo{raw: name}
	c.base = name
	if name == "character varying" {
		c.base = "varchar"
	} else if i := strings.IndexByte(name, ' '); i >= 0 {
		c.base = name[:i]
	}

	if modifier != "" {
		nums := modifierRe.FindAllString(modifier, -1)
		c.raw += "(" + strings.Join(nums, ",") + ")"
		if len(nums) > 0 {
			c.precision, _ = strconv.Atoi(nums[0])
			c.hasPrec = true
		}
		if len(nums) > 1 {
			c.scale, _ = strconv.Atoi(nums[1])
		}
	}
	if brackets != "" {
		c.array = true
		c.raw += "[]"
	}
	return c
}

// castsByIndex collects every cast applied to each placeholder in text.
func castsByIndex(text string) map[int][]castInfo {
	out := make(map[int][]castInfo)
	for _, re := range []*regexp.Regexp{castRe, castAsRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			out[n] = append(out[n], parseCast(m[2], m[3], m[4]))
		}
	}
	return out
}

// docComment is one "-- $i: name type - description" line.
type docComment struct {
	line  int
	name  string
	cast  string
	descr string
}

// docComments collects documenting comments by index, in line order.
func docComments(sql string) map[int][]docComment {
	out := make(map[int][]docComment)
	for i, line := range strings.Split(sql, "\n") {
		m := docCommentRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		dc := docComment{line: i, name: m[2]}
		rest := m[3]
		if j := strings.Index(rest, " - "); j >= 0 {
			dc.descr = strings.TrimSpace(rest[j+3:])
			rest = rest[:j]
		} else if strings.HasPrefix(rest, "- ") {
			dc.descr = strings.TrimSpace(rest[2:])
			rest = ""
		}
		dc.cast = strings.TrimSpace(rest)
		out[n] = append(out[n], dc)
	}
	return out
}

// firstUseLines returns, per index, the first non-comment line using $i.
func firstUseLines(sql string) map[int]int {
	out := make(map[int]int)
	for i, line := range strings.Split(sql, "\n") {
		if isCommentLine(line) {
			continue
		}
		for _, m := range placeholderRe.FindAllStringSubmatch(line, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if _, seen := out[n]; !seen {
				out[n] = i
			}
		}
	}
	return out
}

// nearestComment picks the last documenting comment before the first use of
// the placeholder, or the first one when none precedes it.
func nearestComment(comments []docComment, useLine int, used bool) (docComment, bool) {
	if len(comments) == 0 {
		return docComment{}, false
	}
	if used {
		best := -1
		for i, c := range comments {
			if c.line < useLine {
				best = i
			}
		}
		if best >= 0 {
			return comments[best], true
		}
	}
	return comments[0], true
}

// bodyBindings maps placeholders to the name they are bound or compared to
// in the executable text (named arguments and equality predicates).
func bodyBindings(exec string) map[int]string {
	out := make(map[int]string)
	for _, m := range bindingRe.FindAllStringSubmatch(exec, -1) {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if _, seen := out[n]; !seen {
			out[n] = m[1]
		}
	}
	return out
}
