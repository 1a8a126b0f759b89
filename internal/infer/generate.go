package infer

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/roach88/procprobe/internal/ir"
)

// Generator turns strategies into concrete values.
//
// A Generator is not safe for concurrent use. Use For to derive an
// independent stream per statement; derived streams depend only on the seed
// and the key, so a run replays identically regardless of worker scheduling.
type Generator struct {
	seed uint64
	rng  *rand.Rand
	now  func() time.Time
}

// NewGenerator creates a generator. A nil now uses time.Now.
func NewGenerator(seed uint64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		seed: seed,
		rng:  rand.New(rand.NewPCG(seed, 0)),
		now:  now,
	}
}

// Seed returns the generator's seed.
func (g *Generator) Seed() uint64 {
	return g.seed
}

// For derives a generator whose stream is keyed by key (a statement ID).
func (g *Generator) For(key string) *Generator {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &Generator{
		seed: g.seed,
		rng:  rand.New(rand.NewPCG(g.seed, h.Sum64())),
		now:  g.now,
	}
}

// Bind produces one value per spec, in index order. A fixture strategy whose
// role is missing from fixtures returns an error wrapping
// *ir.MissingFixtureError.
func (g *Generator) Bind(specs []ir.ParameterSpec, fixtures *ir.FixtureSet) ([]ir.Value, error) {
	values := make([]ir.Value, len(specs))
	for i, p := range specs {
		if p.Index != i+1 {
			return nil, fmt.Errorf("parameter at position %d has index $%d", i+1, p.Index)
		}
		v, err := g.Value(p.Strategy, fixtures)
		if err != nil {
			return nil, fmt.Errorf("parameter $%d: %w", p.Index, err)
		}
		values[i] = v
	}
	return values, nil
}

// Value produces a value for one strategy.
func (g *Generator) Value(s ir.Strategy, fixtures *ir.FixtureSet) (ir.Value, error) {
	switch s := s.(type) {
	case ir.FixtureRef:
		if s.Numeric {
			n, err := fixtures.NumericID(s.Role)
			if err != nil {
				return nil, err
			}
			return ir.Int(n), nil
		}
		id, err := fixtures.ID(s.Role)
		if err != nil {
			return nil, err
		}
		if u, err := uuid.Parse(id); err == nil {
			return ir.UUID(u), nil
		}
		return ir.String(id), nil

	case ir.Literal:
		if s.Value == nil {
			return ir.Null{}, nil
		}
		return s.Value, nil

	case ir.RandomInt:
		if s.Max < s.Min {
			return nil, fmt.Errorf("random_int: max %d < min %d", s.Max, s.Min)
		}
		return ir.Int(s.Min + g.rng.Int64N(s.Max-s.Min+1)), nil

	case ir.RandomDecimal:
		return ir.Decimal{Decimal: g.decimal(s)}, nil

	case ir.RandomWord:
		return ir.String(g.word()), nil

	case ir.RandomEmail:
		return ir.String(fmt.Sprintf("%s.%s.%d@example.test", g.word(), g.word(), g.rng.IntN(100000))), nil

	case ir.RandomPhone:
		// 555-0100..0199 is reserved for fictional use.
		return ir.String(fmt.Sprintf("+1%03d55501%02d", 201+g.rng.IntN(700), g.rng.IntN(100))), nil

	case ir.RandomPersonName:
		return ir.String(pick(g.rng, firstNames) + " " + pick(g.rng, lastNames)), nil

	case ir.Timestamp:
		return ir.Time(g.now().UTC().Add(s.Offset).Truncate(time.Microsecond)), nil

	case ir.RandomArray:
		return g.array(s)

	case ir.NullValue:
		return ir.Null{}, nil

	case ir.JSONObject:
		return ir.JSON{Doc: g.fill(s.Template)}, nil

	case nil:
		return nil, fmt.Errorf("no strategy")

	default:
		return nil, fmt.Errorf("unknown strategy %T", s)
	}
}

// decimal draws from [Min, Max) and truncates to Scale, staying below Max.
func (g *Generator) decimal(s ir.RandomDecimal) decimal.Decimal {
	span := s.Max.Sub(s.Min)
	v := s.Min.Add(span.Mul(decimal.NewFromFloat(g.rng.Float64()))).Truncate(s.Scale)
	if v.GreaterThanOrEqual(s.Max) {
		v = s.Max.Sub(decimal.New(1, -s.Scale))
	}
	if v.LessThan(s.Min) {
		v = s.Min
	}
	return v
}

func (g *Generator) array(s ir.RandomArray) (ir.Value, error) {
	switch s.Elem {
	case ir.TypeIdentifier:
		ids := make(ir.UUIDArray, s.Len)
		for i := range ids {
			ids[i] = g.uuid()
		}
		return ids, nil
	case ir.TypeText:
		ws := make(ir.TextArray, s.Len)
		for i := range ws {
			ws[i] = g.word()
		}
		return ws, nil
	default:
		return nil, fmt.Errorf("random_array: unsupported element class %q", s.Elem)
	}
}

// fill copies a JSON template, substituting placeholder leaves.
func (g *Generator) fill(tmpl map[string]any) map[string]any {
	out := make(map[string]any, len(tmpl))
	for k, v := range tmpl {
		out[k] = g.fillValue(v)
	}
	return out
}

func (g *Generator) fillValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return g.fill(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = g.fillValue(e)
		}
		return out
	case string:
		switch v {
		case "$word":
			return g.word()
		case "$uuid":
			return g.uuid().String()
		case "$now":
			return g.now().UTC().Format(time.RFC3339)
		}
		return v
	default:
		return v
	}
}

func (g *Generator) word() string {
	return pick(g.rng, wordList)
}

// uuid draws a version 4 UUID from the generator's stream.
func (g *Generator) uuid() uuid.UUID {
	var u uuid.UUID
	for i := 0; i < len(u); i += 8 {
		n := g.rng.Uint64()
		for j := 0; j < 8; j++ {
			u[i+j] = byte(n >> (8 * j))
		}
	}
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return u
}

func pick(rng *rand.Rand, list []string) string {
	return list[rng.IntN(len(list))]
}

var wordList = strings.Fields(`
	amber basin cedar delta ember fjord garnet harbor indigo juniper
	kestrel lantern meadow nectar orchid pebble quartz river saffron
	timber umber velvet willow xenon yarrow zephyr
`)

var firstNames = strings.Fields(`Ada Ben Cleo Dara Eli Fern Gus Hana Ivo Jude`)

var lastNames = strings.Fields(`Abbott Brennan Castro Dumont Ellis Farrow Greer Holt Ibarra Joyce`)
