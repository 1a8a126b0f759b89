package infer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/procprobe/internal/ir"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testFixtures() *ir.FixtureSet {
	return ir.NewFixtureSet([]ir.Fixture{
		{Role: ir.FixtureTenant, ID: "11111111-1111-4111-8111-111111111111", NumericID: 7, HasNumeric: true},
		{Role: ir.FixtureUser, ID: "22222222-2222-4222-8222-222222222222"},
		{Role: ir.FixtureCategory, ID: "real-estate"},
	}, map[ir.FixtureRole]string{ir.FixtureAsset: "no category rows"})
}

func TestBindFixtureRefs(t *testing.T) {
	g := NewGenerator(1, func() time.Time { return fixedNow })
	specs := []ir.ParameterSpec{
		{Index: 1, Strategy: ir.FixtureRef{Role: ir.FixtureTenant}},
		{Index: 2, Strategy: ir.FixtureRef{Role: ir.FixtureTenant, Numeric: true}},
		{Index: 3, Strategy: ir.FixtureRef{Role: ir.FixtureUser}},
		{Index: 4, Strategy: ir.FixtureRef{Role: ir.FixtureCategory}},
	}

	values, err := g.Bind(specs, testFixtures())
	require.NoError(t, err)

	assert.Equal(t, ir.UUID(uuid.MustParse("11111111-1111-4111-8111-111111111111")), values[0])
	assert.Equal(t, ir.Int(7), values[1])
	assert.Equal(t, ir.UUID(uuid.MustParse("22222222-2222-4222-8222-222222222222")), values[2])
	assert.Equal(t, ir.String("real-estate"), values[3])
}

func TestBindMissingFixture(t *testing.T) {
	g := NewGenerator(1, nil)
	specs := []ir.ParameterSpec{
		{Index: 1, Strategy: ir.RandomWord{}},
		{Index: 2, Strategy: ir.FixtureRef{Role: ir.FixtureAsset}},
	}

	_, err := g.Bind(specs, testFixtures())
	var missing *ir.MissingFixtureError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, ir.FixtureAsset, missing.Role)
	assert.Equal(t, "no category rows", missing.Reason)
	assert.Contains(t, err.Error(), "parameter $2")
}

func TestBindRejectsMisorderedSpecs(t *testing.T) {
	_, err := NewGenerator(1, nil).Bind([]ir.ParameterSpec{{Index: 2, Strategy: ir.RandomWord{}}}, nil)
	assert.ErrorContains(t, err, "has index $2")
}

func TestGeneratorDeterministicPerKey(t *testing.T) {
	specs := []ir.ParameterSpec{
		{Index: 1, Strategy: ir.RandomInt{Min: 1, Max: 1_000_000}},
		{Index: 2, Strategy: ir.RandomArray{Elem: ir.TypeIdentifier, Len: 2}},
		{Index: 3, Strategy: ir.RandomEmail{}},
	}

	root := NewGenerator(42, func() time.Time { return fixedNow })
	a, err := root.For("stmt-a").Bind(specs, nil)
	require.NoError(t, err)

	// Drawing from another stream first does not change stmt-a's values.
	other := NewGenerator(42, func() time.Time { return fixedNow })
	_, err = other.For("stmt-b").Bind(specs, nil)
	require.NoError(t, err)
	b, err := other.For("stmt-a").Bind(specs, nil)
	require.NoError(t, err)

	assert.Equal(t, a, b)

	c, err := NewGenerator(43, nil).For("stmt-a").Bind(specs, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRandomIntInRange(t *testing.T) {
	g := NewGenerator(7, nil)
	for i := 0; i < 500; i++ {
		v, err := g.Value(ir.RandomInt{Min: 5, Max: 9}, nil)
		require.NoError(t, err)
		n := int64(v.(ir.Int))
		assert.GreaterOrEqual(t, n, int64(5))
		assert.LessOrEqual(t, n, int64(9))
	}

	_, err := g.Value(ir.RandomInt{Min: 9, Max: 5}, nil)
	assert.Error(t, err)
}

func TestRandomDecimalStrictlyInsideRange(t *testing.T) {
	g := NewGenerator(7, nil)
	s := ir.RandomDecimal{Min: decimal.NewFromInt(1), Max: decimal.New(1, 8), Scale: 2}
	for i := 0; i < 500; i++ {
		v, err := g.Value(s, nil)
		require.NoError(t, err)
		d := v.(ir.Decimal).Decimal
		assert.True(t, d.GreaterThanOrEqual(s.Min), d.String())
		assert.True(t, d.LessThan(s.Max), d.String())
		assert.LessOrEqual(t, -d.Exponent(), int32(2), d.String())
	}
}

func TestRandomDecimalNarrowRange(t *testing.T) {
	g := NewGenerator(7, nil)
	s := ir.RandomDecimal{Min: decimal.Zero, Max: decimal.NewFromInt(1), Scale: 0}
	for i := 0; i < 50; i++ {
		v, err := g.Value(s, nil)
		require.NoError(t, err)
		assert.True(t, v.(ir.Decimal).IsZero())
	}
}

func TestTextValues(t *testing.T) {
	g := NewGenerator(3, nil)

	email, err := g.Value(ir.RandomEmail{}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(email.(ir.String)), "@example.test"))

	phone, err := g.Value(ir.RandomPhone{}, nil)
	require.NoError(t, err)
	assert.Regexp(t, `^\+1\d{3}55501\d{2}$`, string(phone.(ir.String)))

	name, err := g.Value(ir.RandomPersonName{}, nil)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(string(name.(ir.String))), 2)

	word, err := g.Value(ir.RandomWord{}, nil)
	require.NoError(t, err)
	assert.Contains(t, wordList, string(word.(ir.String)))
}

func TestTimestampValues(t *testing.T) {
	g := NewGenerator(1, func() time.Time { return fixedNow })

	now, err := g.Value(ir.Timestamp{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Time(fixedNow), now)

	later, err := g.Value(ir.Timestamp{Offset: 720 * time.Hour}, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Time(fixedNow.Add(720*time.Hour)), later)
}

func TestArrayValues(t *testing.T) {
	g := NewGenerator(1, nil)

	ids, err := g.Value(ir.RandomArray{Elem: ir.TypeIdentifier, Len: 2}, nil)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	for _, id := range ids.(ir.UUIDArray) {
		assert.Equal(t, uuid.Version(4), id.Version())
		assert.Equal(t, uuid.RFC4122, id.Variant())
	}
	assert.NotEqual(t, ids.(ir.UUIDArray)[0], ids.(ir.UUIDArray)[1])

	words, err := g.Value(ir.RandomArray{Elem: ir.TypeText, Len: 2}, nil)
	require.NoError(t, err)
	assert.Len(t, words, 2)

	_, err = g.Value(ir.RandomArray{Elem: ir.TypeBoolean, Len: 2}, nil)
	assert.Error(t, err)
}

func TestJSONTemplateFill(t *testing.T) {
	g := NewGenerator(1, func() time.Time { return fixedNow })
	tmpl := map[string]any{
		"property": map[string]any{"address": "$word", "id": "$uuid"},
		"valuations": []any{map[string]any{"as_of": "$now", "amount": 100}},
		"fixed":      "keep",
	}

	v, err := g.Value(ir.JSONObject{Template: tmpl}, nil)
	require.NoError(t, err)
	doc := v.(ir.JSON).Doc

	prop := doc["property"].(map[string]any)
	assert.Contains(t, wordList, prop["address"])
	_, err = uuid.Parse(prop["id"].(string))
	assert.NoError(t, err)
	vals := doc["valuations"].([]any)
	assert.Equal(t, "2026-03-01T12:00:00Z", vals[0].(map[string]any)["as_of"])
	assert.Equal(t, "keep", doc["fixed"])

	// Template is not modified.
	assert.Equal(t, "$word", tmpl["property"].(map[string]any)["address"])
}

func TestLiteralAndNull(t *testing.T) {
	g := NewGenerator(1, nil)

	v, err := g.Value(ir.Literal{Value: ir.Bool(true)}, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Bool(true), v)

	v, err = g.Value(ir.NullValue{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Null{}, v)

	_, err = g.Value(nil, nil)
	assert.Error(t, err)
}
