package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Kinds(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		kind Kind
	}{
		{"null", Value{}, KindNull},
		{"string", Str("a"), KindString},
		{"number", Int(3), KindNumber},
		{"bool", Bool(true), KindBool},
		{"list", List(Str("a")), KindList},
		{"map", Object(nil), KindMap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.v.Kind())
			assert.Equal(t, tt.name, tt.kind.String())
		})
	}
}

func TestValue_Accessors(t *testing.T) {
	s, ok := Str("x").AsString()
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = Int(1).AsString()
	assert.False(t, ok)

	n, ok := Int64(1 << 40).AsInt()
	assert.True(t, ok)
	assert.EqualValues(t, int64(1)<<40, n)

	list, ok := Strings([]string{"a", "b"}).AsList()
	require.True(t, ok)
	assert.Len(t, list, 2)
	list[0] = Str("mutated")
	orig, _ := Strings([]string{"a", "b"}).AsList()
	assert.Equal(t, Str("a"), orig[0])
}

func TestMap_InsertionOrder(t *testing.T) {
	m := NewMap().Set("z", Int(1)).Set("a", Int(2)).Set("m", Int(3))
	m.Set("z", Int(9))

	assert.Equal(t, []string{"z", "a", "m"}, m.Keys())
	v, _ := m.Get("z")
	n, _ := v.AsInt()
	assert.EqualValues(t, 9, n)

	raw, err := json.Marshal(Object(m))
	require.NoError(t, err)
	assert.Equal(t, `{"z":9,"a":2,"m":3}`, string(raw))
}

func TestValue_MarshalJSON(t *testing.T) {
	v := Object(NewMap().
		Set("name", Str("he said \"hi\"")).
		Set("ratio", Float(0.25)).
		Set("ok", Bool(false)).
		Set("nan", Float(math.NaN())).
		Set("items", List()).
		Set("nothing", Value{}))

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"he said \"hi\"","ratio":0.25,"ok":false,"nan":null,"items":[],"nothing":null}`, string(raw))
}

func TestValue_Path(t *testing.T) {
	v := Object(NewMap().Set("a", Object(NewMap().Set("b", Str("c")))))

	got, ok := v.Path("a", "b")
	require.True(t, ok)
	s, _ := got.AsString()
	assert.Equal(t, "c", s)

	_, ok = v.Path("a", "missing")
	assert.False(t, ok)
	_, ok = Str("x").Path("a")
	assert.False(t, ok)
}

func TestMap_Range(t *testing.T) {
	m := NewMap().Set("a", Int(1)).Set("b", Int(2)).Set("c", Int(3))

	var visited []string
	m.Range(func(k string, _ Value) bool {
		visited = append(visited, k)
		return k != "b"
	})
	assert.Equal(t, []string{"a", "b"}, visited)
}

func TestCountMap(t *testing.T) {
	m := CountMap([]string{"urls", "commands"}, map[string]int{"commands": 2})
	raw, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"urls":0,"commands":2}`, string(raw))
}
