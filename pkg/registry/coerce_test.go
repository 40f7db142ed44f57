package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(t *testing.T, name string) *Entry {
	t.Helper()
	e, ok := Default().Lookup(name)
	require.True(t, ok, "command %s must be registered", name)
	return e
}

func TestCoerce_AppliesDefaults(t *testing.T) {
	e := lookup(t, "create_clip")
	raw := map[string]interface{}{"track_index": json.Number("0"), "clip_index": json.Number("2")}

	params, err := e.Coerce(raw)
	require.NoError(t, err)
	assert.Equal(t, json.Number("0"), params["track_index"])
	assert.Equal(t, json.Number("2"), params["clip_index"])
	assert.Equal(t, 4.0, params["length"])
	assert.NotContains(t, raw, "length", "raw params must not be mutated")
}

func TestCoerce_KeepsSuppliedValues(t *testing.T) {
	e := lookup(t, "get_browser_tree")
	params, err := e.Coerce(map[string]interface{}{"max_depth": json.Number("5")})
	require.NoError(t, err)
	assert.Equal(t, Params{"category_type": "all", "max_depth": json.Number("5")}, params)
}

func TestCoerce_NullableOptionalStaysAbsent(t *testing.T) {
	e := lookup(t, "trigger_session_record")
	params, err := e.Coerce(nil)
	require.NoError(t, err)
	assert.Empty(t, params)

	params, err = e.Coerce(map[string]interface{}{"record_length": nil})
	require.NoError(t, err)
	assert.Contains(t, params, "record_length")
	assert.False(t, params.Has("record_length"))
}

func TestCoerce_MissingRequired(t *testing.T) {
	e := lookup(t, "set_tempo")
	_, err := e.Coerce(map[string]interface{}{})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Problems, 1)
	assert.Equal(t, "tempo", verr.Problems[0].Param)
	assert.Equal(t, TypeNumber, verr.Problems[0].Expected)
	assert.Contains(t, err.Error(), "tempo")
	assert.Contains(t, err.Error(), "number")
}

func TestCoerce_UnknownParam(t *testing.T) {
	e := lookup(t, "set_tempo")
	_, err := e.Coerce(map[string]interface{}{"tempo": json.Number("120"), "bpm": json.Number("120")})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Problems, 1)
	assert.Equal(t, "bpm", verr.Problems[0].Param)
	assert.Equal(t, "unknown parameter", verr.Problems[0].Reason)
}

func TestCoerce_TypeMismatch(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		raw      map[string]interface{}
		param    string
		expected ParamType
	}{
		{"string for number", "set_tempo", map[string]interface{}{"tempo": "fast"}, "tempo", TypeNumber},
		{"fraction for integer", "get_track_info", map[string]interface{}{"track_index": json.Number("1.5")}, "track_index", TypeInteger},
		{"number for boolean", "set_metronome", map[string]interface{}{"on": json.Number("1")}, "on", TypeBoolean},
		{"object for string", "set_track_name", map[string]interface{}{"track_index": json.Number("0"), "name": map[string]interface{}{}}, "name", TypeString},
		{"null for non-nullable", "set_tempo", map[string]interface{}{"tempo": nil}, "tempo", TypeNumber},
		{"bad array item", "clear_arrangement", map[string]interface{}{"track_indices": []interface{}{json.Number("1"), "two"}}, "track_indices.1", TypeInteger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lookup(t, tt.command).Coerce(tt.raw)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			require.NotEmpty(t, verr.Problems)
			assert.Equal(t, tt.param, verr.Problems[0].Param)
			assert.Equal(t, tt.expected, verr.Problems[0].Expected)
			assert.Contains(t, err.Error(), string(tt.expected))
		})
	}
}

func TestCoerce_ReportsEveryProblemInParamOrder(t *testing.T) {
	e := lookup(t, "set_send_level")
	_, err := e.Coerce(map[string]interface{}{"level": "loud", "extra": true})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	var names []string
	for _, p := range verr.Problems {
		names = append(names, p.Param)
	}
	assert.Equal(t, []string{"track_index", "send_index", "level", "extra"}, names)
}

func TestCoerce_AcceptsNativeGoValues(t *testing.T) {
	e := lookup(t, "duplicate_track_clip_to_arrangement")
	params, err := e.Coerce(map[string]interface{}{
		"track_index": 1, "clip_index": 0, "start_beats": 16.0, "length_beats": 8, "loop": true,
	})
	require.NoError(t, err)
	assert.Equal(t, true, params["loop"])
}
