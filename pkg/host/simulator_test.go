package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/ableton-bridge/pkg/registry"
)

// run coerces raw params the way the dispatcher does and executes name.
func run(t *testing.T, sim *Simulator, name string, raw map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()
	entry, ok := registry.Default().Lookup(name)
	require.True(t, ok, "command %s not registered", name)
	params, err := entry.Coerce(raw)
	require.NoError(t, err)
	result, err := sim.Execute(context.Background(), name, params)
	if err != nil {
		return nil, err
	}
	m, ok := result.(map[string]interface{})
	require.True(t, ok, "result of %s is %T", name, result)
	return m, nil
}

func mustRun(t *testing.T, sim *Simulator, name string, raw map[string]interface{}) map[string]interface{} {
	t.Helper()
	m, err := run(t, sim, name, raw)
	require.NoError(t, err, name)
	return m
}

func TestSimulator_HandlesEveryRegisteredCommand(t *testing.T) {
	sim := NewSimulator()
	assert.NoError(t, registry.Default().CheckHandlers(sim.Handles()))
}

func TestSimulator_UnknownCommand(t *testing.T) {
	_, err := NewSimulator().Execute(context.Background(), "explode", registry.Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "explode")
}

func TestSimulator_SessionInfo(t *testing.T) {
	sim := NewSimulator()
	info := mustRun(t, sim, "get_session_info", nil)
	assert.Equal(t, 120.0, info["tempo"])
	assert.Equal(t, 2, info["track_count"])
	assert.Equal(t, 2, info["return_track_count"])

	mustRun(t, sim, "set_tempo", map[string]interface{}{"tempo": 128})
	info = mustRun(t, sim, "get_session_info", nil)
	assert.Equal(t, 128.0, info["tempo"])

	_, err := run(t, sim, "set_tempo", map[string]interface{}{"tempo": 5})
	assert.ErrorContains(t, err, "out of range")
}

func TestSimulator_ClipLifecycle(t *testing.T) {
	sim := NewSimulator()

	created := mustRun(t, sim, "create_clip", map[string]interface{}{"track_index": 0, "clip_index": 0})
	assert.Equal(t, 4.0, created["length"])

	_, err := run(t, sim, "create_clip", map[string]interface{}{"track_index": 0, "clip_index": 0})
	assert.ErrorContains(t, err, "already has a clip")

	added := mustRun(t, sim, "add_notes_to_clip", map[string]interface{}{
		"track_index": 0,
		"clip_index":  0,
		"notes": []interface{}{
			map[string]interface{}{"pitch": 64, "start_time": 1.0, "duration": 0.5, "velocity": 90},
			map[string]interface{}{"pitch": 60, "start_time": 0.0},
		},
	})
	assert.Equal(t, 2, added["note_count"])

	mustRun(t, sim, "set_clip_name", map[string]interface{}{"track_index": 0, "clip_index": 0, "name": "Intro"})
	info := mustRun(t, sim, "get_clip_info", map[string]interface{}{"track_index": 0, "clip_index": 0})
	assert.Equal(t, true, info["has_clip"])
	assert.Equal(t, "Intro", info["name"])
	assert.Equal(t, 2, info["note_count"])

	empty := mustRun(t, sim, "get_clip_info", map[string]interface{}{"track_index": 0, "clip_index": 1})
	assert.Equal(t, false, empty["has_clip"])

	_, err = run(t, sim, "add_notes_to_clip", map[string]interface{}{
		"track_index": 0,
		"clip_index":  0,
		"notes":       []interface{}{map[string]interface{}{"pitch": 200}},
	})
	assert.ErrorContains(t, err, "pitch 200 out of range")
}

func TestSimulator_IndexErrors(t *testing.T) {
	tests := []struct {
		name    string
		command string
		params  map[string]interface{}
		want    string
	}{
		{"track", "get_track_info", map[string]interface{}{"track_index": 9}, "Track index out of range"},
		{"clip slot", "fire_clip", map[string]interface{}{"track_index": 0, "clip_index": 99}, "Clip index out of range"},
		{"empty slot", "fire_clip", map[string]interface{}{"track_index": 0, "clip_index": 3}, "No clip in slot"},
		{"device", "get_device_parameters", map[string]interface{}{"track_index": 1, "device_index": 0}, "Device index out of range"},
		{"cue", "jump_to_cue", map[string]interface{}{"index": 0}, "Cue index out of range"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := run(t, NewSimulator(), tc.command, tc.params)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestSimulator_CreateTrackInsertsAtIndex(t *testing.T) {
	sim := NewSimulator()
	created := mustRun(t, sim, "create_audio_track", map[string]interface{}{"index": 0})
	assert.Equal(t, 0, created["index"])

	appended := mustRun(t, sim, "create_midi_track", nil)
	assert.Equal(t, 3, appended["index"])

	info := mustRun(t, sim, "get_track_info", map[string]interface{}{"track_index": 1})
	assert.Equal(t, true, info["is_midi_track"])
	assert.Len(t, info["devices"], 1)
}

func TestSimulator_DeviceParameters(t *testing.T) {
	sim := NewSimulator()

	found := mustRun(t, sim, "find_device_by_name", map[string]interface{}{"track_index": 0, "device_name": "operator"})
	assert.Equal(t, true, found["found"])
	assert.Equal(t, 0, found["device_index"])

	set := mustRun(t, sim, "set_device_parameter", map[string]interface{}{
		"track_index": 0, "device_index": 0, "parameter_name": "Tone", "value": 0.25,
	})
	assert.Equal(t, "Tone", set["parameter_name"])
	assert.Equal(t, 0.25, set["value"])

	_, err := run(t, sim, "set_device_parameter", map[string]interface{}{
		"track_index": 0, "device_index": 0, "parameter_index": 1, "value": 3,
	})
	assert.ErrorContains(t, err, "out of range")

	_, err = run(t, sim, "set_device_parameter", map[string]interface{}{
		"track_index": 0, "device_index": 0, "value": 0.5,
	})
	assert.ErrorContains(t, err, "Either parameter_index or parameter_name")

	mustRun(t, sim, "delete_device", map[string]interface{}{"track_index": 0, "device_index": 0})
	info := mustRun(t, sim, "get_track_info", map[string]interface{}{"track_index": 0})
	assert.Empty(t, info["devices"])
}

func TestSimulator_Browser(t *testing.T) {
	sim := NewSimulator()

	tree := mustRun(t, sim, "get_browser_tree", map[string]interface{}{"category_type": "instruments", "max_depth": 1})
	cats := tree["categories"].([]interface{})
	require.Len(t, cats, 1)
	instruments := cats[0].(map[string]interface{})
	assert.Equal(t, "instruments", instruments["name"])
	assert.Len(t, instruments["children"], 4)

	at := mustRun(t, sim, "get_browser_items_at_path", map[string]interface{}{"path": "instruments/Drum Rack"})
	assert.Equal(t, true, at["is_folder"])
	assert.Len(t, at["items"], 1)

	missing := mustRun(t, sim, "get_browser_items_at_path", map[string]interface{}{"path": "instruments/Nope"})
	assert.Equal(t, "Path part 'Nope' not found", missing["error"])

	unknown := mustRun(t, sim, "get_browser_items_at_path", map[string]interface{}{"path": "plugins"})
	assert.Equal(t, "Unknown or unavailable category: plugins", unknown["error"])

	item := mustRun(t, sim, "get_browser_item", map[string]interface{}{"uri": "query:AudioFx#Reverb"})
	assert.Equal(t, true, item["found"])

	loadables := mustRun(t, sim, "get_browser_items", map[string]interface{}{"path": "drums", "item_type": "loadable"})
	assert.Equal(t, 2, loadables["count"])

	loaded := mustRun(t, sim, "load_browser_item", map[string]interface{}{"track_index": 1, "item_uri": "query:AudioFx#Reverb"})
	assert.Equal(t, true, loaded["loaded"])
	assert.Equal(t, "2-Audio", loaded["track_name"])

	_, err := run(t, sim, "load_browser_item", map[string]interface{}{"track_index": 1, "item_uri": "query:Synths#Operator"})
	assert.ErrorContains(t, err, "audio track")

	_, err = run(t, sim, "load_browser_item", map[string]interface{}{"track_index": 0, "item_uri": "query:Nothing"})
	assert.ErrorContains(t, err, "not found")
}

func TestSimulator_Locators(t *testing.T) {
	sim := NewSimulator()
	for _, beat := range []float64{8, 0, 4} {
		mustRun(t, sim, "create_locator", map[string]interface{}{"time": beat})
	}
	locs := mustRun(t, sim, "list_locators", nil)
	assert.Equal(t, 3, locs["locator_count"])

	mustRun(t, sim, "set_current_song_time_beats", map[string]interface{}{"beats": 1})
	next := mustRun(t, sim, "jump_to_next_cue", nil)
	assert.Equal(t, 4.0, next["current_song_time"])

	prev := mustRun(t, sim, "jump_to_prev_cue", nil)
	assert.Equal(t, 0.0, prev["current_song_time"])

	pos := mustRun(t, sim, "get_current_song_time_beats", nil)
	assert.Equal(t, "1.1.1.0", pos["beats_string"])
}

func TestBeatsString(t *testing.T) {
	tests := []struct {
		beats     float64
		numerator int
		want      string
	}{
		{0, 4, "1.1.1.0"},
		{4, 4, "2.1.1.0"},
		{5.5, 4, "2.2.3.0"},
		{3, 3, "2.1.1.0"},
		{0.125, 0, "1.1.1.30"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, beatsString(tc.beats, tc.numerator), "beats %v", tc.beats)
	}
}

func TestSimulator_RejectsReentrantCalls(t *testing.T) {
	sim := NewSimulator(WithLatency(100 * time.Millisecond))
	params := registry.Params{}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sim.Execute(context.Background(), "get_session_info", params)
		}(i)
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], ErrReentrant)
}

func TestSimulator_LatencyHonorsContext(t *testing.T) {
	sim := NewSimulator(WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := sim.Execute(ctx, "get_session_info", registry.Params{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
