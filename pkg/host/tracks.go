package host

import (
	"errors"
	"fmt"
	"sort"

	"github.com/morezero/ableton-bridge/pkg/registry"
)

func (sim *Simulator) registerTracks() {
	sim.handle("get_track_info", func(s *session, a *args) (interface{}, error) {
		idx := a.int("track_index")
		t, err := s.track(idx)
		if err != nil {
			return nil, err
		}
		slots := make([]interface{}, len(t.slots))
		for i, c := range t.slots {
			var info interface{}
			if c != nil {
				info = map[string]interface{}{"name": c.name, "length": c.length, "is_playing": c.playing, "is_recording": false}
			}
			slots[i] = map[string]interface{}{"index": i, "has_clip": c != nil, "clip": info}
		}
		devices := make([]interface{}, len(t.devices))
		for i, d := range t.devices {
			devices[i] = map[string]interface{}{"index": i, "name": d.name, "class_name": d.className, "type": d.kind}
		}
		return map[string]interface{}{
			"index":          idx,
			"name":           t.name,
			"is_audio_track": !t.midi,
			"is_midi_track":  t.midi,
			"mute":           t.mute,
			"solo":           t.solo,
			"arm":            t.arm,
			"volume":         t.volume,
			"panning":        t.panning,
			"clip_slots":     slots,
			"devices":        devices,
		}, nil
	})

	create := func(midi bool) handler {
		return func(s *session, a *args) (interface{}, error) {
			index := a.int("index")
			if index < -1 || index > len(s.tracks) {
				return nil, errors.New("Track index out of range")
			}
			idx, t := s.insertTrack(index, midi)
			return map[string]interface{}{"index": idx, "name": t.name}, nil
		}
	}
	sim.handle("create_midi_track", create(true))
	sim.handle("create_audio_track", create(false))

	sim.handle("set_track_name", func(s *session, a *args) (interface{}, error) {
		t, err := s.track(a.int("track_index"))
		if err != nil {
			return nil, err
		}
		t.name = a.str("name")
		return map[string]interface{}{"name": t.name}, nil
	})
	sim.handle("list_return_tracks", func(s *session, _ *args) (interface{}, error) {
		out := make([]interface{}, len(s.returns))
		for i, name := range s.returns {
			out[i] = map[string]interface{}{"index": i, "name": name}
		}
		return map[string]interface{}{"return_tracks": out, "return_track_count": len(out)}, nil
	})
	sim.handle("set_send_level", func(s *session, a *args) (interface{}, error) {
		trackIndex, sendIndex, level := a.int("track_index"), a.int("send_index"), a.float("level")
		t, err := s.track(trackIndex)
		if err != nil {
			return nil, err
		}
		if sendIndex < 0 || sendIndex >= len(t.sends) {
			return nil, errors.New("Send index out of range")
		}
		t.sends[sendIndex] = clamp(level, 0, 1)
		return map[string]interface{}{
			"send_set":    true,
			"track_index": trackIndex,
			"send_index":  sendIndex,
			"new_level":   t.sends[sendIndex],
		}, nil
	})

	sim.handle("list_scenes", func(s *session, _ *args) (interface{}, error) {
		out := make([]interface{}, len(s.scenes))
		for i, sc := range s.scenes {
			entry := map[string]interface{}{"index": i, "name": sc.name}
			if sc.tempo > 0 {
				entry["tempo"] = sc.tempo
			}
			out[i] = entry
		}
		return map[string]interface{}{"scenes": out, "scene_count": len(out)}, nil
	})
	sim.handle("fire_scene", func(s *session, a *args) (interface{}, error) {
		idx := a.int("scene_index")
		if idx < 0 || idx >= len(s.scenes) {
			return nil, errors.New("Scene index out of range")
		}
		for _, t := range s.tracks {
			for i, c := range t.slots {
				if c != nil {
					c.playing = i == idx
				}
			}
		}
		if s.scenes[idx].tempo > 0 {
			s.tempo = s.scenes[idx].tempo
		}
		s.playing = true
		return map[string]interface{}{"fired": true, "scene_index": idx}, nil
	})
	sim.handle("create_scene", func(s *session, a *args) (interface{}, error) {
		idx := a.int("scene_index")
		if idx < -1 || idx > len(s.scenes) {
			return nil, errors.New("Scene index out of range")
		}
		if idx == -1 {
			idx = len(s.scenes)
		}
		s.scenes = append(s.scenes, nil)
		copy(s.scenes[idx+1:], s.scenes[idx:])
		s.scenes[idx] = &scene{}
		for _, t := range s.tracks {
			t.slots = append(t.slots, nil)
			copy(t.slots[idx+1:], t.slots[idx:])
			t.slots[idx] = nil
		}
		return map[string]interface{}{"created": true, "scene_index": idx}, nil
	})
	sim.handle("rename_scene", func(s *session, a *args) (interface{}, error) {
		idx, name := a.int("scene_index"), a.str("name")
		if idx < 0 || idx >= len(s.scenes) {
			return nil, errors.New("Scene index out of range")
		}
		s.scenes[idx].name = name
		return map[string]interface{}{"renamed": true, "scene_index": idx, "new_name": name}, nil
	})
}

func (sim *Simulator) registerClips() {
	sim.handle("create_clip", func(s *session, a *args) (interface{}, error) {
		length := a.float("length")
		t, i, err := s.slot(a.int("track_index"), a.int("clip_index"))
		if err != nil {
			return nil, err
		}
		if t.slots[i] != nil {
			return nil, errors.New("Clip slot already has a clip")
		}
		if length <= 0 {
			return nil, fmt.Errorf("Clip length must be positive, got %v", length)
		}
		c := &clip{length: length, looping: true, loopEnd: length, envelopes: map[string][]point{}}
		t.slots[i] = c
		return map[string]interface{}{"name": c.name, "length": c.length}, nil
	})
	sim.handle("add_notes_to_clip", func(s *session, a *args) (interface{}, error) {
		raw := a.list("notes")
		c, err := s.clip(a.int("track_index"), a.int("clip_index"))
		if err != nil {
			return nil, err
		}
		notes := make([]note, 0, len(raw))
		for i, r := range raw {
			n, err := parseNote(r)
			if err != nil {
				return nil, fmt.Errorf("note %d: %w", i, err)
			}
			notes = append(notes, n)
		}
		c.notes = append(c.notes, notes...)
		sort.SliceStable(c.notes, func(i, j int) bool { return c.notes[i].StartTime < c.notes[j].StartTime })
		return map[string]interface{}{"note_count": len(notes)}, nil
	})
	sim.handle("set_clip_name", func(s *session, a *args) (interface{}, error) {
		name := a.str("name")
		c, err := s.clip(a.int("track_index"), a.int("clip_index"))
		if err != nil {
			return nil, err
		}
		c.name = name
		return map[string]interface{}{"name": c.name}, nil
	})
	sim.handle("get_clip_info", func(s *session, a *args) (interface{}, error) {
		t, i, err := s.slot(a.int("track_index"), a.int("clip_index"))
		if err != nil {
			return nil, err
		}
		c := t.slots[i]
		if c == nil {
			return map[string]interface{}{"has_clip": false}, nil
		}
		return map[string]interface{}{
			"has_clip":              true,
			"name":                  c.name,
			"color":                 c.color,
			"is_looping":            c.looping,
			"loop_start":            c.loopStart,
			"loop_end":              c.loopEnd,
			"start_marker":          0.0,
			"end_marker":            c.length,
			"signature_numerator":   s.sigNumerator,
			"signature_denominator": s.sigDenominator,
			"is_playing":            c.playing,
			"note_count":            len(c.notes),
		}, nil
	})
	sim.handle("fire_clip", func(s *session, a *args) (interface{}, error) {
		trackIndex, clipIndex := a.int("track_index"), a.int("clip_index")
		c, err := s.clip(trackIndex, clipIndex)
		if err != nil {
			return nil, err
		}
		for _, other := range s.tracks[trackIndex].slots {
			if other != nil {
				other.playing = false
			}
		}
		c.playing = true
		s.playing = true
		return map[string]interface{}{"fired": true}, nil
	})
	sim.handle("stop_clip", func(s *session, a *args) (interface{}, error) {
		t, i, err := s.slot(a.int("track_index"), a.int("clip_index"))
		if err != nil {
			return nil, err
		}
		if t.slots[i] != nil {
			t.slots[i].playing = false
		}
		return map[string]interface{}{"stopped": true}, nil
	})
	sim.handle("stop_all_clips", func(s *session, a *args) (interface{}, error) {
		quantized := a.int("quantized")
		for _, t := range s.tracks {
			for _, c := range t.slots {
				if c != nil {
					c.playing = false
				}
			}
		}
		return map[string]interface{}{"stopped": true, "quantized": quantized}, nil
	})
	sim.handle("write_automation", func(s *session, a *args) (interface{}, error) {
		raw := a.list("points")
		paramIndex, byIndex := a.optInt("parameter_index")
		paramName, byName := a.optStr("parameter_name")
		trackIndex, clipIndex, deviceIndex := a.int("track_index"), a.int("clip_index"), a.int("device_index")

		c, err := s.clip(trackIndex, clipIndex)
		if err != nil {
			return nil, err
		}
		_, d, err := s.device(trackIndex, deviceIndex)
		if err != nil {
			return nil, err
		}
		p, err := d.param(paramIndex, byIndex, paramName, byName)
		if err != nil {
			return nil, err
		}
		points := make([]point, 0, len(raw))
		for i, r := range raw {
			pt, err := parsePoint(r)
			if err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
			points = append(points, pt)
		}
		c.envelopes[p.name] = points
		return map[string]interface{}{"wrote_automation": true, "point_count": len(points), "parameter_name": p.name}, nil
	})

	sim.handle("duplicate_track_clip_to_arrangement", func(s *session, a *args) (interface{}, error) {
		start, length := a.float("start_beats"), a.float("length_beats")
		trackIndex := a.int("track_index")
		c, err := s.clip(trackIndex, a.int("clip_index"))
		if err != nil {
			return nil, err
		}
		if length <= 0 {
			return nil, fmt.Errorf("Length must be positive, got %v", length)
		}
		looping := c.looping
		if v, ok := a.p["loop"].(bool); ok {
			looping = v
		}
		t := s.tracks[trackIndex]
		ac := &arrangementClip{name: c.name, start: start, end: start + length, looping: looping}
		t.arrangement = append(t.arrangement, ac)
		sort.SliceStable(t.arrangement, func(i, j int) bool { return t.arrangement[i].start < t.arrangement[j].start })
		index := 0
		for i, x := range t.arrangement {
			if x == ac {
				index = i
			}
		}
		return map[string]interface{}{
			"track_index":            trackIndex,
			"arrangement_clip_index": index,
			"start_time":             ac.start,
			"end_time":               ac.end,
			"looping":                ac.looping,
			"loop_start":             0.0,
			"loop_end":               length,
		}, nil
	})
	sim.handle("clear_arrangement", func(s *session, a *args) (interface{}, error) {
		var targets []*track
		if a.p.Has("track_indices") {
			for _, v := range a.list("track_indices") {
				idx, ok := registry.ToInt(v)
				if !ok {
					return nil, fmt.Errorf("Track index %v is not an integer", v)
				}
				t, err := s.track(idx)
				if err != nil {
					return nil, fmt.Errorf("Track index out of range: %d", idx)
				}
				targets = append(targets, t)
			}
		} else {
			targets = s.tracks
		}
		counts := make([]int, len(targets))
		for i, t := range targets {
			counts[i] = len(t.arrangement)
			t.arrangement = nil
		}
		return map[string]interface{}{"tracks_cleared": len(targets), "deleted_counts": counts}, nil
	})
}

func parseNote(v interface{}) (note, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return note{}, errors.New("expected an object")
	}
	n := note{Pitch: 60, Duration: 0.25, Velocity: 100}
	var err error
	if n.Pitch, err = intField(m, "pitch", n.Pitch); err != nil {
		return note{}, err
	}
	if n.StartTime, err = floatField(m, "start_time", n.StartTime); err != nil {
		return note{}, err
	}
	if n.Duration, err = floatField(m, "duration", n.Duration); err != nil {
		return note{}, err
	}
	if n.Velocity, err = intField(m, "velocity", n.Velocity); err != nil {
		return note{}, err
	}
	if mute, ok := m["mute"].(bool); ok {
		n.Mute = mute
	}
	if n.Pitch < 0 || n.Pitch > 127 {
		return note{}, fmt.Errorf("pitch %d out of range 0..127", n.Pitch)
	}
	if n.Velocity < 0 || n.Velocity > 127 {
		return note{}, fmt.Errorf("velocity %d out of range 0..127", n.Velocity)
	}
	if n.Duration <= 0 {
		return note{}, fmt.Errorf("duration must be positive, got %v", n.Duration)
	}
	return n, nil
}

func parsePoint(v interface{}) (point, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return point{}, errors.New("expected an object")
	}
	var p point
	var err error
	if _, ok := m["time"]; !ok {
		return point{}, errors.New("missing time")
	}
	if _, ok := m["value"]; !ok {
		return point{}, errors.New("missing value")
	}
	if p.Time, err = floatField(m, "time", 0); err != nil {
		return point{}, err
	}
	if p.Value, err = floatField(m, "value", 0); err != nil {
		return point{}, err
	}
	return p, nil
}

func intField(m map[string]interface{}, key string, def int) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := registry.ToInt(v)
	if !ok {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func floatField(m map[string]interface{}, key string, def float64) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := registry.ToFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return f, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
