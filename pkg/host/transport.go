package host

import (
	"errors"
	"fmt"
	"math"
)

// beatsString renders a song position as bars.beats.sixteenths.ticks, 1-based.
func beatsString(beats float64, numerator int) string {
	if numerator <= 0 {
		numerator = 4
	}
	whole := math.Floor(beats)
	bar := int(whole)/numerator + 1
	beat := int(whole)%numerator + 1
	frac := beats - whole
	sixteenth := int(frac*4) + 1
	ticks := int(math.Round((frac*4 - math.Floor(frac*4)) * 60))
	return fmt.Sprintf("%d.%d.%d.%d", bar, beat, sixteenth, ticks)
}

func (sim *Simulator) registerTransport() {
	playing := func(s *session) map[string]interface{} {
		return map[string]interface{}{"playing": s.playing}
	}
	position := func(s *session) map[string]interface{} {
		return map[string]interface{}{"current_song_time": s.songTime}
	}
	sim.handle("start_playback", func(s *session, _ *args) (interface{}, error) {
		s.playing = true
		s.songTime = s.startTime
		return playing(s), nil
	})
	sim.handle("stop_playback", func(s *session, _ *args) (interface{}, error) {
		s.playing = false
		return playing(s), nil
	})
	sim.handle("continue_playing", func(s *session, _ *args) (interface{}, error) {
		s.playing = true
		return playing(s), nil
	})
	sim.handle("play_selection", func(s *session, _ *args) (interface{}, error) {
		s.playing = true
		s.songTime = s.loopStart
		return playing(s), nil
	})

	flag := func(name, key string, field func(s *session) *bool) {
		sim.handle(name, func(s *session, a *args) (interface{}, error) {
			p := field(s)
			*p = a.bool("on")
			return map[string]interface{}{key: *p}, nil
		})
	}
	flag("set_record_mode", "record_mode", func(s *session) *bool { return &s.recordMode })
	flag("set_arrangement_overdub", "arrangement_overdub", func(s *session) *bool { return &s.overdub })
	flag("set_session_automation_record", "session_automation_record", func(s *session) *bool { return &s.automationRec })
	flag("set_back_to_arranger", "back_to_arranger", func(s *session) *bool { return &s.backToArranger })
	flag("set_loop", "loop", func(s *session) *bool { return &s.loop })

	sim.handle("trigger_session_record", func(s *session, a *args) (interface{}, error) {
		length, fixed := a.optFloat("record_length")
		if fixed && length <= 0 {
			return nil, fmt.Errorf("Record length must be positive, got %v", length)
		}
		s.sessionRecord = true
		s.playing = true
		result := map[string]interface{}{"session_record_triggered": true}
		if fixed {
			result["record_length"] = length
		}
		return result, nil
	})
	sim.handle("re_enable_automation", func(s *session, _ *args) (interface{}, error) {
		s.automationArmed = false
		return map[string]interface{}{"re_enabled": true}, nil
	})

	sim.handle("get_current_song_time_beats", func(s *session, _ *args) (interface{}, error) {
		return map[string]interface{}{
			"current_song_time": s.songTime,
			"beats_string":      beatsString(s.songTime, s.sigNumerator),
		}, nil
	})
	sim.handle("set_current_song_time_beats", func(s *session, a *args) (interface{}, error) {
		beats := a.float("beats")
		if beats < 0 {
			return nil, errors.New("Song time cannot be negative")
		}
		s.songTime = beats
		return map[string]interface{}{"time": s.songTime}, nil
	})
	sim.handle("set_song_position", func(s *session, a *args) (interface{}, error) {
		t := a.float("time")
		if t < 0 {
			return nil, errors.New("Song time cannot be negative")
		}
		s.songTime = t
		return map[string]interface{}{"position_set": true, "requested_time": t, "time": s.songTime}, nil
	})
	sim.handle("set_start_time", func(s *session, a *args) (interface{}, error) {
		beats := a.float("beats")
		if beats < 0 {
			return nil, errors.New("Start time cannot be negative")
		}
		s.startTime = beats
		return map[string]interface{}{"start_time": s.startTime}, nil
	})
	jump := func(s *session, a *args) (interface{}, error) {
		s.songTime = math.Max(0, s.songTime+a.float("beats"))
		return position(s), nil
	}
	sim.handle("jump_by", jump)
	sim.handle("jump_by_beats", jump)
	sim.handle("set_loop_region", func(s *session, a *args) (interface{}, error) {
		start, length := a.float("start"), a.float("length")
		if start < 0 || length <= 0 {
			return nil, fmt.Errorf("Invalid loop region start=%v length=%v", start, length)
		}
		s.loopStart, s.loopLength = start, length
		return map[string]interface{}{"loop_start": s.loopStart, "loop_length": s.loopLength}, nil
	})

	sim.handle("list_locators", func(s *session, _ *args) (interface{}, error) {
		out := make([]interface{}, len(s.cues))
		for i, c := range s.cues {
			out[i] = map[string]interface{}{"name": c.name, "time": c.time}
		}
		return map[string]interface{}{"locators": out, "locator_count": len(out)}, nil
	})
	sim.handle("create_locator", func(s *session, a *args) (interface{}, error) {
		t := a.float("time")
		if t < 0 {
			return nil, errors.New("Locator time cannot be negative")
		}
		if s.cueAt(t) < 0 {
			s.cues = append(s.cues, &cue{time: t})
			s.sortCues()
		}
		return map[string]interface{}{"created": true, "time": t}, nil
	})
	sim.handle("jump_to_next_cue", func(s *session, _ *args) (interface{}, error) {
		for _, c := range s.cues {
			if c.time > s.songTime+1e-4 {
				s.songTime = c.time
				break
			}
		}
		return position(s), nil
	})
	sim.handle("jump_to_prev_cue", func(s *session, _ *args) (interface{}, error) {
		for i := len(s.cues) - 1; i >= 0; i-- {
			if s.cues[i].time < s.songTime-1e-4 {
				s.songTime = s.cues[i].time
				break
			}
		}
		return position(s), nil
	})
	sim.handle("jump_to_cue", func(s *session, a *args) (interface{}, error) {
		idx := a.int("index")
		if idx < 0 || idx >= len(s.cues) {
			return nil, errors.New("Cue index out of range")
		}
		s.songTime = s.cues[idx].time
		return position(s), nil
	})
	sim.handle("toggle_cue_at_current", func(s *session, _ *args) (interface{}, error) {
		if i := s.cueAt(s.songTime); i >= 0 {
			s.cues = append(s.cues[:i], s.cues[i+1:]...)
		} else {
			s.cues = append(s.cues, &cue{time: s.songTime})
			s.sortCues()
		}
		return map[string]interface{}{"toggled": true}, nil
	})
	sim.handle("rename_cue_point", func(s *session, a *args) (interface{}, error) {
		idx, name := a.int("cue_index"), a.str("name")
		if idx < 0 || idx >= len(s.cues) {
			return nil, errors.New("Cue index out of range")
		}
		s.cues[idx].name = name
		return map[string]interface{}{"cue_index": idx, "new_name": name}, nil
	})
}
