package host

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

type note struct {
	Pitch     int     `json:"pitch"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
	Velocity  int     `json:"velocity"`
	Mute      bool    `json:"mute"`
}

type point struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

type clip struct {
	name      string
	length    float64
	color     int
	notes     []note
	playing   bool
	looping   bool
	loopStart float64
	loopEnd   float64
	envelopes map[string][]point
}

type arrangementClip struct {
	name    string
	start   float64
	end     float64
	looping bool
}

type deviceParam struct {
	name      string
	value     float64
	min       float64
	max       float64
	quantized bool
	items     []string
}

type device struct {
	name      string
	className string
	kind      string
	chains    bool
	drumPads  bool
	params    []*deviceParam
}

type track struct {
	name        string
	midi        bool
	mute        bool
	solo        bool
	arm         bool
	volume      float64
	panning     float64
	sends       []float64
	slots       []*clip
	devices     []*device
	arrangement []*arrangementClip
}

type scene struct {
	name  string
	tempo float64
}

type cue struct {
	name string
	time float64
}

type dialog struct {
	message string
	buttons int
}

// session is the simulated Live set plus the application around it.
type session struct {
	tempo          float64
	sigNumerator   int
	sigDenominator int

	playing         bool
	recordMode      bool
	overdub         bool
	automationRec   bool
	sessionRecord   bool
	metronome       bool
	loop            bool
	backToArranger  bool
	songTime        float64
	startTime       float64
	loopStart       float64
	loopLength      float64
	triggerQuant    int
	automationArmed bool

	masterVolume  float64
	masterPanning float64

	tracks  []*track
	returns []string
	scenes  []*scene
	cues    []*cue

	visibleViews map[string]bool
	focusedView  string
	browseMode   bool
	dialog       *dialog
	messages     []string
	surfaces     []string
	browser      *browserItem
}

var mainViews = []string{"Browser", "Arranger", "Session", "Detail", "Detail/Clip", "Detail/DeviceChain"}

func newSession() *session {
	s := &session{
		tempo:          120,
		sigNumerator:   4,
		sigDenominator: 4,
		loopLength:     16,
		triggerQuant:   4,
		masterVolume:   0.85,
		returns:        []string{"A-Reverb", "B-Delay"},
		visibleViews:   map[string]bool{"Session": true, "Browser": true, "Detail": true},
		focusedView:    "Session",
		surfaces:       []string{"AbletonMCP"},
		browser:        defaultBrowser(),
	}
	for i := 0; i < 8; i++ {
		s.scenes = append(s.scenes, &scene{})
	}
	s.insertTrack(-1, true)
	s.insertTrack(-1, false)
	s.tracks[0].devices = append(s.tracks[0].devices, newDevice("Operator", "Operator", "instrument"))
	return s
}

func (s *session) insertTrack(index int, midi bool) (int, *track) {
	if index < 0 || index > len(s.tracks) {
		index = len(s.tracks)
	}
	kind := "Audio"
	if midi {
		kind = "MIDI"
	}
	t := &track{
		name:    fmt.Sprintf("%d-%s", index+1, kind),
		midi:    midi,
		volume:  0.85,
		sends:   make([]float64, len(s.returns)),
		slots:   make([]*clip, len(s.scenes)),
		devices: nil,
	}
	s.tracks = append(s.tracks, nil)
	copy(s.tracks[index+1:], s.tracks[index:])
	s.tracks[index] = t
	return index, t
}

func (s *session) track(index int) (*track, error) {
	if index < 0 || index >= len(s.tracks) {
		return nil, errors.New("Track index out of range")
	}
	return s.tracks[index], nil
}

func (s *session) slot(trackIndex, clipIndex int) (*track, int, error) {
	t, err := s.track(trackIndex)
	if err != nil {
		return nil, 0, err
	}
	if clipIndex < 0 || clipIndex >= len(t.slots) {
		return nil, 0, errors.New("Clip index out of range")
	}
	return t, clipIndex, nil
}

func (s *session) clip(trackIndex, clipIndex int) (*clip, error) {
	t, i, err := s.slot(trackIndex, clipIndex)
	if err != nil {
		return nil, err
	}
	if t.slots[i] == nil {
		return nil, errors.New("No clip in slot")
	}
	return t.slots[i], nil
}

func (s *session) device(trackIndex, deviceIndex int) (*track, *device, error) {
	t, err := s.track(trackIndex)
	if err != nil {
		return nil, nil, err
	}
	if deviceIndex < 0 || deviceIndex >= len(t.devices) {
		return nil, nil, errors.New("Device index out of range")
	}
	return t, t.devices[deviceIndex], nil
}

func (s *session) sortCues() {
	sort.SliceStable(s.cues, func(i, j int) bool { return s.cues[i].time < s.cues[j].time })
}

func (s *session) cueAt(time float64) int {
	for i, c := range s.cues {
		if math.Abs(c.time-time) < 1e-4 {
			return i
		}
	}
	return -1
}

func (sim *Simulator) registerSession() {
	sim.handle("get_session_info", func(s *session, _ *args) (interface{}, error) {
		return map[string]interface{}{
			"tempo":                 s.tempo,
			"signature_numerator":   s.sigNumerator,
			"signature_denominator": s.sigDenominator,
			"track_count":           len(s.tracks),
			"return_track_count":    len(s.returns),
			"master_track": map[string]interface{}{
				"name":    "Master",
				"volume":  s.masterVolume,
				"panning": s.masterPanning,
			},
		}, nil
	})
	sim.handle("get_application_info", func(s *session, _ *args) (interface{}, error) {
		info := map[string]interface{}{
			"open_dialog_count":           0,
			"current_dialog_message":      nil,
			"current_dialog_button_count": 0,
			"average_process_usage":       0.12,
			"peak_process_usage":          0.31,
			"has_browser":                 true,
			"control_surfaces":            surfaceList(s),
			"control_surface_count":       len(s.surfaces),
		}
		if s.dialog != nil {
			info["open_dialog_count"] = 1
			info["current_dialog_message"] = s.dialog.message
			info["current_dialog_button_count"] = s.dialog.buttons
		}
		return info, nil
	})
	sim.handle("get_application_view_state", func(s *session, _ *args) (interface{}, error) {
		return map[string]interface{}{"browse_mode": s.browseMode, "focused_document_view": s.focusedView}, nil
	})
	sim.handle("get_application_process_usage", func(*session, *args) (interface{}, error) {
		return map[string]interface{}{"average_process_usage": 0.12, "peak_process_usage": 0.31}, nil
	})
	sim.handle("get_application_version", func(*session, *args) (interface{}, error) {
		return map[string]interface{}{"version_string": "12.1.0 (simulated)", "major": 12, "minor": 1, "bugfix": 0}, nil
	})
	sim.handle("get_application_document", func(s *session, _ *args) (interface{}, error) {
		return map[string]interface{}{
			"tempo":                 s.tempo,
			"signature_numerator":   s.sigNumerator,
			"signature_denominator": s.sigDenominator,
			"track_count":           len(s.tracks),
			"scene_count":           len(s.scenes),
		}, nil
	})
	sim.handle("list_control_surfaces", func(s *session, _ *args) (interface{}, error) {
		return map[string]interface{}{"control_surfaces": surfaceList(s), "count": len(s.surfaces)}, nil
	})
	sim.handle("press_current_dialog_button", func(s *session, a *args) (interface{}, error) {
		idx := a.int("index")
		if s.dialog == nil {
			return nil, errors.New("No dialog is open")
		}
		if idx < 0 || idx >= s.dialog.buttons {
			return nil, errors.New("Dialog button index out of range")
		}
		s.dialog = nil
		return map[string]interface{}{"pressed": true, "index": idx}, nil
	})
	sim.handle("show_message", func(s *session, a *args) (interface{}, error) {
		s.messages = append(s.messages, a.str("message"))
		return map[string]interface{}{"message_shown": true}, nil
	})

	sim.handle("set_tempo", func(s *session, a *args) (interface{}, error) {
		tempo := a.float("tempo")
		if tempo < 20 || tempo > 999 {
			return nil, fmt.Errorf("Tempo %v out of range 20..999", tempo)
		}
		s.tempo = tempo
		return map[string]interface{}{"tempo": s.tempo}, nil
	})
	sim.handle("set_signature_numerator", func(s *session, a *args) (interface{}, error) {
		n := a.int("signature_numerator")
		if n < 1 || n > 99 {
			return nil, fmt.Errorf("Signature numerator %d out of range 1..99", n)
		}
		s.sigNumerator = n
		return map[string]interface{}{"signature_numerator": s.sigNumerator}, nil
	})
	sim.handle("set_signature_denominator", func(s *session, a *args) (interface{}, error) {
		d := a.int("signature_denominator")
		switch d {
		case 1, 2, 4, 8, 16:
		default:
			return nil, fmt.Errorf("Signature denominator %d must be 1, 2, 4, 8 or 16", d)
		}
		s.sigDenominator = d
		return map[string]interface{}{"signature_denominator": s.sigDenominator}, nil
	})
	sim.handle("set_metronome", func(s *session, a *args) (interface{}, error) {
		s.metronome = a.bool("on")
		return map[string]interface{}{"metronome": s.metronome}, nil
	})
	sim.handle("set_clip_trigger_quantization", func(s *session, a *args) (interface{}, error) {
		q := a.int("quant")
		if q < 0 || q > 13 {
			return nil, fmt.Errorf("Quantization %d out of range 0..13", q)
		}
		s.triggerQuant = q
		return map[string]interface{}{"clip_trigger_quantization": s.triggerQuant}, nil
	})
}

func surfaceList(s *session) []interface{} {
	out := make([]interface{}, len(s.surfaces))
	for i, name := range s.surfaces {
		out[i] = map[string]interface{}{"index": i, "class_name": name, "name": name}
	}
	return out
}

func (sim *Simulator) registerViews() {
	view := func(a *args) (string, error) {
		name := a.str("view_name")
		if name == "" {
			return "", nil
		}
		for _, v := range mainViews {
			if v == name {
				return name, nil
			}
		}
		return "", fmt.Errorf("Unknown view: %s", name)
	}

	sim.handle("application_view_available_main_views", func(*session, *args) (interface{}, error) {
		views := append([]string(nil), mainViews...)
		return map[string]interface{}{"views": views, "count": len(views)}, nil
	})
	sim.handle("application_view_focus_view", func(s *session, a *args) (interface{}, error) {
		name, err := view(a)
		if err != nil {
			return nil, err
		}
		if name != "" {
			s.focusedView = name
			s.visibleViews[name] = true
		}
		return map[string]interface{}{"focused": true, "view_name": name}, nil
	})
	sim.handle("application_view_hide_view", func(s *session, a *args) (interface{}, error) {
		name, err := view(a)
		if err != nil {
			return nil, err
		}
		delete(s.visibleViews, name)
		return map[string]interface{}{"hidden": true, "view_name": name}, nil
	})
	sim.handle("application_view_show_view", func(s *session, a *args) (interface{}, error) {
		name, err := view(a)
		if err != nil {
			return nil, err
		}
		s.visibleViews[name] = true
		return map[string]interface{}{"shown": true, "view_name": name}, nil
	})
	sim.handle("application_view_is_view_visible", func(s *session, a *args) (interface{}, error) {
		name, err := view(a)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"view_name": name, "visible": s.visibleViews[name]}, nil
	})
	scrollOrZoom := func(key string) handler {
		return func(_ *session, a *args) (interface{}, error) {
			direction := a.int("direction")
			modifier := a.bool("modifier_pressed")
			name, err := view(a)
			if err != nil {
				return nil, err
			}
			if direction < 0 || direction > 3 {
				return nil, fmt.Errorf("Direction %d out of range 0..3", direction)
			}
			return map[string]interface{}{key: true, "direction": direction, "view_name": name, "modifier_pressed": modifier}, nil
		}
	}
	sim.handle("application_view_scroll_view", scrollOrZoom("scrolled"))
	sim.handle("application_view_zoom_view", scrollOrZoom("zoomed"))
	sim.handle("application_view_toggle_browse", func(s *session, _ *args) (interface{}, error) {
		s.browseMode = !s.browseMode
		return map[string]interface{}{"toggled": true, "browse_mode": s.browseMode}, nil
	})
}
