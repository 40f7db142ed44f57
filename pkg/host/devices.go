package host

import (
	"errors"
	"fmt"
	"strings"
)

// deviceParams are the parameters a freshly loaded device exposes, by class.
var deviceParams = map[string][]deviceParam{
	"Operator":         {{name: "Filter Freq", value: 0.8, max: 1}, {name: "Osc-A Level", value: 1, max: 1}, {name: "Tone", value: 0.5, max: 1}},
	"InstrumentVector": {{name: "Osc 1 Pos", value: 0, max: 1}, {name: "Filter 1 Freq", value: 0.7, max: 1}},
	"OriginalSimpler":  {{name: "Volume", value: 0.8, max: 1}, {name: "Transpose", value: 0, min: -48, max: 48}},
	"DrumGroupDevice":  {{name: "Macro 1", value: 0, max: 127}, {name: "Macro 2", value: 0, max: 127}},
	"Reverb":           {{name: "Decay Time", value: 0.5, max: 1}, {name: "Dry/Wet", value: 0.3, max: 1}},
	"Delay":            {{name: "Feedback", value: 0.4, max: 1}, {name: "Dry/Wet", value: 0.3, max: 1}},
	"Eq8":              {{name: "1 Frequency A", value: 0.2, max: 1}, {name: "1 Gain A", value: 0, min: -15, max: 15}},
	"Compressor2":      {{name: "Threshold", value: 0.6, max: 1}, {name: "Ratio", value: 0.5, max: 1}},
	"MidiArpeggiator":  {{name: "Style", value: 0, max: 17, quantized: true, items: []string{"Up", "Down", "UpDown"}}, {name: "Rate", value: 4, max: 15, quantized: true}},
	"MidiChord":        {{name: "Shift1", value: 0, min: -36, max: 36, quantized: true}},
}

func newDevice(name, className, kind string) *device {
	d := &device{name: name, className: className, kind: kind}
	d.params = append(d.params, &deviceParam{name: "Device On", value: 1, max: 1, quantized: true, items: []string{"Off", "On"}})
	for _, p := range deviceParams[className] {
		p := p
		d.params = append(d.params, &p)
	}
	if className == "DrumGroupDevice" {
		d.drumPads = true
		d.chains = true
	}
	return d
}

// param finds a parameter by index when byIndex is set, otherwise by
// case-insensitive name.
func (d *device) param(index int, byIndex bool, name string, byName bool) (*deviceParam, error) {
	switch {
	case byIndex:
		if index < 0 || index >= len(d.params) {
			return nil, errors.New("Parameter index out of range")
		}
		return d.params[index], nil
	case byName:
		for _, p := range d.params {
			if strings.EqualFold(p.name, name) {
				return p, nil
			}
		}
		return nil, fmt.Errorf("Parameter with name '%s' not found", name)
	default:
		return nil, errors.New("Either parameter_index or parameter_name must be provided")
	}
}

func (sim *Simulator) registerDevices() {
	sim.handle("get_device_details", func(s *session, a *args) (interface{}, error) {
		_, d, err := s.device(a.int("track_index"), a.int("device_index"))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"name":               d.name,
			"class_name":         d.className,
			"type":               d.kind,
			"can_have_chains":    d.chains,
			"can_have_drum_pads": d.drumPads,
		}, nil
	})
	sim.handle("get_device_parameters", func(s *session, a *args) (interface{}, error) {
		trackIndex, deviceIndex := a.int("track_index"), a.int("device_index")
		_, d, err := s.device(trackIndex, deviceIndex)
		if err != nil {
			return nil, err
		}
		params := make([]interface{}, len(d.params))
		for i, p := range d.params {
			info := map[string]interface{}{
				"index":        i,
				"name":         p.name,
				"value":        p.value,
				"min":          p.min,
				"max":          p.max,
				"is_quantized": p.quantized,
			}
			if p.quantized && len(p.items) > 0 {
				info["value_items"] = append([]string(nil), p.items...)
			}
			params[i] = info
		}
		return map[string]interface{}{
			"track_index":  trackIndex,
			"device_index": deviceIndex,
			"device_name":  d.name,
			"parameters":   params,
		}, nil
	})
	sim.handle("find_device_by_name", func(s *session, a *args) (interface{}, error) {
		trackIndex, name := a.int("track_index"), a.str("device_name")
		t, err := s.track(trackIndex)
		if err != nil {
			return nil, err
		}
		for i, d := range t.devices {
			if strings.EqualFold(d.name, name) {
				return map[string]interface{}{"found": true, "track_index": trackIndex, "device_index": i, "device_name": d.name}, nil
			}
		}
		return map[string]interface{}{"found": false, "track_index": trackIndex, "device_name": name}, nil
	})
	sim.handle("set_device_parameter", func(s *session, a *args) (interface{}, error) {
		value := a.float("value")
		paramIndex, byIndex := a.optInt("parameter_index")
		paramName, byName := a.optStr("parameter_name")
		_, d, err := s.device(a.int("track_index"), a.int("device_index"))
		if err != nil {
			return nil, err
		}
		p, err := d.param(paramIndex, byIndex, paramName, byName)
		if err != nil {
			return nil, err
		}
		if value < p.min || value > p.max {
			return nil, fmt.Errorf("Value %v out of range %v..%v for %s", value, p.min, p.max, p.name)
		}
		p.value = value
		return map[string]interface{}{"device_name": d.name, "parameter_name": p.name, "value": p.value}, nil
	})
	sim.handle("delete_device", func(s *session, a *args) (interface{}, error) {
		trackIndex, deviceIndex := a.int("track_index"), a.int("device_index")
		t, d, err := s.device(trackIndex, deviceIndex)
		if err != nil {
			return nil, err
		}
		t.devices = append(t.devices[:deviceIndex], t.devices[deviceIndex+1:]...)
		return map[string]interface{}{"track_index": trackIndex, "device_index": deviceIndex, "deleted_device_name": d.name}, nil
	})
}
