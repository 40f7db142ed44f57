package host

import (
	"errors"
	"fmt"
	"strings"
)

type browserItem struct {
	name      string
	uri       string
	device    bool
	loadable  bool
	className string
	kind      string
	children  []*browserItem
}

func folder(name, uri string, children ...*browserItem) *browserItem {
	return &browserItem{name: name, uri: uri, children: children}
}

func loadable(name, uri, className, kind string) *browserItem {
	return &browserItem{name: name, uri: uri, device: true, loadable: true, className: className, kind: kind}
}

var browserCategories = []string{"instruments", "sounds", "drums", "audio_effects", "midi_effects"}

func defaultBrowser() *browserItem {
	return folder("Browser", "",
		folder("instruments", "query:Synths",
			loadable("Operator", "query:Synths#Operator", "Operator", "instrument"),
			loadable("Wavetable", "query:Synths#Wavetable", "InstrumentVector", "instrument"),
			loadable("Simpler", "query:Synths#Simpler", "OriginalSimpler", "instrument"),
			folder("Drum Rack", "query:Synths#Drum%20Rack",
				loadable("Drum Rack", "query:Synths#Drum%20Rack:Drum%20Rack", "DrumGroupDevice", "drum_machine"),
			),
		),
		folder("sounds", "query:Sounds",
			folder("Bass", "query:Sounds#Bass",
				loadable("Sub Bass.adg", "query:Sounds#Bass:FileId_1001", "Operator", "instrument"),
			),
			folder("Pad", "query:Sounds#Pad",
				loadable("Warm Pad.adg", "query:Sounds#Pad:FileId_1002", "InstrumentVector", "instrument"),
			),
		),
		folder("drums", "query:Drums",
			loadable("909 Core Kit.adg", "query:Drums#FileId_2001", "DrumGroupDevice", "drum_machine"),
			loadable("808 Core Kit.adg", "query:Drums#FileId_2002", "DrumGroupDevice", "drum_machine"),
		),
		folder("audio_effects", "query:AudioFx",
			loadable("Reverb", "query:AudioFx#Reverb", "Reverb", "audio_effect"),
			loadable("Delay", "query:AudioFx#Delay", "Delay", "audio_effect"),
			loadable("EQ Eight", "query:AudioFx#EQ%20Eight", "Eq8", "audio_effect"),
			loadable("Compressor", "query:AudioFx#Compressor", "Compressor2", "audio_effect"),
		),
		folder("midi_effects", "query:MidiFx",
			loadable("Arpeggiator", "query:MidiFx#Arpeggiator", "MidiArpeggiator", "midi_effect"),
			loadable("Chord", "query:MidiFx#Chord", "MidiChord", "midi_effect"),
		),
	)
}

func (b *browserItem) isFolder() bool {
	return len(b.children) > 0
}

func (b *browserItem) child(name string) *browserItem {
	for _, c := range b.children {
		if strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

func (b *browserItem) summary() map[string]interface{} {
	var uri interface{}
	if b.uri != "" {
		uri = b.uri
	}
	return map[string]interface{}{
		"name":        b.name,
		"is_folder":   b.isFolder(),
		"is_device":   b.device,
		"is_loadable": b.loadable,
		"uri":         uri,
	}
}

func (b *browserItem) tree(depth, maxDepth int) map[string]interface{} {
	m := b.summary()
	children := []interface{}{}
	if depth < maxDepth {
		for _, c := range b.children {
			children = append(children, c.tree(depth+1, maxDepth))
		}
	}
	m["children"] = children
	return m
}

func (b *browserItem) findURI(uri string) *browserItem {
	if b.uri == uri {
		return b
	}
	for _, c := range b.children {
		if found := c.findURI(uri); found != nil {
			return found
		}
	}
	return nil
}

// resolvePath walks a slash-separated path such as "instruments/Drum Rack".
func (b *browserItem) resolvePath(path string) (*browserItem, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return nil, errors.New("Path is empty")
	}
	cur := b.child(parts[0])
	if cur == nil {
		return nil, fmt.Errorf("Unknown or unavailable category: %s", parts[0])
	}
	for i, part := range parts[1:] {
		if !cur.isFolder() {
			return nil, fmt.Errorf("Item at '%s' has no children", strings.Join(parts[:i+1], "/"))
		}
		next := cur.child(part)
		if next == nil {
			return nil, fmt.Errorf("Path part '%s' not found", part)
		}
		cur = next
	}
	return cur, nil
}

func matchesType(b *browserItem, itemType string) bool {
	switch itemType {
	case "", "all":
		return true
	case "folder":
		return b.isFolder()
	case "device":
		return b.device
	case "loadable":
		return b.loadable
	default:
		return b.kind == itemType
	}
}

func (sim *Simulator) registerBrowser() {
	categories := func(s *session, categoryType string) ([]*browserItem, error) {
		if categoryType == "" || categoryType == "all" {
			return s.browser.children, nil
		}
		c := s.browser.child(categoryType)
		if c == nil {
			return nil, fmt.Errorf("Unknown category type: %s", categoryType)
		}
		return []*browserItem{c}, nil
	}

	sim.handle("get_browser_tree", func(s *session, a *args) (interface{}, error) {
		categoryType, maxDepth := a.str("category_type"), a.int("max_depth")
		cats, err := categories(s, categoryType)
		if err != nil {
			return nil, err
		}
		tree := make([]interface{}, len(cats))
		for i, c := range cats {
			tree[i] = c.tree(0, maxDepth)
		}
		return map[string]interface{}{
			"type":                 categoryType,
			"categories":           tree,
			"available_categories": append([]string(nil), browserCategories...),
		}, nil
	})
	sim.handle("get_browser_categories", func(s *session, a *args) (interface{}, error) {
		categoryType := a.str("category_type")
		cats, err := categories(s, categoryType)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(cats))
		for i, c := range cats {
			out[i] = c.summary()
		}
		return map[string]interface{}{"type": categoryType, "categories": out, "count": len(out)}, nil
	})
	sim.handle("get_browser_items_at_path", func(s *session, a *args) (interface{}, error) {
		path := a.str("path")
		item, err := s.browser.resolvePath(path)
		if err != nil {
			return map[string]interface{}{
				"path":                 path,
				"error":                err.Error(),
				"available_categories": append([]string(nil), browserCategories...),
				"items":                []interface{}{},
			}, nil
		}
		items := make([]interface{}, len(item.children))
		for i, c := range item.children {
			items[i] = c.summary()
		}
		m := item.summary()
		m["path"] = path
		m["items"] = items
		return m, nil
	})
	sim.handle("get_browser_items", func(s *session, a *args) (interface{}, error) {
		path, itemType := a.str("path"), a.str("item_type")
		parent := s.browser
		if path != "" {
			var err error
			if parent, err = s.browser.resolvePath(path); err != nil {
				return nil, err
			}
		}
		items := []interface{}{}
		for _, c := range parent.children {
			if matchesType(c, itemType) {
				items = append(items, c.summary())
			}
		}
		return map[string]interface{}{"path": path, "item_type": itemType, "items": items, "count": len(items)}, nil
	})
	sim.handle("get_browser_item", func(s *session, a *args) (interface{}, error) {
		uri, byURI := a.optStr("uri")
		path, byPath := a.optStr("path")
		if !byURI && !byPath {
			return nil, errors.New("Either uri or path must be provided")
		}
		result := map[string]interface{}{"uri": nil, "path": nil, "found": false}
		var item *browserItem
		if byURI {
			result["uri"] = uri
			item = s.browser.findURI(uri)
		}
		if item == nil && byPath {
			result["path"] = path
			var err error
			if item, err = s.browser.resolvePath(path); err != nil {
				result["error"] = err.Error()
			}
		}
		if item != nil {
			result["found"] = true
			result["item"] = item.summary()
		}
		return result, nil
	})
	sim.handle("load_browser_item", func(s *session, a *args) (interface{}, error) {
		trackIndex, uri := a.int("track_index"), a.str("item_uri")
		t, err := s.track(trackIndex)
		if err != nil {
			return nil, err
		}
		item := s.browser.findURI(uri)
		if item == nil || uri == "" {
			return nil, fmt.Errorf("Browser item with URI '%s' not found", uri)
		}
		if !item.loadable {
			return nil, fmt.Errorf("Browser item '%s' is not loadable", item.name)
		}
		d := newDevice(strings.TrimSuffix(item.name, ".adg"), item.className, item.kind)
		if item.kind == "instrument" || item.kind == "drum_machine" {
			if !t.midi {
				return nil, fmt.Errorf("Cannot load instrument '%s' on audio track '%s'", item.name, t.name)
			}
			t.devices = append([]*device{d}, t.devices...)
		} else {
			t.devices = append(t.devices, d)
		}
		return map[string]interface{}{"loaded": true, "item_name": item.name, "track_name": t.name, "uri": uri}, nil
	})
}
