package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const logPrefix = "registry:registry"

// Entry is the schema of one command. Entries are immutable once the
// Registry holding them is built.
type Entry struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Kind        Kind    `json:"kind"`
	Params      []Param `json:"params"`

	schema *gojsonschema.Schema
}

// Param returns the named parameter.
func (e *Entry) Param(name string) (Param, bool) {
	for _, p := range e.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Mutating reports whether the command changes host state.
func (e *Entry) Mutating() bool {
	return e.Kind == KindMutation
}

// Signature renders the parameter list, e.g. "track_index: integer, length?: number = 4".
func (e *Entry) Signature() string {
	parts := make([]string, 0, len(e.Params))
	for _, p := range e.Params {
		name := p.Name
		if !p.Required {
			name += "?"
		}
		typ := string(p.Type)
		if p.Type == TypeArray && p.Items != "" {
			typ = fmt.Sprintf("array<%s>", p.Items)
		}
		s := fmt.Sprintf("%s: %s", name, typ)
		if p.Default != nil {
			s += fmt.Sprintf(" = %v", p.Default)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// Schema returns a fresh JSON Schema document describing the parameter object.
func (e *Entry) Schema() map[string]interface{} {
	properties := make(map[string]interface{}, len(e.Params))
	required := make([]interface{}, 0, len(e.Params))
	for _, p := range e.Params {
		prop := map[string]interface{}{}
		if p.Nullable {
			prop["type"] = []interface{}{string(p.Type), "null"}
		} else {
			prop["type"] = string(p.Type)
		}
		if p.Type == TypeArray && p.Items != "" {
			prop["items"] = map[string]interface{}{"type": string(p.Items)}
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	doc := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	if e.Description != "" {
		doc["description"] = e.Description
	}
	return doc
}

func (e *Entry) compile() error {
	if e.Name == "" {
		return fmt.Errorf("%s - entry with empty name", logPrefix)
	}
	if e.Kind != KindQuery && e.Kind != KindMutation {
		return fmt.Errorf("%s - %s: invalid kind %q", logPrefix, e.Name, e.Kind)
	}
	seen := make(map[string]bool, len(e.Params))
	for _, p := range e.Params {
		if p.Name == "" {
			return fmt.Errorf("%s - %s: parameter with empty name", logPrefix, e.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%s - %s: duplicate parameter %q", logPrefix, e.Name, p.Name)
		}
		seen[p.Name] = true
		if !p.Type.valid() {
			return fmt.Errorf("%s - %s.%s: invalid type %q", logPrefix, e.Name, p.Name, p.Type)
		}
		if p.Items != "" && !p.Items.valid() {
			return fmt.Errorf("%s - %s.%s: invalid item type %q", logPrefix, e.Name, p.Name, p.Items)
		}
		if p.Required && p.Default != nil {
			return fmt.Errorf("%s - %s.%s: required parameter cannot have a default", logPrefix, e.Name, p.Name)
		}
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(e.Schema()))
	if err != nil {
		return fmt.Errorf("%s - %s: failed to compile schema: %w", logPrefix, e.Name, err)
	}
	e.schema = schema
	return nil
}

// Registry maps command names to entries. Read-only after New returns, so it
// needs no locking.
type Registry struct {
	entries map[string]*Entry
	names   []string
}

// New builds a Registry, compiling every entry's schema. Names must be unique.
func New(entries []Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]*Entry, len(entries))}
	for i := range entries {
		e := entries[i]
		e.Params = append([]Param(nil), e.Params...)
		if err := e.compile(); err != nil {
			return nil, err
		}
		if _, dup := r.entries[e.Name]; dup {
			return nil, fmt.Errorf("%s - duplicate command %q", logPrefix, e.Name)
		}
		r.entries[e.Name] = &e
		r.names = append(r.names, e.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// MustNew is New that panics on error, for static tables.
func MustNew(entries []Entry) *Registry {
	r, err := New(entries)
	if err != nil {
		panic(err)
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return MustNew(Commands())
})

// Default returns the registry of all host commands.
func Default() *Registry {
	return defaultRegistry()
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Names returns all command names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Entries returns all entries sorted by name.
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, len(r.names))
	for i, name := range r.names {
		out[i] = r.entries[name]
	}
	return out
}

// Len returns the number of commands.
func (r *Registry) Len() int {
	return len(r.names)
}

// CheckHandlers verifies that a backend's handler set equals the registry set.
// A mismatch is a configuration error and should stop startup.
func (r *Registry) CheckHandlers(handlers []string) error {
	have := make(map[string]bool, len(handlers))
	var unregistered []string
	for _, h := range handlers {
		have[h] = true
		if _, ok := r.entries[h]; !ok {
			unregistered = append(unregistered, h)
		}
	}
	var missing []string
	for _, name := range r.names {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 && len(unregistered) == 0 {
		return nil
	}
	sort.Strings(unregistered)
	return fmt.Errorf("%s - handler set does not match registry: without handler [%s], without entry [%s]",
		logPrefix, strings.Join(missing, ", "), strings.Join(unregistered, ", "))
}
