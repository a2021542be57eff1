package world

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/roach88/taskdispatch/internal/state"
)

// ConfigHandler merges a decoded JSON document into w. Numbers arrive as
// json.Number.
type ConfigHandler func(w *World, doc any) error

// LoadConfig reads the JSON file at path and hands it to handler (MergeFlat
// when nil). If the handler fails, application state is restored to what it
// was before the call. Every failure is a ConfigError.
func (w *World) LoadConfig(path string, handler ConfigHandler) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Path: path, Message: "read failed", Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &ConfigError{Path: path, Message: "invalid JSON", Err: err}
	}

	if handler == nil {
		handler = MergeFlat
	}

	backup := w.copyState()
	if err := handler(w, doc); err != nil {
		w.restoreState(backup)
		var ce *ConfigError
		if errors.As(err, &ce) {
			if ce.Path == "" {
				ce.Path = path
			}
			return ce
		}
		return &ConfigError{Path: path, Message: "handler rejected config", Err: err}
	}

	w.logger.Info("config loaded", "path", path)
	return nil
}

// MergeFlat accepts an object whose values are strings, numbers or
// booleans and sets each as application state.
func MergeFlat(w *World, doc any) error {
	obj, ok := doc.(map[string]any)
	if !ok {
		return &ConfigError{Message: fmt.Sprintf("expected a JSON object, got %s", jsonKind(doc))}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, err := state.FromAny(obj[k])
		if err != nil {
			return &ConfigError{Message: fmt.Sprintf("key %q must be a string, number or boolean, got %s", k, jsonKind(obj[k]))}
		}
		w.Set(k, v)
	}
	return nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func (w *World) copyState() map[string]state.Value {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]state.Value, len(w.state))
	for k, v := range w.state {
		out[k] = v
	}
	return out
}

func (w *World) restoreState(backup map[string]state.Value) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = backup
}
