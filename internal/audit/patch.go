package audit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Operation is one JSON patch operation (RFC 6902 subset: add, remove, replace).
type Operation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Diff returns the JSON patch turning before into after. Either side may be
// nil, meaning the object was created or deleted. Objects are compared
// through their JSON encoding so field tags define the paths.
func Diff(before, after any) (string, error) {
	oldDoc, err := toDocument(before)
	if err != nil {
		return "", fmt.Errorf("encode previous state: %w", err)
	}
	newDoc, err := toDocument(after)
	if err != nil {
		return "", fmt.Errorf("encode new state: %w", err)
	}

	var ops []Operation
	diffValue("", oldDoc, newDoc, &ops)
	if len(ops) == 0 {
		return "[]", nil
	}

	out, err := json.Marshal(ops)
	if err != nil {
		return "", fmt.Errorf("encode patch: %w", err)
	}
	return string(out), nil
}

func toDocument(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func diffValue(path string, before, after any, ops *[]Operation) {
	oldObj, oldIsObj := before.(map[string]any)
	newObj, newIsObj := after.(map[string]any)

	switch {
	case before == nil && after == nil:
		return
	case before == nil:
		*ops = append(*ops, Operation{Op: "add", Path: rootPath(path), Value: after})
	case after == nil:
		*ops = append(*ops, Operation{Op: "remove", Path: rootPath(path)})
	case oldIsObj && newIsObj:
		diffObject(path, oldObj, newObj, ops)
	case !reflect.DeepEqual(before, after):
		*ops = append(*ops, Operation{Op: "replace", Path: rootPath(path), Value: after})
	}
}

func diffObject(path string, before, after map[string]any, ops *[]Operation) {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		child := path + "/" + escapePointer(k)
		oldV, inOld := before[k]
		newV, inNew := after[k]
		switch {
		case inOld && !inNew:
			*ops = append(*ops, Operation{Op: "remove", Path: child})
		case !inOld && inNew:
			*ops = append(*ops, Operation{Op: "add", Path: child, Value: newV})
		default:
			diffValue(child, oldV, newV, ops)
		}
	}
}

func rootPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func escapePointer(key string) string {
	return pointerEscaper.Replace(key)
}
