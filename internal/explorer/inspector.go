package explorer

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/dossier/kgexplorer/internal/graph"
)

// Inspector is the side panel showing the last tapped element. Closing it
// keeps the selection, so reopening shows the same element again.
type Inspector struct {
	selection graph.Element
	open      bool
}

// InspectorView is what the panel renders.
type InspectorView struct {
	Open  bool              `json:"open"`
	Kind  graph.ElementKind `json:"kind,omitempty"`
	ID    string            `json:"id,omitempty"`
	Label string            `json:"label,omitempty"`
	Tree  []PropertyNode    `json:"tree,omitempty"`
}

// Show selects el and opens the panel.
func (i *Inspector) Show(el graph.Element) {
	i.selection = el
	i.open = true
}

// Close hides the panel.
func (i *Inspector) Close() {
	i.open = false
}

// Reopen shows the panel again with the last selection. It reports false
// when nothing was ever selected.
func (i *Inspector) Reopen() bool {
	if i.selection == nil {
		return false
	}
	i.open = true
	return true
}

// Open reports whether the panel is visible.
func (i *Inspector) Open() bool { return i.open }

// Selection returns the last tapped element, or nil.
func (i *Inspector) Selection() graph.Element { return i.selection }

// View renders the panel.
func (i *Inspector) View() InspectorView {
	v := InspectorView{Open: i.open}
	if i.selection == nil {
		return v
	}
	v.Kind = i.selection.Kind()
	v.ID = i.selection.ElementID()
	v.Label = i.selection.DisplayLabel()
	v.Tree = PropertyTree(i.selection.Props())
	return v
}

// ---------------------------------------------------------------------------
// Property tree
// ---------------------------------------------------------------------------

// PropertyNode is one entry of a JSON-like property tree. Objects and arrays
// carry Children; scalars carry Value.
type PropertyNode struct {
	Key      string         `json:"key"`
	Type     string         `json:"type"`
	Value    any            `json:"value"`
	Children []PropertyNode `json:"children,omitempty"`
}

// Property node types.
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeNull    = "null"
)

// PropertyTree turns arbitrary nested properties into a tree with object
// keys sorted and array entries keyed by index.
func PropertyTree(props map[string]any) []PropertyNode {
	if len(props) == 0 {
		return nil
	}
	return propertyChildren(reflect.ValueOf(props))
}

func propertyNode(key string, v any) PropertyNode {
	if v == nil {
		return PropertyNode{Key: key, Type: TypeNull}
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return PropertyNode{Key: key, Type: TypeNull}
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		return PropertyNode{Key: key, Type: TypeObject, Children: propertyChildren(rv)}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return PropertyNode{Key: key, Type: TypeString, Value: string(rv.Bytes())}
		}
		return PropertyNode{Key: key, Type: TypeArray, Children: propertyChildren(rv)}
	case reflect.String:
		return PropertyNode{Key: key, Type: TypeString, Value: rv.String()}
	case reflect.Bool:
		return PropertyNode{Key: key, Type: TypeBoolean, Value: rv.Bool()}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return PropertyNode{Key: key, Type: TypeNumber, Value: rv.Int()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return PropertyNode{Key: key, Type: TypeNumber, Value: rv.Uint()}
	case reflect.Float32, reflect.Float64:
		return PropertyNode{Key: key, Type: TypeNumber, Value: rv.Float()}
	}
	if s, ok := v.(fmt.Stringer); ok {
		return PropertyNode{Key: key, Type: TypeString, Value: s.String()}
	}
	return PropertyNode{Key: key, Type: TypeString, Value: fmt.Sprint(v)}
}

func propertyChildren(rv reflect.Value) []PropertyNode {
	switch rv.Kind() {
	case reflect.Map:
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		byName := make(map[string]reflect.Value, len(keys))
		for i, k := range keys {
			names[i] = fmt.Sprint(k.Interface())
			byName[names[i]] = k
		}
		sort.Strings(names)
		out := make([]PropertyNode, 0, len(names))
		for _, name := range names {
			out = append(out, propertyNode(name, rv.MapIndex(byName[name]).Interface()))
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]PropertyNode, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, propertyNode(strconv.Itoa(i), rv.Index(i).Interface()))
		}
		return out
	}
	return nil
}
