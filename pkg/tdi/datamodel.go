package tdi

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tdi/internal/errors"
)

// DataModel is a Model backed by plain data, such as a decoded YAML or
// JSON document. Keys are leaf names; the value decides what happens to
// the node:
//
//	string, number  content
//	false           remove
//	true, null      leave as is
//	list            repeat, one item per clone
//	map             "@name" sets (or with false deletes) an attribute,
//	                "#text", "#raw" and "#hidden" set content and
//	                visibility, other keys fill the descendants
//
// A key ":leaf" fills the separators of leaf. A "#version" key at the top
// level makes the model cacheable as a prerender model.
type DataModel struct {
	data map[string]any
}

// NewDataModel wraps data. A nil map handles nothing.
func NewDataModel(data map[string]any) *DataModel {
	return &DataModel{data: data}
}

// LoadDataModel decodes a YAML or JSON document.
func LoadDataModel(r io.Reader) (*DataModel, error) {
	var data map[string]any
	if err := yaml.NewDecoder(r).Decode(&data); err != nil && err != io.EOF {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "decoding model data").
			WithContext("cause", err.Error())
	}
	return NewDataModel(data), nil
}

// Data returns the underlying map.
func (m *DataModel) Data() map[string]any { return m.data }

func (m *DataModel) RenderFunc(leaf string) RenderFunc {
	v, ok := m.data[leaf]
	if !ok {
		return nil
	}
	return func(n *Node) error { return applyValue(n, v) }
}

func (m *DataModel) SeparatorFunc(leaf string) SeparatorFunc {
	v, ok := m.data[":"+leaf]
	if !ok {
		return nil
	}
	return func(n *Node, _ *Context) error { return applyValue(n, v) }
}

func (m *DataModel) Scope(name string) (Model, bool) {
	sub, ok := m.data[name].(map[string]any)
	if !ok {
		return nil, false
	}
	return NewDataModel(sub), true
}

func (m *DataModel) PrerenderVersion() (bool, string) {
	v, ok := m.data["#version"]
	if !ok {
		return true, ""
	}
	return false, fmt.Sprint(v)
}

func applyValue(n *Node, v any) error {
	switch v := v.(type) {
	case nil:
	case bool:
		if !v {
			n.Remove()
		}
	case string:
		n.SetContent(v)
	case int, int64, uint64, float64:
		n.SetContent(fmt.Sprint(v))
	case []any:
		n.Repeat(func(c *Node, item any, _ *Context) error {
			return applyValue(c, item)
		}, v)
	case map[string]any:
		return applyMap(n, v)
	default:
		n.SetContent(fmt.Sprint(v))
	}
	return nil
}

func applyMap(n *Node, m map[string]any) error {
	nested := make(map[string]any)
	for k, v := range m {
		switch {
		case strings.HasPrefix(k, "@"):
			name := k[1:]
			switch v := v.(type) {
			case bool:
				if v {
					n.SetFlag(name)
				} else {
					n.DelAttr(name)
				}
			case nil:
				n.DelAttr(name)
			default:
				n.SetAttr(name, fmt.Sprint(v))
			}
		case k == "#text":
			n.SetContent(fmt.Sprint(v))
		case k == "#raw":
			n.SetRawContent(fmt.Sprint(v))
		case k == "#hidden":
			hidden, _ := v.(bool)
			n.SetHidden(hidden)
		case k == "#remove":
			if remove, _ := v.(bool); remove {
				n.Remove()
			}
		default:
			nested[k] = v
		}
	}
	if len(nested) > 0 {
		n.UseModel(NewDataModel(nested))
	}
	return nil
}
