package tools

import "encoding/json"

// Property 描述一个 JSON Schema 属性。
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// ObjectSchema 构造 object 类型的参数 Schema。
func ObjectSchema(props map[string]Property, required ...string) json.RawMessage {
	if props == nil {
		props = map[string]Property{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	b, _ := json.Marshal(schema)
	return b
}
