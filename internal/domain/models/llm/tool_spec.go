package llm

// ToolSpec is the provider-facing declaration of a registered tool.
// Parameters is a JSON schema object:
//
//	{
//	  "type": "object",
//	  "properties": {...},
//	  "required": [...]
//	}
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Properties returns the schema's property map, or nil.
func (s ToolSpec) Properties() map[string]interface{} {
	props, _ := s.Parameters["properties"].(map[string]interface{})
	return props
}

// Required returns the schema's required property names.
// Accepts both []string and []interface{} since schemas may come from JSON.
func (s ToolSpec) Required() []string {
	switch req := s.Parameters["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if name, ok := r.(string); ok {
				out = append(out, name)
			}
		}
		return out
	default:
		return nil
	}
}
