package challenge

import (
	"fmt"
	"strings"
)

// FlagSpec is a flag entry. Plain entries are static, case-sensitive flags
// written as a bare string.
type FlagSpec struct {
	Type    string
	Content string
	Data    any
}

// ParseFlag accepts either a string or a {type, content, data} mapping.
func ParseFlag(v any) (FlagSpec, error) {
	switch t := v.(type) {
	case string:
		return FlagSpec{Type: "static", Content: t}, nil
	case map[string]any:
		content, ok := t["content"].(string)
		if !ok {
			return FlagSpec{}, fmt.Errorf("flag is missing content")
		}
		f := FlagSpec{Type: "static", Content: content, Data: t["data"]}
		if typ, ok := t["type"].(string); ok && typ != "" {
			f.Type = typ
		}
		return f, nil
	}
	return FlagSpec{}, fmt.Errorf("unsupported flag definition %T", v)
}

// Payload returns the request body creating the flag for challengeID.
func (f FlagSpec) Payload(challengeID int) map[string]any {
	p := map[string]any{
		"content":      f.Content,
		"type":         f.Type,
		"challenge_id": challengeID,
	}
	if f.Data != nil {
		p["data"] = f.Data
	}
	return p
}

// Compact returns the shortest document form of the flag.
func (f FlagSpec) Compact() any {
	if f.Type == "static" && (f.Data == nil || f.Data == "") {
		return f.Content
	}
	return map[string]any{
		"content": strings.ReplaceAll(strings.TrimSpace(f.Content), "\r\n", "\n"),
		"type":    f.Type,
		"data":    f.Data,
	}
}

// HintSpec is a hint entry. Hints written as a bare string are free.
type HintSpec struct {
	Content string
	Cost    int
}

// ParseHint accepts either a string or a {content, cost} mapping.
func ParseHint(v any) (HintSpec, error) {
	switch t := v.(type) {
	case string:
		return HintSpec{Content: t}, nil
	case map[string]any:
		content, ok := t["content"].(string)
		if !ok {
			return HintSpec{}, fmt.Errorf("hint is missing content")
		}
		h := HintSpec{Content: content}
		if c, ok := t["cost"]; ok && c != nil {
			cost, ok := AsInt(c)
			if !ok {
				return HintSpec{}, fmt.Errorf("hint cost %v is not a number", c)
			}
			h.Cost = cost
		}
		return h, nil
	}
	return HintSpec{}, fmt.Errorf("unsupported hint definition %T", v)
}

func (h HintSpec) Payload(challengeID int) map[string]any {
	return map[string]any{
		"content":      h.Content,
		"cost":         h.Cost,
		"challenge_id": challengeID,
	}
}

// Compact returns the shortest document form of the hint.
func (h HintSpec) Compact() any {
	if h.Cost > 0 {
		return map[string]any{"content": h.Content, "cost": h.Cost}
	}
	return h.Content
}

// Requirement references another challenge by name or by remote id.
type Requirement struct {
	Name string
	ID   int
}

// ParseRequirement accepts a challenge name or a numeric id.
func ParseRequirement(v any) (Requirement, error) {
	switch t := v.(type) {
	case string:
		return Requirement{Name: t}, nil
	case int:
		return Requirement{ID: t}, nil
	}
	if id, ok := AsInt(v); ok {
		return Requirement{ID: id}, nil
	}
	return Requirement{}, fmt.Errorf("unsupported requirement %v", v)
}

// ByID reports whether the requirement is a numeric id.
func (r Requirement) ByID() bool { return r.Name == "" }

func (r Requirement) String() string {
	if r.ByID() {
		return fmt.Sprintf("#%d", r.ID)
	}
	return r.Name
}
