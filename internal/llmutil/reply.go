package llmutil

import (
	"strconv"
	"strings"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

// ParseReply turns a raw model completion into a ModelReply. It never fails.
//
// The completion is tried, in order, as a bare JSON object, as an object inside a
// markdown fence, and as the first reply-shaped object embedded in surrounding text.
// When none of those yield an object, the whole text becomes the response and the
// action list is empty.
func ParseReply(raw string) schemas.ModelReply {
	trimmed := strings.TrimSpace(raw)

	if obj, ok := decodeObject(trimmed); ok {
		return buildReply(obj, raw)
	}

	if m := fencedObjectRegex.FindStringSubmatch(trimmed); len(m) > 1 {
		if obj, ok := decodeObject(m[1]); ok && replyShaped(obj) {
			return buildReply(obj, raw)
		}
	}

	if obj, ok := ExtractJSONObject(trimmed, replyShaped); ok {
		return buildReply(obj, raw)
	}

	return schemas.ModelReply{Response: raw, Actions: []schemas.Action{}}
}

func replyShaped(obj map[string]any) bool {
	_, hasResponse := obj["response"]
	_, hasActions := obj["actions"]
	return hasResponse || hasActions
}

func buildReply(obj map[string]any, raw string) schemas.ModelReply {
	response, _ := obj["response"].(string)
	if response == "" {
		response = raw
	}
	return schemas.ModelReply{
		Response: response,
		Actions:  ValidateActions(obj["actions"]),
	}
}

// ValidateActions filters candidate actions down to the recognized vocabulary and
// fills in defaults. Anything that is not a list yields an empty, non-nil slice.
//
//   - non-objects and unknown or missing types are dropped
//   - label falls back to description, then to DefaultActionLabel
//   - description falls back to label, then to ""
//   - selector defaults to "" and options to an empty map
func ValidateActions(candidates any) []schemas.Action {
	list, ok := candidates.([]any)
	if !ok {
		return []schemas.Action{}
	}

	actions := make([]schemas.Action, 0, len(list))
	for _, c := range list {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := m["type"].(string)
		actionType := schemas.ActionType(typ)
		if !actionType.Valid() {
			continue
		}

		label := stringField(m, "label")
		description := stringField(m, "description")
		if label == "" {
			label = description
		}
		if label == "" {
			label = schemas.DefaultActionLabel
		}
		if description == "" {
			description = stringField(m, "label")
		}

		options, _ := m["options"].(map[string]any)
		if options == nil {
			options = map[string]any{}
		}

		actions = append(actions, schemas.Action{
			Type:        actionType,
			Selector:    stringField(m, "selector"),
			Value:       scalarField(m, "value"),
			Label:       label,
			Description: description,
			Options:     options,
		})
	}
	return actions
}

// ValidateAction re-validates a single action that crossed a process boundary.
func ValidateAction(a schemas.Action) (schemas.Action, bool) {
	candidate := map[string]any{
		"type":        string(a.Type),
		"selector":    a.Selector,
		"value":       a.Value,
		"label":       a.Label,
		"description": a.Description,
	}
	if a.Options != nil {
		candidate["options"] = a.Options
	}
	out := ValidateActions([]any{candidate})
	if len(out) == 0 {
		return schemas.Action{}, false
	}
	return out[0], true
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// scalarField renders strings, numbers and booleans; anything else is dropped.
func scalarField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
