package llmutil

import (
	"fmt"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

func TestParseReply_StrictJSON(t *testing.T) {
	raw := `{"response":"AAPL is up 0.69% today.","actions":[{"type":"click","selector":"[data-name='time-intervals'] button","label":"1H","description":"Switch to 1H"}]}`

	reply := ParseReply(raw)

	assert.Equal(t, "AAPL is up 0.69% today.", reply.Response)
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, schemas.Action{
		Type:        schemas.ActionClick,
		Selector:    "[data-name='time-intervals'] button",
		Label:       "1H",
		Description: "Switch to 1H",
		Options:     map[string]any{},
	}, reply.Actions[0])
}

func TestParseReply_MalformedOutputFallsBack(t *testing.T) {
	raw := "Here's the answer: 42% up today"

	reply := ParseReply(raw)

	assert.Equal(t, schemas.ModelReply{Response: raw, Actions: []schemas.Action{}}, reply)
}

func TestParseReply_MarkdownFence(t *testing.T) {
	raw := "Sure!\n```json\n{\"response\": \"Switching now.\", \"actions\": [{\"type\": \"navigate\", \"selector\": \"a.news\"}]}\n```\nAnything else?"

	reply := ParseReply(raw)

	assert.Equal(t, "Switching now.", reply.Response)
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, schemas.ActionNavigate, reply.Actions[0].Type)
	assert.Equal(t, schemas.DefaultActionLabel, reply.Actions[0].Label)
}

func TestParseReply_SkipsNonReplyObjectsAndBracesInStrings(t *testing.T) {
	raw := `Use {curly} notation, or {"unrelated": true}. Result: {"response": "Range is {low} to {high}", "actions": []} done.`

	reply := ParseReply(raw)

	assert.Equal(t, "Range is {low} to {high}", reply.Response)
	assert.Empty(t, reply.Actions)
	assert.NotNil(t, reply.Actions)
}

func TestParseReply_ResponseDefaultsToRawText(t *testing.T) {
	testCases := map[string]string{
		"missing":    `{"actions": []}`,
		"empty":      `{"response": "", "actions": []}`,
		"non-string": `{"response": 42, "actions": []}`,
	}
	for name, raw := range testCases {
		t.Run(name, func(t *testing.T) {
			reply := ParseReply(raw)
			assert.Equal(t, raw, reply.Response)
		})
	}
}

func TestParseReply_ActionsNotAList(t *testing.T) {
	reply := ParseReply(`{"response": "ok", "actions": {"type": "click"}}`)
	assert.Equal(t, "ok", reply.Response)
	assert.Empty(t, reply.Actions)
}

// The embedded reply must survive arbitrary surrounding prose unchanged.
func TestParseReply_RoundTripEmbedded(t *testing.T) {
	want := schemas.ModelReply{
		Response: `TSLA is the best performer at +3.42%. Say "go" to open it.`,
		Actions: []schemas.Action{
			{Type: schemas.ActionClick, Selector: ".item-symbol-TSLA", Label: "Open TSLA", Description: "Click on TSLA (best performer)", Options: map[string]any{}},
			{Type: schemas.ActionTypeText, Selector: "input[data-role='search']", Value: "AAPL", Label: "Search AAPL", Description: "Search for AAPL", Options: map[string]any{}},
			{Type: schemas.ActionScroll, Selector: "#news", Label: "News", Description: "Scroll to news", Options: map[string]any{"behavior": "smooth"}},
		},
	}
	encoded, err := json.MarshalToString(want)
	require.NoError(t, err)

	wrappers := []string{
		"%s",
		"Here you go:\n%s",
		"%s\nLet me know if you need more.",
		"Prefix with a stray } and { brace.\n%s\ntrailing",
		"```json\n%s\n```",
	}
	for _, w := range wrappers {
		got := ParseReply(fmt.Sprintf(w, encoded))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("wrapper %q mismatch (-want +got):\n%s", w, diff)
		}
	}
}

func TestValidateActions_FiltersUnknownTypes(t *testing.T) {
	raw := `[
		{"type": "click", "selector": "#a", "label": "A"},
		{"type": "hover", "selector": "#b", "label": "B"},
		{"type": "type", "selector": "#c", "value": "AAPL", "description": "Search"},
		{"type": "navigate", "selector": "a.news"},
		{"type": "drag", "selector": "#d"},
		{"type": "scroll", "selector": "#e"},
		{"selector": "#f", "label": "no type"},
		{"type": "highlight", "selector": ".price"},
		{"type": "CLICK", "selector": "#g"},
		{"type": "select", "selector": "select#tf", "value": "1h"}
	]`
	var candidates []any
	require.NoError(t, json.UnmarshalFromString(raw, &candidates))
	require.Len(t, candidates, 10)

	actions := ValidateActions(candidates)

	require.Len(t, actions, 6)
	for _, a := range actions {
		assert.True(t, a.Type.Valid())
		assert.NotEmpty(t, a.Label)
		assert.NotNil(t, a.Options)
	}
	assert.Equal(t, "Search", actions[1].Label, "label falls back to description")
	assert.Equal(t, "AAPL", actions[1].Value)
	assert.Equal(t, schemas.DefaultActionLabel, actions[2].Label)
	assert.Equal(t, "", actions[2].Description)
}

func TestValidateActions_NormalizesFields(t *testing.T) {
	actions := ValidateActions([]any{
		"not an object",
		nil,
		map[string]any{"type": "extract", "label": "Grab stats", "value": 42.5, "options": "bogus"},
	})

	require.Len(t, actions, 1)
	assert.Equal(t, schemas.Action{
		Type:        schemas.ActionExtract,
		Selector:    "",
		Value:       "42.5",
		Label:       "Grab stats",
		Description: "Grab stats",
		Options:     map[string]any{},
	}, actions[0])

	assert.Empty(t, ValidateActions(nil))
	assert.NotNil(t, ValidateActions("nope"))
}

func TestValidateAction(t *testing.T) {
	a, ok := ValidateAction(schemas.Action{Type: schemas.ActionHighlight, Selector: ".price", Description: "Highlight price"})
	require.True(t, ok)
	assert.Equal(t, "Highlight price", a.Label)

	_, ok = ValidateAction(schemas.Action{Type: "hover", Selector: ".price"})
	assert.False(t, ok)
}

func TestExtractJSONObject(t *testing.T) {
	obj, ok := ExtractJSONObject(`noise {"a": "}{", "b": {"c": 1}} tail {"d": 2}`, nil)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": "}{", "b": map[string]any{"c": float64(1)}}, obj)

	obj, ok = ExtractJSONObject(`noise {"a": 1} tail {"d": 2}`, func(o map[string]any) bool { return o["d"] != nil })
	require.True(t, ok)
	assert.Equal(t, map[string]any{"d": float64(2)}, obj)

	_, ok = ExtractJSONObject("no braces here", nil)
	assert.False(t, ok)

	_, ok = ExtractJSONObject(`{"unterminated": "x"`, nil)
	assert.False(t, ok)
}

func TestParseReply_EmbeddedAfterManyBraces(t *testing.T) {
	prose := strings.Repeat("set {x} ", 200)
	raw := prose + `{"response": "found it", "actions": [{"type": "scroll", "selector": "#news"}]} trailing {`

	reply := ParseReply(raw)

	assert.Equal(t, "found it", reply.Response)
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, schemas.ActionScroll, reply.Actions[0].Type)
}

// FuzzParseReply checks that arbitrary completions never panic and always produce
// a well-formed reply.
func FuzzParseReply(f *testing.F) {
	f.Add([]byte(`{"response":"ok","actions":[{"type":"click","selector":"#a"}]}`))
	f.Add([]byte("Here's the answer: 42% up today"))
	f.Add([]byte("```json\n{\"response\": \"x\"}\n```"))
	f.Add([]byte(`{{{"response":"\"}"`))

	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)
		raw, err := fuzzConsumer.GetString()
		if err != nil {
			raw = string(data)
		}

		reply := ParseReply(raw)

		require.NotNil(t, reply.Actions)
		if strings.TrimSpace(raw) != "" {
			assert.NotEmpty(t, reply.Response)
		}
		for _, a := range reply.Actions {
			assert.True(t, a.Type.Valid())
			assert.NotEmpty(t, a.Label)
			assert.NotNil(t, a.Options)
		}
	})
}
