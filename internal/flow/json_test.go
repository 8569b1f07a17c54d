package flow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authoringDoc = `{
	"id": "flow-res",
	"name": "Tischreservierung",
	"status": "active",
	"nodes": [
		{
			"id": "greet",
			"text": "Willkommen!",
			"inputMode": "buttons",
			"quickReplies": [
				{"id": "qr-yes", "label": "Ja, reservieren", "payload": "reserve_yes", "targetNodeId": "ask-date"}
			]
		},
		{
			"id": "ask-date",
			"text": "Für welches Datum?",
			"inputMode": "free_text",
			"collectsField": "date",
			"placeholder": "15.03.2025"
		}
	],
	"edges": [
		{"id": "e1", "source": "ask-date", "target": "greet"}
	],
	"triggers": [
		{"id": "t1", "keywords": ["reservieren"], "matchType": "contains", "startNodeId": "greet"}
	]
}`

func TestDecode(t *testing.T) {
	g, err := Decode("acct-1", []byte(authoringDoc))
	require.NoError(t, err)

	assert.Equal(t, "flow-res", g.ID)
	assert.Equal(t, "acct-1", g.AccountID)
	assert.Equal(t, StatusActive, g.Status)
	require.Len(t, g.Nodes(), 2)

	greet, ok := g.Node("greet")
	require.True(t, ok)
	assert.Equal(t, InputButtons, greet.InputMode)
	require.Len(t, greet.QuickReplies, 1)
	assert.Equal(t, "ask-date", greet.QuickReplies[0].TargetNodeID)

	askDate, ok := g.Node("ask-date")
	require.True(t, ok)
	assert.Equal(t, "date", askDate.CollectsField)

	require.Len(t, g.Triggers(), 1)
	assert.Equal(t, MatchContains, g.Triggers()[0].MatchType)
}

func TestRoundTrip(t *testing.T) {
	g, err := Decode("acct-1", []byte(authoringDoc))
	require.NoError(t, err)

	encoded, err := Encode(g)
	require.NoError(t, err)

	again, err := Decode("acct-1", encoded)
	require.NoError(t, err)

	reencoded, err := Encode(again)
	require.NoError(t, err)
	assert.JSONEq(t, string(encoded), string(reencoded))

	// Semantic equality against the original document.
	var want, got map[string]any
	require.NoError(t, json.Unmarshal([]byte(authoringDoc), &want))
	require.NoError(t, json.Unmarshal(encoded, &got))
	assert.Equal(t, want, got)
}

func TestDecodeDropsFieldsForeignToVariant(t *testing.T) {
	doc := `{
		"id": "f", "name": "n", "status": "draft",
		"nodes": [
			{"id": "a", "inputMode": "free_text", "collectsField": "date",
			 "quickReplies": [{"id": "q", "label": "l", "payload": "p"}]},
			{"id": "b", "inputMode": "buttons", "collectsField": "time",
			 "quickReplies": [{"id": "q2", "label": "l", "payload": "p"}]}
		],
		"edges": [], "triggers": []
	}`
	g, err := Decode("acct", []byte(doc))
	require.NoError(t, err)

	freeText, _ := g.Node("a")
	assert.Empty(t, freeText.QuickReplies, "quick replies are not a free-text concern")
	assert.Equal(t, "date", freeText.CollectsField)

	buttons, _ := g.Node("b")
	assert.Empty(t, buttons.CollectsField, "collectsField is not a buttons concern")
	assert.Len(t, buttons.QuickReplies, 1)
}

func TestDecodeIgnoresUnknownKeys(t *testing.T) {
	doc := `{"id": "f", "name": "n", "status": "draft", "nodes": [
		{"id": "a", "inputMode": "free_text", "data": {"legacy": true}, "color": "red"}
	], "edges": [], "triggers": []}`
	g, err := Decode("acct", []byte(doc))
	require.NoError(t, err)
	_, ok := g.Node("a")
	assert.True(t, ok)
}

func TestDecodeRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing id", `{"name": "n", "status": "draft", "nodes": [], "edges": [], "triggers": []}`},
		{"bad status", `{"id": "f", "status": "published", "nodes": [], "edges": [], "triggers": []}`},
		{"bad input mode", `{"id": "f", "status": "draft", "nodes": [{"id": "a", "inputMode": "carousel"}], "edges": [], "triggers": []}`},
		{"bad match type", `{"id": "f", "status": "draft", "nodes": [], "edges": [], "triggers": [{"id": "t", "keywords": ["x"], "matchType": "regex"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("acct", []byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
