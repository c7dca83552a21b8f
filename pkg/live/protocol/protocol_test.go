package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

func TestNewSetup_AudioModalityInstructionAndOneTool(t *testing.T) {
	tool := types.NewFunctionTool("setPoseIndex", "move", &types.JSONSchema{
		Type:       "object",
		Properties: map[string]types.JSONSchema{"index": {Type: "integer"}},
		Required:   []string{"index"},
	})
	frame := NewSetup("gemini-live", "You are a yoga guide.", "Zephyr", []types.Tool{tool})

	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	setup := raw["setup"].(map[string]any)
	if setup["model"] != "models/gemini-live" {
		t.Fatalf("model=%v", setup["model"])
	}
	gen := setup["generationConfig"].(map[string]any)
	if mods := gen["responseModalities"].([]any); len(mods) != 1 || mods[0] != "AUDIO" {
		t.Fatalf("modalities=%v", mods)
	}
	if !strings.Contains(string(data), `"voiceName":"Zephyr"`) {
		t.Fatalf("voice missing: %s", data)
	}
	tools := setup["tools"].([]any)
	decls := tools[0].(map[string]any)["functionDeclarations"].([]any)
	if len(tools) != 1 || len(decls) != 1 {
		t.Fatalf("tools=%v", tools)
	}
	params := decls[0].(map[string]any)["parameters"].(map[string]any)
	if params["type"] != "OBJECT" {
		t.Fatalf("schema type=%v", params["type"])
	}
	if params["properties"].(map[string]any)["index"].(map[string]any)["type"] != "INTEGER" {
		t.Fatalf("index type wrong: %v", params)
	}
}

func TestDecodeServerMessage(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, m ServerMessage)
	}{
		{
			name:  "setup complete",
			frame: `{"setupComplete":{}}`,
			check: func(t *testing.T, m ServerMessage) {
				if m.SetupComplete == nil {
					t.Fatalf("setupComplete not set")
				}
			},
		},
		{
			name:  "audio",
			frame: `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAA="}}]}}}`,
			check: func(t *testing.T, m ServerMessage) {
				if m.ServerContent == nil || m.ServerContent.ModelTurn.Parts[0].InlineData.Data != "AAA=" {
					t.Fatalf("audio part missing: %+v", m.ServerContent)
				}
			},
		},
		{
			name:  "interrupted",
			frame: `{"serverContent":{"interrupted":true}}`,
			check: func(t *testing.T, m ServerMessage) {
				if !m.ServerContent.Interrupted {
					t.Fatalf("interrupted not set")
				}
			},
		},
		{
			name:  "tool call",
			frame: `{"toolCall":{"functionCalls":[{"id":"c1","name":"setPoseIndex","args":{"index":2}}]}}`,
			check: func(t *testing.T, m ServerMessage) {
				fc := m.ToolCall.FunctionCalls[0]
				if fc.ID != "c1" || fc.Args["index"] != float64(2) {
					t.Fatalf("call=%+v", fc)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeServerMessage([]byte(tt.frame))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			tt.check(t, m)
		})
	}
}

func TestDecodeServerMessage_Errors(t *testing.T) {
	tests := []struct {
		frame string
		code  string
	}{
		{frame: `not json`, code: "bad_frame"},
		{frame: `{"usageMetadata":{}}`, code: "unsupported"},
		{frame: `{"toolCall":{"functionCalls":[{"id":"x"}]}}`, code: "bad_frame"},
	}
	for _, tt := range tests {
		_, err := DecodeServerMessage([]byte(tt.frame))
		var de *DecodeError
		if !errors.As(err, &de) || de.Code != tt.code {
			t.Fatalf("frame %s: err=%v, want code %s", tt.frame, err, tt.code)
		}
	}
}

func TestNewToolResponseAndMedia(t *testing.T) {
	frame := NewToolResponse([]types.ToolResponse{{ID: "c1", Name: "setPoseIndex", Response: map[string]any{"result": "OK, pose updated."}}})
	data, _ := json.Marshal(frame)
	want := `{"toolResponse":{"functionResponses":[{"id":"c1","name":"setPoseIndex","response":{"result":"OK, pose updated."}}]}}`
	if string(data) != want {
		t.Fatalf("got %s\nwant %s", data, want)
	}

	audio, _ := json.Marshal(NewAudioInput(types.Blob{MIMEType: types.MIMEAudioPCM16k, Data: "AA=="}))
	if string(audio) != `{"realtimeInput":{"audio":{"mimeType":"audio/pcm;rate=16000","data":"AA=="}}}` {
		t.Fatalf("audio frame=%s", audio)
	}
	video, _ := json.Marshal(NewVideoInput(types.Blob{MIMEType: types.MIMEImageJPEG, Data: "/9j="}))
	if !strings.Contains(string(video), `"video":{"mimeType":"image/jpeg"`) {
		t.Fatalf("video frame=%s", video)
	}
}
