// Package protocol defines the JSON frames of the BidiGenerateContent live channel.
package protocol

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

const ModalityAudio = "AUDIO"

// DecodeError reports a server frame that could not be understood.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badFrame(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_frame", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty"`
	Required    []string          `json:"required,omitempty"`
}

type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

type Setup struct {
	Model             string            `json:"model"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Tools             []Tool            `json:"tools,omitempty"`
}

// ClientSetup is the first frame on a new connection.
type ClientSetup struct {
	Setup Setup `json:"setup"`
}

type RealtimeInput struct {
	Audio *Blob `json:"audio,omitempty"`
	Video *Blob `json:"video,omitempty"`
}

type ClientRealtimeInput struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

type ClientToolResponse struct {
	ToolResponse ToolResponse `json:"toolResponse"`
}

type SetupComplete struct{}

type ServerContent struct {
	ModelTurn          *Content `json:"modelTurn,omitempty"`
	TurnComplete       bool     `json:"turnComplete,omitempty"`
	GenerationComplete bool     `json:"generationComplete,omitempty"`
	Interrupted        bool     `json:"interrupted,omitempty"`
}

type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

type ToolCallCancellation struct {
	IDs []string `json:"ids"`
}

type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// ServerMessage is a union; exactly one field is set on a well-formed frame.
type ServerMessage struct {
	SetupComplete        *SetupComplete        `json:"setupComplete,omitempty"`
	ServerContent        *ServerContent        `json:"serverContent,omitempty"`
	ToolCall             *ToolCall             `json:"toolCall,omitempty"`
	ToolCallCancellation *ToolCallCancellation `json:"toolCallCancellation,omitempty"`
	GoAway               *GoAway               `json:"goAway,omitempty"`
}

// DecodeServerMessage parses one server frame. Frames with no recognised field
// are reported as unsupported so callers can log and ignore them.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, badFrame("invalid json frame", "")
	}
	if msg.SetupComplete == nil && msg.ServerContent == nil && msg.ToolCall == nil &&
		msg.ToolCallCancellation == nil && msg.GoAway == nil {
		var keys map[string]json.RawMessage
		_ = json.Unmarshal(data, &keys)
		names := make([]string, 0, len(keys))
		for k := range keys {
			names = append(names, k)
		}
		sort.Strings(names)
		return ServerMessage{}, unsupported("unrecognised server frame", strings.Join(names, ","))
	}
	if msg.ToolCall != nil {
		for i, fc := range msg.ToolCall.FunctionCalls {
			if strings.TrimSpace(fc.Name) == "" {
				return ServerMessage{}, badFrame("function call without name", fmt.Sprintf("toolCall.functionCalls[%d].name", i))
			}
		}
	}
	return msg, nil
}

// NewSetup builds the handshake frame for an audio-only response session.
func NewSetup(model, instruction, voice string, tools []types.Tool) ClientSetup {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := Setup{
		Model:            model,
		GenerationConfig: &GenerationConfig{ResponseModalities: []string{ModalityAudio}},
	}
	if voice != "" {
		setup.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: &VoiceConfig{PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: voice}},
		}
	}
	if instruction != "" {
		setup.SystemInstruction = &Content{Parts: []Part{{Text: instruction}}}
	}
	if len(tools) > 0 {
		decls := make([]FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convertSchema(t.InputSchema),
			})
		}
		setup.Tools = []Tool{{FunctionDeclarations: decls}}
	}
	return ClientSetup{Setup: setup}
}

func convertSchema(s *types.JSONSchema) *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{
		Type:        strings.ToUpper(s.Type),
		Description: s.Description,
		Required:    s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]Schema, len(s.Properties))
		for name, prop := range s.Properties {
			prop := prop
			out.Properties[name] = *convertSchema(&prop)
		}
	}
	return out
}

// NewToolResponse wraps session responses in a toolResponse frame.
func NewToolResponse(responses []types.ToolResponse) ClientToolResponse {
	out := make([]FunctionResponse, 0, len(responses))
	for _, r := range responses {
		out = append(out, FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return ClientToolResponse{ToolResponse: ToolResponse{FunctionResponses: out}}
}

// NewAudioInput wraps an encoded audio chunk.
func NewAudioInput(b types.Blob) ClientRealtimeInput {
	return ClientRealtimeInput{RealtimeInput: RealtimeInput{Audio: &Blob{MIMEType: b.MIMEType, Data: b.Data}}}
}

// NewVideoInput wraps an encoded frame.
func NewVideoInput(b types.Blob) ClientRealtimeInput {
	return ClientRealtimeInput{RealtimeInput: RealtimeInput{Video: &Blob{MIMEType: b.MIMEType, Data: b.Data}}}
}
