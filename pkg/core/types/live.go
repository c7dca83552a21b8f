package types

// MIME tags used on the live channel.
const (
	MIMEAudioPCM16k = "audio/pcm;rate=16000"
	MIMEAudioPCM24k = "audio/pcm;rate=24000"
	MIMEImageJPEG   = "image/jpeg"
)

// Blob is a media payload already encoded as base64 text.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResponse answers exactly one ToolCall, matched by ID and Name.
type ToolResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}
