package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

// GenAIDialer opens the channel through the Gen AI SDK's live client.
type GenAIDialer struct {
	Client *genai.Client
	Logger *slog.Logger
}

func (d *GenAIDialer) Dial(ctx context.Context, setup Setup) (Conn, error) {
	if d.Client == nil {
		return nil, errors.New("genai client is not configured")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		Tools:              genaiTools(setup.Tools),
	}
	if setup.Instruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: setup.Instruction}}}
	}
	if setup.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: setup.Voice},
			},
		}
	}
	sess, err := d.Client.Live.Connect(ctx, setup.Model, cfg)
	if err != nil {
		return nil, fmt.Errorf("live connect: %w", err)
	}

	// Connect returns once the setup frame is written; the channel is open when
	// the server acknowledges it.
	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	err = awaitSetupComplete(sess)
	if !stop() || err != nil {
		_ = sess.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return &genaiConn{sess: sess, logger: logger}, nil
}

func awaitSetupComplete(sess *genai.Session) error {
	for {
		msg, err := sess.Receive()
		if err != nil {
			return fmt.Errorf("await setupComplete: %w", err)
		}
		if msg != nil && msg.SetupComplete != nil {
			return nil
		}
	}
}

func genaiTools(tools []types.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  genaiSchema(t.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func genaiSchema(s *types.JSONSchema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			prop := prop
			out.Properties[name] = genaiSchema(&prop)
		}
	}
	if s.Items != nil {
		out.Items = genaiSchema(s.Items)
	}
	return out
}

type genaiConn struct {
	sess   *genai.Session
	logger *slog.Logger

	closeOnce sync.Once
}

func decodeBlob(b types.Blob) (*genai.Blob, error) {
	data, err := base64.StdEncoding.DecodeString(b.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", b.MIMEType, err)
	}
	return &genai.Blob{MIMEType: b.MIMEType, Data: data}, nil
}

func (c *genaiConn) SendAudio(b types.Blob) error {
	blob, err := decodeBlob(b)
	if err != nil {
		return err
	}
	return c.sess.SendRealtimeInput(genai.LiveRealtimeInput{Audio: blob})
}

func (c *genaiConn) SendFrame(b types.Blob) error {
	blob, err := decodeBlob(b)
	if err != nil {
		return err
	}
	return c.sess.SendRealtimeInput(genai.LiveRealtimeInput{Video: blob})
}

func (c *genaiConn) SendToolResponses(responses []types.ToolResponse) error {
	out := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		out = append(out, &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return c.sess.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: out})
}

func (c *genaiConn) Receive() (Message, error) {
	for {
		resp, err := c.sess.Receive()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Message{}, io.EOF
			}
			if undecodable(err) {
				// The frame was read in full; only its content is lost.
				c.logger.Warn("dropping malformed server message", "error", err)
				return Message{Dropped: 1}, nil
			}
			return Message{}, err
		}
		msg := messageFromGenAI(resp)
		if msg.empty() {
			continue
		}
		return msg, nil
	}
}

// undecodable reports whether err came from decoding a frame the SDK had already
// read, such as inline data that is not valid base64. The channel stays usable.
func undecodable(err error) bool {
	var (
		corrupt   base64.CorruptInputError
		syntax    *json.SyntaxError
		typeError *json.UnmarshalTypeError
	)
	return errors.As(err, &corrupt) || errors.As(err, &syntax) || errors.As(err, &typeError)
}

func (c *genaiConn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.sess.Close() })
	return err
}

func messageFromGenAI(resp *genai.LiveServerMessage) Message {
	var msg Message
	if resp == nil {
		return msg
	}
	if sc := resp.ServerContent; sc != nil {
		msg.Interrupted = sc.Interrupted
		msg.TurnComplete = sc.TurnComplete
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				if !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
					continue
				}
				msg.Audio = append(msg.Audio, part.InlineData.Data)
			}
		}
	}
	if tc := resp.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	if resp.GoAway != nil {
		msg.GoAway = true
	}
	return msg
}
