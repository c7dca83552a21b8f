package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const (
	badAudioFrame  = `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"%%%not-base64%%%"}}]}}}`
	goodAudioFrame = `{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAABAA=="}}]}}}`
)

func newTestGenAIClient(t *testing.T, baseURL string) *genai.Client {
	t.Helper()
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	require.NoError(t, err)
	return client
}

func TestGenAIDialer_MalformedAudioIsDropped(t *testing.T) {
	_, srv := newLiveServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte(badAudioFrame))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(goodAudioFrame))
	})
	ev := &events{}
	c := NewClient(&GenAIDialer{Client: newTestGenAIClient(t, wsURL(srv))}, nil)
	require.NoError(t, c.Connect(context.Background(), Setup{Model: "gemini-live"}, ev.callbacks()))

	require.Eventually(t, func() bool {
		_, _, _, msgs := ev.snapshot()
		return len(msgs) == 2
	}, 2*time.Second, 5*time.Millisecond)

	_, _, errs, msgs := ev.snapshot()
	require.Empty(t, errs)
	require.Equal(t, StatusConnected, c.Status())
	require.Equal(t, 1, msgs[0].Dropped)
	require.Empty(t, msgs[0].Audio)
	require.Equal(t, [][]byte{{0, 0, 1, 0}}, msgs[1].Audio)

	require.NoError(t, c.Close())
	c.Wait()
}

func TestWebSocketDialer_MalformedAudioIsCounted(t *testing.T) {
	_, srv := newLiveServer(t, func(ws *websocket.Conn) {
		_ = ws.WriteMessage(websocket.TextMessage, []byte(badAudioFrame))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(goodAudioFrame))
	})
	conn, err := (&WebSocketDialer{URL: wsURL(srv)}).Dial(context.Background(), Setup{Model: "m"})
	require.NoError(t, err)
	defer conn.Close()

	msg, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, 1, msg.Dropped)
	require.Empty(t, msg.Audio)

	msg, err = conn.Receive()
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0, 0, 1, 0}}, msg.Audio)
}

func TestUndecodable(t *testing.T) {
	var syntax *json.SyntaxError
	require.ErrorAs(t, json.Unmarshal([]byte("{"), &map[string]any{}), &syntax)

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"base64", fmt.Errorf("mapToStruct: %w", base64.CorruptInputError(0)), true},
		{"syntax", fmt.Errorf("invalid message format. Error %w", syntax), true},
		{"type", fmt.Errorf("mapToStruct: %w", &json.UnmarshalTypeError{Value: "number"}), true},
		{"eof", io.ErrUnexpectedEOF, false},
		{"close", &websocket.CloseError{Code: websocket.CloseInternalServerErr}, false},
		{"server error", errors.New("received error in response: {}"), false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, undecodable(tc.err), tc.name)
	}
}
