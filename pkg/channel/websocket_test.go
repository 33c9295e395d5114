package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialTestChannel(t *testing.T) (*WebSocketChannel, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverSide := make(chan *WebSocketChannel, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverSide <- NewWebSocket(conn, nil)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case ch := <-serverSide:
		return ch, client
	case <-time.After(time.Second):
		t.Fatal("server side never connected")
		return nil, nil
	}
}

func TestReadAudioSkipsTextFrames(t *testing.T) {
	ch, client := dialTestChannel(t)

	if err := client.WriteMessage(websocket.TextMessage, []byte("ignore me")); err != nil {
		t.Fatalf("write text: %v", err)
	}
	audio := []byte{0x01, 0x02, 0x03}
	if err := client.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	got, err := ch.ReadAudio()
	if err != nil {
		t.Fatalf("ReadAudio: %v", err)
	}
	if len(got) != len(audio) || got[0] != 0x01 {
		t.Fatalf("got %v, want the binary frame", got)
	}
}

func TestSendDeliversJSON(t *testing.T) {
	ch, client := dialTestChannel(t)

	left := 42.0
	if err := ch.Send(Message{Type: TypeAIResponse, Text: "hello", ReadingTime: 2.5, TimeLeft: &left}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != TypeAIResponse || msg.Text != "hello" || msg.TimeLeft == nil || *msg.TimeLeft != 42.0 {
		t.Fatalf("message = %+v", msg)
	}
}

func TestCloseWithCodeReachesClient(t *testing.T) {
	ch, client := dialTestChannel(t)

	if err := ch.CloseWithCode(CloseNotFound, "interview not found"); err != nil {
		t.Fatalf("CloseWithCode: %v", err)
	}

	_, _, err := client.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("err = %v, want close error", err)
	}
	if closeErr.Code != CloseNotFound {
		t.Fatalf("close code = %d, want %d", closeErr.Code, CloseNotFound)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ch, _ := dialTestChannel(t)
	if err := ch.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
