package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebsocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":       "ws://localhost:8080/v1/ws",
		"https://bots.example.com/":   "wss://bots.example.com/v1/ws",
		"http://10.0.0.1:9000/prefix": "ws://10.0.0.1:9000/prefix/v1/ws",
	}
	for in, want := range cases {
		got, err := websocketURL(in)
		if err != nil || got != want {
			t.Fatalf("websocketURL(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestUpload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case r.URL.Path == "/v1/worlds/pit/bots" && string(body) == "fw":
			rw.WriteHeader(http.StatusCreated)
			_, _ = rw.Write([]byte(`{"type":"BOT_CREATED","protocol_version":"1.0","world_id":"pit","bot_id":"0000-0000-0000-0001"}`))
		default:
			rw.WriteHeader(http.StatusTooManyRequests)
			_, _ = rw.Write([]byte(`{"type":"ERROR","protocol_version":"1.0","code":"E_RATE_LIMIT","message":"too many uploads"}`))
		}
	}))
	defer ts.Close()

	created, err := upload(ts.URL, "pit", []byte("fw"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if created.WorldID != "pit" || created.BotID != "0000-0000-0000-0001" {
		t.Fatalf("created=%+v", created)
	}

	_, err = upload(ts.URL, "", []byte("fw"))
	if err == nil || !strings.Contains(err.Error(), "E_RATE_LIMIT") {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}
