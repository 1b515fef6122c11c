package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"kartoffels.dev/internal/protocol"
)

func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "server base url")
		worldID  = flag.String("world", "", "world id (default: the server's default world)")
		firmware = flag.String("firmware", "", "firmware file to upload (optional)")
		follow   = flag.String("follow", "", "bot id to follow instead of uploading")
		events   = flag.Bool("events", true, "also print world events")
		name     = flag.String("name", "bot", "client name")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	botID := strings.TrimSpace(*follow)
	if *firmware != "" {
		fw, err := os.ReadFile(*firmware)
		if err != nil {
			logger.Fatalf("read firmware: %v", err)
		}
		created, err := upload(*server, *worldID, fw)
		if err != nil {
			logger.Fatalf("upload: %v", err)
		}
		logger.Printf("BOT_CREATED world=%s bot=%s", created.WorldID, created.BotID)
		botID = created.BotID
		*worldID = created.WorldID
	}

	wsURL, err := websocketURL(*server)
	if err != nil {
		logger.Fatalf("server url: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		WorldID:         *worldID,
		FollowBot:       botID,
		Events:          *events,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	var lastState string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s world=%s worlds=%d events=%v", w.SessionID, w.WorldID, len(w.WorldManifest), w.Events)

		case protocol.TypeUpdate:
			var u protocol.UpdateMsg
			if err := json.Unmarshal(msg, &u); err != nil {
				continue
			}
			if state := describeBot(u.Bot); state != lastState {
				logger.Printf("tick=%d alive=%d queued=%d %s", u.Tick, len(u.Alive), len(u.Queued), state)
				lastState = state
			}

		case protocol.TypeEvent:
			var e protocol.EventMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			data, _ := json.Marshal(e.Data)
			logger.Printf("EVENT tick=%d %s %s", e.Tick, e.Event, data)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			logger.Printf("ERROR %s: %s", e.Code, e.Message)
		}
	}
}

func describeBot(b *protocol.BotObs) string {
	if b == nil {
		return "bot=-"
	}
	switch b.State {
	case "alive":
		if b.Pos != nil {
			return fmt.Sprintf("bot=%s alive at %v facing %s", b.ID, *b.Pos, b.Dir)
		}
		return fmt.Sprintf("bot=%s alive", b.ID)
	case "queued":
		return fmt.Sprintf("bot=%s queued place=%d", b.ID, b.Place)
	default:
		return fmt.Sprintf("bot=%s %s %s", b.ID, b.State, b.Reason)
	}
}

func upload(server, worldID string, firmware []byte) (protocol.BotCreatedMsg, error) {
	var created protocol.BotCreatedMsg
	endpoint := strings.TrimSuffix(server, "/") + "/v1/bots"
	if worldID != "" {
		endpoint = strings.TrimSuffix(server, "/") + "/v1/worlds/" + url.PathEscape(worldID) + "/bots"
	}
	client := &http.Client{Timeout: 10 * time.Second}
	res, err := client.Post(endpoint, "application/octet-stream", bytes.NewReader(firmware))
	if err != nil {
		return created, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return created, err
	}
	if res.StatusCode != http.StatusCreated {
		var e protocol.ErrorMsg
		if err := json.Unmarshal(body, &e); err == nil && e.Code != "" {
			return created, fmt.Errorf("%s: %s", e.Code, e.Message)
		}
		return created, fmt.Errorf("status %d", res.StatusCode)
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return created, err
	}
	return created, nil
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/ws"
	return u.String(), nil
}
