// Command client is a terminal chat client for manual testing against a
// running gateway.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/chatcore/pkg/logger"
	"github.com/mahaj/chatcore/pkg/model"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type apiClient struct {
	base  string
	token string
}

func (a *apiClient) call(method, path string, body any) (json.RawMessage, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, a.base+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%s %s: %s", method, path, strings.TrimSpace(string(raw)))
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%s %s: %s (%s)", method, path, out.Error.Message, out.Error.Code)
	}
	return out.Data, nil
}

func (a *apiClient) login(userID string) error {
	data, err := a.call(http.MethodPost, "/login", map[string]string{"user_id": userID})
	if err != nil {
		return err
	}
	var res struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return err
	}
	a.token = res.Token
	return nil
}

type incomingMessage struct {
	ID       int64  `json:"id,string"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

func emit(c *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.WriteJSON(model.Frame{Event: event, Data: data})
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	peer := flag.String("dm", "", "user id to chat with")
	flag.Parse()

	log := logger.Setup(os.Stderr, "warn")
	if *peer == "" {
		fmt.Fprintln(os.Stderr, "usage: client -user alice -dm bob")
		os.Exit(2)
	}

	api := &apiClient{base: *apiAddr}
	if err := api.login(*userID); err != nil {
		log.Error("login failed", slog.Any("error", err))
		os.Exit(1)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	q := u.Query()
	q.Set("token", api.token)
	u.RawQuery = q.Encode()

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Error("dial failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer c.Close()

	if err := emit(c, model.EventJoin, model.JoinPayload{UserID: *userID}); err != nil {
		log.Error("join failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Writes from the reader and the prompt goroutine go through here;
	// gorilla connections allow one concurrent writer.
	outbound := make(chan model.Frame, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			var f model.Frame
			if err := c.ReadJSON(&f); err != nil {
				log.Warn("read failed", slog.Any("error", err))
				return
			}
			switch f.Event {
			case model.EventNewMessage:
				var m incomingMessage
				if json.Unmarshal(f.Data, &m) != nil {
					continue
				}
				if m.SenderID == *userID {
					continue
				}
				fmt.Printf("\r[%d] %s: %s\n> ", m.ID, m.SenderID, m.Content)
				data, _ := json.Marshal(map[string]string{"messageId": fmt.Sprint(m.ID)})
				outbound <- model.Frame{Event: model.EventMessageDelivered, Data: data}
			case model.EventMessageStatus:
				var s model.StatusUpdate
				if json.Unmarshal(f.Data, &s) == nil {
					fmt.Printf("\r[%d] %s by %s\n> ", s.MessageID, s.Status, s.UserID)
				}
			case model.EventUserTyping:
				var n model.TypingNotice
				if json.Unmarshal(f.Data, &n) == nil {
					fmt.Printf("\r%s is typing...\n> ", n.SenderID)
				}
			case model.EventUserOnline, model.EventUserOffline:
				var o model.OnlineUser
				if json.Unmarshal(f.Data, &o) == nil {
					fmt.Printf("\r%s %s\n> ", o.UserID, strings.TrimPrefix(f.Event, "user-"))
				}
			case model.EventError:
				var e model.ErrorPayload
				if json.Unmarshal(f.Data, &e) == nil {
					fmt.Printf("\rerror: %s\n> ", e.Message)
				}
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			switch {
			case text == "":
			case text == "/quit":
				interrupt <- os.Interrupt
				return
			case text == "/typing":
				data, _ := json.Marshal(model.TypingPayload{ReceiverID: *peer, SenderName: *userID})
				outbound <- model.Frame{Event: model.EventTypingStart, Data: data}
			case strings.HasPrefix(text, "/seen "):
				data, _ := json.Marshal(map[string]string{"messageId": strings.TrimSpace(strings.TrimPrefix(text, "/seen "))})
				outbound <- model.Frame{Event: model.EventMessageSeen, Data: data}
			default:
				if _, err := api.call(http.MethodPost, "/messages/send/"+*peer, map[string]string{"message": text}); err != nil {
					fmt.Printf("send failed: %v\n", err)
				}
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case f := <-outbound:
			if err := c.WriteJSON(f); err != nil {
				log.Warn("write failed", slog.Any("error", err))
				return
			}
		case <-interrupt:
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
