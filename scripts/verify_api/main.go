// Command verify_api runs a smoke test against a live API node: two users
// exchange a message and the receipts are read back.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/mahaj/chatcore/pkg/logger"
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type session struct {
	base  string
	token string
}

func (s *session) call(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, s.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var res apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, err)
	}
	if res.Error != nil {
		return fmt.Errorf("%s %s: %s (%s)", method, path, res.Error.Message, res.Error.Code)
	}
	if out != nil {
		return json.Unmarshal(res.Data, out)
	}
	return nil
}

func login(base, userID string) (*session, error) {
	s := &session{base: base}
	var res struct {
		Token string `json:"token"`
	}
	if err := s.call(http.MethodPost, "/login", map[string]string{"user_id": userID}, &res); err != nil {
		return nil, err
	}
	s.token = res.Token
	return s, nil
}

func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	flag.Parse()
	log := logger.Setup(os.Stdout, "info")

	if err := run(*apiAddr, log); err != nil {
		log.Error("verification failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("verification passed")
}

func run(base string, log *slog.Logger) error {
	alice, err := login(base, "verify_alice")
	if err != nil {
		return err
	}
	bob, err := login(base, "verify_bob")
	if err != nil {
		return err
	}

	var msg struct {
		ID     int64  `json:"id,string"`
		Status string `json:"status"`
	}
	if err := alice.call(http.MethodPost, "/messages/send/verify_bob", map[string]string{"message": "ping"}, &msg); err != nil {
		return err
	}
	log.Info("message sent", slog.Int64("id", msg.ID), slog.String("status", msg.Status))

	id := strconv.FormatInt(msg.ID, 10)
	if err := bob.call(http.MethodPost, "/messages/"+id+"/seen", nil, nil); err != nil {
		return err
	}

	var receipts struct {
		Seen    []string `json:"seen"`
		Pending []string `json:"pending"`
	}
	if err := alice.call(http.MethodGet, "/messages/"+id+"/receipts", nil, &receipts); err != nil {
		return err
	}
	log.Info("receipts", slog.Any("seen", receipts.Seen), slog.Any("pending", receipts.Pending))
	if len(receipts.Seen) != 1 || receipts.Seen[0] != "verify_bob" {
		return fmt.Errorf("expected verify_bob in seen, got %v", receipts.Seen)
	}

	var inbox []struct {
		ConversationID string `json:"conversation_id"`
		UnreadCount    int64  `json:"unread_count"`
	}
	if err := bob.call(http.MethodGet, "/conversations", nil, &inbox); err != nil {
		return err
	}
	log.Info("inbox", slog.Int("conversations", len(inbox)))
	return nil
}
