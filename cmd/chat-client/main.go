// chat-client is a development client for exercising a running chatd node.
// It signs its own bearer token, mints a socket key, opens the chat socket,
// and turns stdin lines into CREATE frames for a fixed peer.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/clicktochat/chatd/internal/chat"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "base URL of the chatd node")
	user := flag.String("user", "", "user id to connect as")
	peer := flag.String("peer", "", "user id to send messages to")
	secret := flag.String("secret", os.Getenv("CHATD_JWT_SECRET"), "JWT secret shared with the node")
	issuer := flag.String("issuer", "clicktochat", "JWT issuer claim")
	audience := flag.String("audience", "clicktochat-users", "JWT audience claim")
	flag.Parse()

	if *user == "" || *peer == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: chat-client -user <id> -peer <id> [-server URL] [-secret ...]")
		os.Exit(1)
	}
	if err := run(*serverURL, *user, *peer, *secret, *issuer, *audience); err != nil {
		fmt.Fprintf(os.Stderr, "chat-client: %v\n", err)
		os.Exit(1)
	}
}

func run(serverURL, user, peer, secret, issuer, audience string) error {
	token, err := signToken(secret, issuer, audience, user)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	endpoint, err := mintKey(serverURL, token)
	if err != nil {
		return fmt.Errorf("mint socket key: %w", err)
	}

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + endpoint
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer ws.Close()
	fmt.Printf("connected as %s; type a line to message %s\n", user, peer)

	go printFrames(ws)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		frame := chat.Request{
			Type: chat.RequestCreate,
			Create: &chat.CreateMessageRequest{
				ReceiverID: peer,
				Body:       line,
			},
		}
		data, err := json.Marshal(frame)
		if err != nil {
			return fmt.Errorf("marshal frame: %w", err)
		}
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
	}
	return scanner.Err()
}

func signToken(secret, issuer, audience, user string) (string, error) {
	claims := jwt.MapClaims{
		"userId": user,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func mintKey(serverURL, token string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, serverURL+"/api/messages/authenticate", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authenticate returned %s", resp.Status)
	}

	var minted struct {
		Key             string `json:"key"`
		ConnectEndpoint string `json:"connectEndpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&minted); err != nil {
		return "", err
	}
	if minted.ConnectEndpoint == "" {
		return "", fmt.Errorf("no connect endpoint in response")
	}
	return minted.ConnectEndpoint, nil
}

func printFrames(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
			os.Exit(0)
		}
		var resp chat.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			fmt.Printf("<< %s\n", data)
			continue
		}
		switch resp.Type {
		case chat.ResponseCreateMessage, chat.ResponseUpdateMessage:
			fmt.Printf("<< [%s] %s: %s\n", resp.Type, resp.Message.SenderID, resp.Message.Body)
		case chat.ResponseUserTyping:
			fmt.Printf("<< %s is typing...\n", resp.SenderID)
		case chat.ResponseUserStopTyping:
			fmt.Printf("<< %s stopped typing\n", resp.SenderID)
		case chat.ResponseSeenMessages:
			fmt.Printf("<< %d message(s) seen\n", len(resp.MessagesSeen))
		case chat.ResponseError:
			fmt.Printf("<< error %s: %s\n", resp.Error.Code, resp.Error.Message)
		default:
			fmt.Printf("<< %s\n", data)
		}
	}
}
