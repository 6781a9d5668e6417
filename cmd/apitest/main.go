// Package main implements a CLI tool for exercising a running solchat server.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
)

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the solchat server")
	prompt := flag.String("prompt", "Hello, what can you do?", "The query to send")
	models := flag.String("models", "gpt-4o-mini", "Comma-separated models for the chat session")
	token := flag.String("token", "", "Bearer token (optional, a guest account is minted without one)")
	flag.Parse()

	client := &http.Client{}

	fmt.Println("🚀 solchat API Tester")
	fmt.Println("----------------------------")
	fmt.Printf("Server: %s\n", *baseURL)
	fmt.Printf("Models: %s\n", *models)
	fmt.Printf("Prompt: %s\n", *prompt)

	// Create a chat session. Without a token the server mints a guest
	// account and hands it back in the session cookie.
	sessionBody, err := json.Marshal(map[string]interface{}{
		"models": strings.Split(*models, ","),
	})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	resp, err := doJSON(client, *token, "", http.MethodPost, *baseURL+"/api/chat/sessions", sessionBody)
	if err != nil {
		log.Fatalf("Error creating session: %v", err)
	}
	cookie := sessionCookie(resp)
	var session struct {
		ChatSessionID string `json:"chatSessionId"`
	}
	if err := decodeBody(resp, &session); err != nil {
		log.Fatalf("Error creating session: %v", err)
	}
	fmt.Printf("Session: %s\n", session.ChatSessionID)

	// Post the query. A 402 here means the account needs a wallet or a
	// settled payment challenge, which this tool only reports.
	queryBody, err := json.Marshal(map[string]string{"query": *prompt})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	resp, err = doJSON(client, *token, cookie, http.MethodPost, *baseURL+"/api/chat/session/"+session.ChatSessionID, queryBody)
	if err != nil {
		log.Fatalf("Error posting query: %v", err)
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		var challenge map[string]interface{}
		if err := decodeBody(resp, &challenge); err != nil {
			log.Fatalf("Error reading payment challenge: %v", err)
		}
		pretty, _ := json.MarshalIndent(challenge, "", "  ")
		fmt.Println("\n💳 Payment required:")
		fmt.Println(string(pretty))
		return
	}
	var accepted struct {
		QueryID          string `json:"queryId"`
		CreditsRequired  int    `json:"creditsRequired"`
		CreditsAvailable int    `json:"creditsAvailable"`
	}
	if err := decodeBody(resp, &accepted); err != nil {
		log.Fatalf("Error posting query: %v", err)
	}
	fmt.Printf("Query accepted: %s (%d credits, %d available)\n",
		accepted.QueryID, accepted.CreditsRequired, accepted.CreditsAvailable)

	fmt.Println("\nStreaming responses...")
	fmt.Println("----------------------------")
	if err := streamEvents(client, *token, cookie, *baseURL+"/api/chat/sse/"+accepted.QueryID); err != nil {
		log.Fatalf("Error streaming: %v", err)
	}
	fmt.Println("----------------------------")
}

// doJSON sends a request with the auth the caller has collected so far.
func doJSON(client *http.Client, token, cookie, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return client.Do(req)
}

func sessionCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == "solchat_session" {
			return c.Name + "=" + c.Value
		}
	}
	return ""
}

func decodeBody(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error != "" {
			return fmt.Errorf("%s (%s, status %d)", errBody.Error, errBody.Code, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// streamEvents prints each SSE event as it arrives. Chunks are prefixed
// with the model that produced them so interleaved streams stay readable.
func streamEvents(client *http.Client, token, cookie, url string) error {
	resp, err := doJSON(client, token, cookie, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch event {
			case "chunk":
				var chunk struct {
					Model string `json:"model"`
					Chunk string `json:"chunk"`
				}
				if err := json.Unmarshal([]byte(data), &chunk); err == nil {
					fmt.Printf("[%s] %s\n", chunk.Model, chunk.Chunk)
				}
			case "done":
				fmt.Printf("\nDone: %s\n", data)
				return nil
			}
		}
	}
	return scanner.Err()
}
