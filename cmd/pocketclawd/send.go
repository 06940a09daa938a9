package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// sendTimeout bounds one webhook round trip. Agent turns can run long
// when the model chains tool calls.
const sendTimeout = 600 * time.Second

// runSend posts one message to a daemon's webhook, which may live in
// another process, and prints the reply.
func runSend(host string, port uint16, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: pocketclawd send <message>")
		return 2
	}
	message := strings.Join(args, " ")

	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		return 1
	}

	url := "http://" + net.JoinHostPort(host, strconv.Itoa(int(port))) + "/webhook"
	client := &http.Client{Timeout: sendTimeout}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "send: %v (is the daemon running?)\n", err)
		return 1
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Fprintf(os.Stderr, "gateway returned status %d: %s\n", resp.StatusCode, strings.TrimSpace(string(respBody)))
		return 1
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		fmt.Fprintf(os.Stderr, "decode: %v\n", err)
		return 1
	}
	fmt.Println(parsed.Response)
	return 0
}
