package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
)

func main() {
	if len(os.Args) < 4 {
		log.Fatalf("Usage: %s <user-key> <action> <resource> [server-addr]", os.Args[0])
	}

	userKey := os.Args[1]
	action := os.Args[2]
	resource := os.Args[3]
	serverAddr := "http://localhost:8123"
	if len(os.Args) > 4 {
		serverAddr = os.Args[4]
	}

	payload, err := json.Marshal(map[string]any{
		"user":     userKey,
		"action":   action,
		"resource": resource,
	})
	if err != nil {
		log.Fatalf("Failed to marshal request: %v", err)
	}

	resp, err := http.Post(
		serverAddr+"/v1/permissions/check",
		"application/json",
		bytes.NewReader(payload),
	)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("❌ Check failed\n")
		fmt.Printf("Status: %d\n", resp.StatusCode)
		fmt.Printf("Body: %s\n", string(body))
		return
	}

	var result struct {
		Allow bool `json:"allow"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("Failed to parse response: %v", err)
	}

	if result.Allow {
		fmt.Printf("✅ %s may %s %s\n", userKey, action, resource)
	} else {
		fmt.Printf("❌ %s may NOT %s %s\n", userKey, action, resource)
	}
}
