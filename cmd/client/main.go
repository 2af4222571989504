package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/omochice/sockjs-server/internal/client"
	"github.com/omochice/sockjs-server/internal/client/ws"
	"github.com/omochice/sockjs-server/internal/client/xhr"
)

func main() {
	// Parse command-line flags
	url := flag.String("url", "http://localhost:8080/echo", "SockJS endpoint (e.g., http://localhost:8080/echo)")
	transport := flag.String("transport", "websocket", "Transport to use: websocket or xhr")
	flag.Parse()

	var c client.Client
	switch *transport {
	case "websocket":
		c = ws.New(*url)
	case "xhr":
		c = xhr.New(*url)
	default:
		log.Fatalf("Unknown transport %q. Use websocket or xhr", *transport)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err := c.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer c.Close()

	log.Printf("Connected to %s over %s", *url, *transport)

	// Start goroutine to receive and display messages
	go func() {
		for {
			select {
			case msg := <-c.Messages():
				fmt.Printf("< %s\n", msg)
			case <-c.Done():
				if err := c.Err(); err != nil {
					log.Printf("Connection ended: %v", err)
				}
				os.Exit(0)
			}
		}
	}()

	// Read from stdin and send messages
	fmt.Println("Type your messages (or 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		if text == "quit" || text == "exit" {
			break
		}

		if err := c.Send(text); err != nil {
			log.Printf("Failed to send message: %v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}

	log.Println("Disconnected from server")
}
