// Command websocket-client talks to the raw websocket endpoint of a SockJS
// server, which carries plain text messages without SockJS framing.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"nhooyr.io/websocket"
)

func main() {
	serverAddr := flag.String("server", "ws://localhost:8080/echo/websocket", "Raw websocket endpoint (e.g., ws://localhost:8080/echo/websocket)")
	flag.Parse()

	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, *serverAddr, nil)
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	log.Printf("Connected to %s", *serverAddr)

	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					log.Printf("Connection ended: %v", err)
				}
				os.Exit(0)
			}
			fmt.Printf("< %s\n", data)
		}
	}()

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

		if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
			log.Printf("Failed to send message: %v", err)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Error reading input: %v", err)
	}

	log.Println("Disconnected from server")
}
