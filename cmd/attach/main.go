// Command attach is a small interactive terminal client: it puts the local
// terminal into raw mode and pipes bytes to/from a running session over
// cmd/api's websocket attach endpoint, the way an operator would debug a
// supervised CLI by hand (SPEC_FULL.md AMBIENT STACK).
package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	var addr string

	cmd := &cobra.Command{
		Use:   "attach <session-id>",
		Short: "Attach an interactive terminal to a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, args[0])
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "api server host:port")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(addr, sessionID string) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: fmt.Sprintf("/sessions/%s/attach", sessionID)}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial attach endpoint: %w", err)
	}
	defer conn.Close()

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	sendSize(conn, fd)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	done := make(chan struct{})
	defer func() {
		signal.Stop(sigCh)
		close(done)
	}()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-sigCh:
				sendSize(conn, fd)
			}
		}
	}()

	go func() {
		buf := make([]byte, 4096)
		for {
			n, readErr := os.Stdin.Read(buf)
			if n > 0 {
				if writeErr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); writeErr != nil {
					return
				}
			}
			if readErr != nil {
				return
			}
		}
	}()

	for {
		msgType, data, readErr := conn.ReadMessage()
		if readErr != nil {
			return nil
		}
		if msgType == websocket.BinaryMessage {
			os.Stdout.Write(data)
		}
	}
}

func sendSize(conn *websocket.Conn, fd int) {
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return
	}
	data, err := json.Marshal(struct {
		Cols int `json:"cols"`
		Rows int `json:"rows"`
	}{Cols: cols, Rows: rows})
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}
