package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// DialTimeout bounds connecting to the control socket.
const DialTimeout = 2 * time.Second

// Call sends req to the daemon listening on socketPath and decodes the reply
// into out.
func Call(socketPath string, req Request, out any) error {
	conn, err := net.DialTimeout("unix", socketPath, DialTimeout)
	if err != nil {
		return fmt.Errorf("daemon not running? %w", err)
	}
	defer conn.Close()
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}
	if err := json.NewDecoder(conn).Decode(out); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	return nil
}

// Do sends req and turns a failed SimpleResponse into an error.
func Do(socketPath string, req Request) (string, error) {
	var resp SimpleResponse
	if err := Call(socketPath, req, &resp); err != nil {
		return "", err
	}
	if !resp.OK {
		return "", fmt.Errorf("%s", resp.Message)
	}
	return resp.Message, nil
}
