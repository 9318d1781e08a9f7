// Package ipc carries commands from the CLI to a running daemon over a
// local socket: a Unix socket where available, a loopback TCP port on
// Windows.
package ipc

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"

	"github.com/cypherstack/bumpwallet/internal/logger"
)

const unixSocketPath = "/tmp/bumpwallet.sock"
const windowsSocketAddr = "127.0.0.1:7070"

var osType = runtime.GOOS

func NewServer() (*Server, error) {
	var listener net.Listener
	var err error

	if osType == "windows" {
		listener, err = net.Listen("tcp", windowsSocketAddr)
	} else {
		// A previous run may have left its socket file behind.
		if _, statErr := os.Stat(unixSocketPath); statErr == nil {
			if err := os.Remove(unixSocketPath); err != nil {
				return nil, fmt.Errorf("failed to remove existing socket file: %v", err)
			}
		}
		listener, err = net.Listen("unix", unixSocketPath)
	}
	if err != nil {
		return nil, err
	}

	server := &Server{
		listener:    listener,
		commands:    make(chan Command),
		connections: make(map[int]net.Conn),
	}

	go server.accept()

	return server, nil
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	buffer := make([]byte, 65536)

	n, err := conn.Read(buffer)
	if err != nil {
		if err != io.EOF {
			logger.Warn("Failed to read from IPC connection:", err)
		}
		conn.Close()
		return
	}

	var cmd Command
	if err := json.Unmarshal(buffer[:n], &cmd); err != nil {
		logger.Warn("Failed to parse IPC command:", err)
		conn.Close()
		return
	}

	// The server assigns command IDs; client-sent IDs are ignored.
	s.mutex.Lock()
	s.nextID++
	cmd.ID = s.nextID
	s.connections[cmd.ID] = conn
	s.mutex.Unlock()

	s.commands <- cmd
}

func (s *Server) Commands() <-chan Command {
	return s.commands
}

// SendResponse replies to the command with the given ID and closes its
// connection.
func (s *Server) SendResponse(id int, response Response) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	conn, exists := s.connections[id]
	if !exists {
		logger.Warn("Connection for IPC command not found:", id)
		return
	}

	responseData, err := json.Marshal(response)
	if err != nil {
		logger.Error("Error marshaling IPC response:", err)
		return
	}

	if _, err := conn.Write(responseData); err != nil {
		logger.Warn("Error writing IPC response:", err)
	}

	conn.Close()
	delete(s.connections, id)
}

func (s *Server) Close() error {
	return s.listener.Close()
}

func NewClient() (*Client, error) {
	var conn net.Conn
	var err error

	if osType == "windows" {
		conn, err = net.Dial("tcp", windowsSocketAddr)
	} else {
		conn, err = net.Dial("unix", unixSocketPath)
	}
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn}, nil
}

// SendCommand sends one command and waits for the daemon's reply. The
// server assigns the command ID.
func (c *Client) SendCommand(command string, args []string) (interface{}, error) {
	cmd := Command{
		Command: command,
		Args:    args,
	}

	cmdData, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("error marshaling command: %v", err)
	}

	if _, err := c.conn.Write(cmdData); err != nil {
		return nil, fmt.Errorf("error writing command to connection: %v", err)
	}

	responseData, err := io.ReadAll(c.conn)
	if err != nil {
		return nil, fmt.Errorf("error reading response from connection: %v", err)
	}

	var response Response
	if err := json.Unmarshal(responseData, &response); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %v", err)
	}

	if response.Error != "" {
		return nil, fmt.Errorf("%s", response.Error)
	}

	return response.Result, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
