package handler

import (
	"bufio"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/awsl-project/appforge/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 管理面板与预览可能不同源
	},
}

type WSMessage struct {
	Type string `json:"type"` // "generation_update", "generation_attempt_update", "sandbox_deployed", "log_message"...
	Data any    `json:"data"`
}

// WebSocketHub fans admin events out to every connected client. It
// implements event.Broadcaster.
type WebSocketHub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan WSMessage
	mu        sync.RWMutex
}

func NewWebSocketHub() *WebSocketHub {
	hub := &WebSocketHub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan WSMessage, 256),
	}
	go hub.run()
	return hub
}

func (h *WebSocketHub) run() {
	for msg := range h.broadcast {
		var failed []*websocket.Conn
		h.mu.RLock()
		for client := range h.clients {
			if err := client.WriteJSON(msg); err != nil {
				failed = append(failed, client)
			}
		}
		h.mu.RUnlock()

		if len(failed) > 0 {
			h.mu.Lock()
			for _, client := range failed {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] Upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// 保持连接，处理客户端消息（心跳等）
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// send drops the message when the queue is full so that logging never
// blocks on slow clients
func (h *WebSocketHub) send(msg WSMessage) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

func (h *WebSocketHub) BroadcastGeneration(g *domain.Generation) {
	cp := *g
	h.send(WSMessage{Type: "generation_update", Data: &cp})
}

func (h *WebSocketHub) BroadcastGenerationAttempt(a *domain.GenerationAttempt) {
	cp := *a
	h.send(WSMessage{Type: "generation_attempt_update", Data: &cp})
}

// BroadcastMessage sends a custom message with specified type to all connected clients
func (h *WebSocketHub) BroadcastMessage(messageType string, data any) {
	h.send(WSMessage{Type: messageType, Data: data})
}

// BroadcastLog sends a log message to all connected clients
func (h *WebSocketHub) BroadcastLog(message string) {
	h.send(WSMessage{Type: "log_message", Data: message})
}

// WebSocketLogWriter tees log output to stdout, a rotating log file and
// the websocket hub
type WebSocketLogWriter struct {
	hub     *WebSocketHub
	stdout  io.Writer
	logFile io.WriteCloser
}

// NewWebSocketLogWriter creates a writer that broadcasts logs via WebSocket and writes to file
func NewWebSocketLogWriter(hub *WebSocketHub, stdout io.Writer, logPath string) *WebSocketLogWriter {
	var logFile io.WriteCloser
	if logPath != "" {
		logFile = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    15, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	return &WebSocketLogWriter{
		hub:     hub,
		stdout:  stdout,
		logFile: logFile,
	}
}

// Write implements io.Writer
func (w *WebSocketLogWriter) Write(p []byte) (n int, err error) {
	n, err = w.stdout.Write(p)
	if err != nil {
		return n, err
	}

	if w.logFile != nil {
		w.logFile.Write(p)
	}

	if w.hub != nil {
		if msg := strings.TrimSpace(string(p)); msg != "" {
			w.hub.BroadcastLog(msg)
		}
	}
	return n, nil
}

func (w *WebSocketLogWriter) Close() error {
	if w.logFile != nil {
		return w.logFile.Close()
	}
	return nil
}

// ReadLastNLines reads the last n lines from the specified log file
func ReadLastNLines(logPath string, n int) ([]string, error) {
	file, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	// 小文件直接全部读取
	if stat.Size() < 1024*1024 {
		var lines []string
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		if len(lines) <= n {
			return lines, nil
		}
		return lines[len(lines)-n:], nil
	}

	// 大文件从尾部按块向前读取
	chunkSize := int64(8192)
	offset := stat.Size()
	var chunks [][]byte

	for offset > 0 && countNewlines(chunks) < n+1 {
		readSize := chunkSize
		if offset < chunkSize {
			readSize = offset
		}
		offset -= readSize

		chunk := make([]byte, readSize)
		if _, err := file.ReadAt(chunk, offset); err != nil && err != io.EOF {
			return nil, err
		}
		chunks = append([][]byte{chunk}, chunks...)
	}

	var all []byte
	for _, chunk := range chunks {
		all = append(all, chunk...)
	}

	var lines []string
	for _, line := range strings.Split(string(all), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) <= n {
		return lines, nil
	}
	return lines[len(lines)-n:], nil
}

func countNewlines(chunks [][]byte) int {
	count := 0
	for _, chunk := range chunks {
		for _, b := range chunk {
			if b == '\n' {
				count++
			}
		}
	}
	return count
}
