package ingress

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Ingress double for wiring tests: sends are
// recorded rather than delivered anywhere.
type Memory struct {
	mu     sync.Mutex
	Sent   []SentText
	Edited []EditedText
	Files  []SentFile
	Bytes  map[FileHandle][]byte
}

type SentText struct {
	ChatID int64
	Text   string
}

type EditedText struct {
	MessageHandle string
	Text          string
}

type SentFile struct {
	ChatID   int64
	Path     string
	Filename string
}

// NewMemory returns an empty Memory double.
func NewMemory() *Memory {
	return &Memory{Bytes: make(map[FileHandle][]byte)}
}

func (m *Memory) SendText(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentText{ChatID: chatID, Text: text})
	return nil
}

func (m *Memory) EditText(ctx context.Context, messageHandle string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edited = append(m.Edited, EditedText{MessageHandle: messageHandle, Text: text})
	return nil
}

func (m *Memory) SendFile(ctx context.Context, chatID int64, path, filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files = append(m.Files, SentFile{ChatID: chatID, Path: path, Filename: filename})
	return nil
}

func (m *Memory) FetchBytes(ctx context.Context, handle FileHandle) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.Bytes[handle]
	if !ok {
		return nil, fmt.Errorf("ingress: no bytes registered for handle %q", handle)
	}
	return b, nil
}
