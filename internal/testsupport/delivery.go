package testsupport

import (
	"context"
	"sync"

	"clipforge/internal/delivery"
)

// SentFile records one SendFile call observed by the fake messenger.
type SentFile struct {
	ChannelID string
	Caption   string
	Filename  string
	Path      string
}

// FakeMessage implements delivery.StatusMessage, recording edits and deletes.
type FakeMessage struct {
	mu        sync.Mutex
	Content   string
	Edits     []string
	Deleted   bool
	EditErr   error
	DeleteErr error
}

func (m *FakeMessage) Edit(_ context.Context, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EditErr != nil {
		return m.EditErr
	}
	m.Content = content
	m.Edits = append(m.Edits, content)
	return nil
}

func (m *FakeMessage) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.Deleted = true
	return nil
}

// LastEdit returns the most recent edit, or the empty string.
func (m *FakeMessage) LastEdit() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Edits) == 0 {
		return ""
	}
	return m.Edits[len(m.Edits)-1]
}

// WasDeleted reports whether Delete succeeded.
func (m *FakeMessage) WasDeleted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Deleted
}

// FakeMessenger implements delivery.Messenger for pipeline tests.
type FakeMessenger struct {
	mu         sync.Mutex
	ResolveErr error
	PostErr    error
	SendErr    error
	// MessageEditErr and MessageDeleteErr seed every message PostStatus creates.
	MessageEditErr   error
	MessageDeleteErr error
	Messages         []*FakeMessage
	Sent             []SentFile
}

func (f *FakeMessenger) ResolveChannel(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResolveErr
}

func (f *FakeMessenger) PostStatus(_ context.Context, _ string, content string) (delivery.StatusMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PostErr != nil {
		return nil, f.PostErr
	}
	msg := &FakeMessage{Content: content, EditErr: f.MessageEditErr, DeleteErr: f.MessageDeleteErr}
	f.Messages = append(f.Messages, msg)
	return msg, nil
}

func (f *FakeMessenger) SendFile(_ context.Context, channelID, caption, filename, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Sent = append(f.Sent, SentFile{ChannelID: channelID, Caption: caption, Filename: filename, Path: path})
	return nil
}

// LastMessage returns the most recent status message, or nil.
func (f *FakeMessenger) LastMessage() *FakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Messages) == 0 {
		return nil
	}
	return f.Messages[len(f.Messages)-1]
}

// SentFiles returns a copy of the recorded uploads.
func (f *FakeMessenger) SentFiles() []SentFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentFile(nil), f.Sent...)
}

var _ delivery.Messenger = (*FakeMessenger)(nil)
