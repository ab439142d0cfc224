// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authtest

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/holoauth/internal/auth"
)

// Message is a mail captured by RecordingMailer.
type Message struct {
	To      string
	Subject string
	Body    string
}

// RecordingMailer records every message it is asked to send.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []Message
}

// Send records the message.
func (m *RecordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{To: to, Subject: subject, Body: body})
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *RecordingMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Last returns the most recent message.
func (m *RecordingMailer) Last() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return Message{}, false
	}
	return m.messages[len(m.messages)-1], true
}

// MockMailer is a testify mock of auth.Mailer.
type MockMailer struct {
	mock.Mock
}

// Send records the call and returns the configured error.
func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

var (
	_ auth.Mailer = (*RecordingMailer)(nil)
	_ auth.Mailer = (*MockMailer)(nil)
)
