package messagepipeline_test

import (
	"context"
	"sync"

	"github.com/illmade-knight/go-analytics-bridge/pkg/messagepipeline"
)

// MockMessageConsumer is a channel-backed MessageConsumer for tests.
type MockMessageConsumer struct {
	msgChan    chan messagepipeline.Message
	done       chan struct{}
	startCount int
	stopCount  int
	mu         sync.Mutex
	closeOnce  sync.Once
}

func NewMockMessageConsumer(bufferSize int) *MockMessageConsumer {
	return &MockMessageConsumer{
		msgChan: make(chan messagepipeline.Message, bufferSize),
		done:    make(chan struct{}),
	}
}

func (m *MockMessageConsumer) Push(msg messagepipeline.Message) {
	m.msgChan <- msg
}

func (m *MockMessageConsumer) Close() {
	m.closeOnce.Do(func() {
		close(m.msgChan)
		close(m.done)
	})
}

func (m *MockMessageConsumer) Messages() <-chan messagepipeline.Message {
	return m.msgChan
}

func (m *MockMessageConsumer) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCount++
	return nil
}

func (m *MockMessageConsumer) Stop(_ context.Context) error {
	m.mu.Lock()
	m.stopCount++
	m.mu.Unlock()
	m.Close()
	return nil
}

func (m *MockMessageConsumer) Done() <-chan struct{} {
	return m.done
}

func (m *MockMessageConsumer) GetStartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCount
}

func (m *MockMessageConsumer) GetStopCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCount
}

// messageState tracks the Ack/Nack status of one message.
type messageState struct {
	mu         sync.Mutex
	ackCalled  bool
	nackCalled bool
}

func (ms *messageState) Ack() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.ackCalled = true
}

func (ms *messageState) Nack() {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.nackCalled = true
}

func (ms *messageState) IsAcked() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.ackCalled
}

func (ms *messageState) IsNacked() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.nackCalled
}

func newTrackedMessage(id, payload string) (messagepipeline.Message, *messageState) {
	state := &messageState{}
	msg := messagepipeline.Message{
		MessageData: messagepipeline.MessageData{ID: id, Payload: []byte(payload)},
		Ack:         state.Ack,
		Nack:        state.Nack,
	}
	return msg, state
}
