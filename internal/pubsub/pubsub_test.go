package pubsub

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPublishInvokesTopicSubscribersOnly(t *testing.T) {
	h := New(testLogger())
	var readyCalled, shutdownCalled int
	h.Subscribe(func(Event) error { readyCalled++; return nil }, TopicSystemReady)
	h.Subscribe(func(Event) error { shutdownCalled++; return nil }, TopicSystemShutdown)

	h.Publish(Event{Topic: TopicSystemReady})

	assert.Equal(t, 1, readyCalled)
	assert.Equal(t, 0, shutdownCalled)
}

func TestGlobalSubscriberReceivesEveryTopic(t *testing.T) {
	h := New(testLogger())
	var seen []Topic
	h.Subscribe(func(e Event) error { seen = append(seen, e.Topic); return nil })

	h.Publish(Event{Topic: TopicSystemReady})
	h.Publish(Event{Topic: TopicAgentError})

	assert.Equal(t, []Topic{TopicSystemReady, TopicAgentError}, seen)
}

func TestFailingHandlerDoesNotBlockOthers(t *testing.T) {
	h := New(testLogger())
	var secondCalled bool
	h.Subscribe(func(Event) error { return errors.New("boom") }, TopicSpecChanged)
	h.Subscribe(func(Event) error { secondCalled = true; return nil }, TopicSpecChanged)

	h.Publish(Event{Topic: TopicSpecChanged})
	assert.True(t, secondCalled)
}

func TestHandlerCount(t *testing.T) {
	h := New(testLogger())
	h.Subscribe(func(Event) error { return nil })
	h.Subscribe(func(Event) error { return nil }, TopicAgentError)
	assert.Equal(t, 2, h.HandlerCount())
}
