package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/projectbuilder/internal/eventstore"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	msgs     []published
	err      error
	flushed  bool
	flushErr error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakePublisher) FlushTimeout(time.Duration) error {
	f.flushed = true
	return f.flushErr
}

func finishedEvent(t *testing.T) eventstore.Event {
	t.Helper()
	ev, err := eventstore.NewBuildFinished(project.BuildRun{
		ProjectID: "p1",
		Seq:       3,
		Status:    project.StatusSuccess,
		Commit:    "0123456789abcdef",
	})
	require.NoError(t, err)
	return ev
}

func TestRecordPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	n := newNotifier(pub, "deploy.builds.", nil)

	require.NoError(t, n.Record(t.Context(), finishedEvent(t)))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "deploy.builds.BuildFinished", pub.msgs[0].subject)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &msg))
	assert.Equal(t, eventstore.TypeBuildFinished, msg.Type)
	assert.Equal(t, "p1#3", msg.BuildID)
	assert.Equal(t, "p1", msg.ProjectID)
	assert.Equal(t, "3", msg.Metadata["seq"])

	var payload struct {
		Run project.BuildRun `json:"run"`
	}
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, project.StatusSuccess, payload.Run.Status)
}

func TestDefaultSubject(t *testing.T) {
	n := newNotifier(&fakePublisher{}, "  ", nil)
	assert.Equal(t, DefaultSubject+".BuildStarted", n.Subject(eventstore.TypeBuildStarted))
}

func TestRecordPublishFailureIsNetworkError(t *testing.T) {
	n := newNotifier(&fakePublisher{err: errors.New("connection closed")}, "", nil)

	err := n.Record(t.Context(), finishedEvent(t))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNetwork))
}

func TestRecordHonoursCancelledContext(t *testing.T) {
	pub := &fakePublisher{}
	n := newNotifier(pub, "", nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.ErrorIs(t, n.Record(ctx, finishedEvent(t)), context.Canceled)
	assert.Empty(t, pub.msgs)
}

func TestCloseFlushesAndCloses(t *testing.T) {
	pub := &fakePublisher{}
	closed := false
	n := newNotifier(pub, "", func() { closed = true })

	require.NoError(t, n.Close())
	assert.True(t, pub.flushed)
	assert.True(t, closed)
}
