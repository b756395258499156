package dialogue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runQueue(t *testing.T, q *Queue) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func userTexts(msgs []Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Role == RoleUser {
			out = append(out, m.Text)
		}
	}
	return out
}

func TestQueueKeepsArrivalOrder(t *testing.T) {
	f := newFixture(t, nil)
	q := f.session.NewQueue()
	runQueue(t, q)

	const n = 40
	want := make([]string, n)
	for i := range want {
		want[i] = fmt.Sprintf("zq %02d", i)
		q.Push(want[i])
	}

	require.Eventually(t, func() bool {
		return q.Len() == 0 && len(f.session.Messages()) == 2*n
	}, 2*time.Second, 5*time.Millisecond)

	msgs := f.session.Messages()
	assert.Equal(t, want, userTexts(msgs))
	replies := 0
	for _, m := range msgs {
		if m.Role == RoleAssistant {
			assert.Equal(t, NotUnderstoodText, m.Text)
			replies++
		}
	}
	assert.Equal(t, n, replies)
}

func TestQueueRecordsUserMessageImmediately(t *testing.T) {
	ans := &fakeAnswerer{text: "answer", gate: make(chan struct{})}
	f := newFixture(t, ans)
	q := f.session.NewQueue()
	runQueue(t, q)

	q.Push("tell me a joke")
	require.Eventually(t, f.session.Loading, time.Second, time.Millisecond)
	q.Push("   ")
	q.Push("take me to the pnr page")

	msgs := f.session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"tell me a joke", "take me to the pnr page"}, userTexts(msgs))
	assert.Equal(t, 2, q.Len())

	close(ans.gate)
	require.Eventually(t, func() bool { return q.Len() == 0 && len(f.session.Messages()) == 4 }, time.Second, time.Millisecond)

	msgs = f.session.Messages()
	assert.Equal(t, "answer", msgs[2].Text)
	assert.Equal(t, "/pnr", msgs[3].DestinationPath)
}

func TestQueueStopsWithContext(t *testing.T) {
	ans := &fakeAnswerer{text: "answer", gate: make(chan struct{})}
	f := newFixture(t, ans)
	q := f.session.NewQueue()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.Run(ctx)
	}()

	q.Push("tell me a joke")
	q.Push("why is the sky blue")
	require.Eventually(t, f.session.Loading, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue did not stop")
	}

	msgs := f.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, ProviderFailureText, msgs[2].Text)
	assert.False(t, f.session.Loading())
}
