package fsm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fsm "github.com/silverspectro/async-finite-state-machine"
	"github.com/silverspectro/async-finite-state-machine/fsmtest"
)

const (
	done    fsm.Tag = "done"
	loading fsm.Tag = "loading"

	evFetch fsm.EventID = "fetch"
)

type records struct {
	Values []int
}

func cloneRecords(r records) records {
	r.Values = append([]int(nil), r.Values...)
	return r
}

// fetchValue resolves to the event payload appended to the snapshot
func fetchValue(c *fsm.Context[records]) (records, error) {
	if err, ok := c.Event.Payload.(error); ok {
		return records{}, err
	}
	next := *c.Payload
	next.Values = append(next.Values, c.Event.Payload.(int))
	return next, nil
}

func newAsyncMachine(t *testing.T, task fsm.TaskFunc[records], opts ...fsm.MachineOption) *fsm.Machine[records] {
	t.Helper()

	m, err := fsm.NewDefinition[records]().
		State(done).
		InFlightState(loading).
		Async(fsm.WildcardState, evFetch, loading, done, task).
		Clone(cloneRecords).
		Initial(done, records{}).
		Build(opts...)
	require.NoError(t, err)
	return m
}

func TestAsync_DispatchReturnsInFlightImmediately(t *testing.T) {
	t.Parallel()

	runner := &fsmtest.Runner{}
	m := newAsyncMachine(t, fetchValue, fsm.WithRunner(runner))
	ctx := context.Background()

	m.UpdatePayload(func(p *records) { p.Values = []int{1} })

	s, err := m.Transition(ctx, fsm.NewEvent(evFetch, 2))
	require.NoError(t, err)
	assert.Equal(t, loading, s.Tag)
	assert.Equal(t, []int{1}, s.Payload.Values, "in-flight state carries the pre-dispatch payload")

	// The worker is handed to the runner before Transition returns
	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, 1, runner.Len())
	assert.Equal(t, 1, m.Outstanding())
}

func TestAsync_SpawnOnSettleDefersWorker(t *testing.T) {
	t.Parallel()

	runner := &fsmtest.Runner{}
	m := newAsyncMachine(t, fetchValue, fsm.WithRunner(runner), fsm.WithSpawnOnSettle())
	ctx := context.Background()

	s, err := m.Transition(ctx, fsm.NewEvent(evFetch, 1))
	require.NoError(t, err)
	assert.Equal(t, loading, s.Tag)
	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, 0, runner.Len())

	_, err = m.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, 1, runner.Len())
}

func TestAsync_ActionRunsBeforeSnapshot(t *testing.T) {
	t.Parallel()

	var from, to fsm.Tag
	runner := &fsmtest.Runner{}
	m, err := fsm.NewDefinition[records]().
		State(done).
		InFlightState(loading).
		Async(done, evFetch, loading, done, fetchValue,
			fsm.WithAction(func(c *fsm.Context[records]) error {
				from, to = c.FromState, c.ToState
				c.Payload.Values = append(c.Payload.Values, 0)
				return nil
			}),
		).
		Clone(cloneRecords).
		Initial(done, records{}).
		Build(fsm.WithRunner(runner))
	require.NoError(t, err)
	ctx := context.Background()

	s, err := m.Transition(ctx, fsm.NewEvent(evFetch, 4))
	require.NoError(t, err)
	assert.Equal(t, fsm.State[records]{Tag: loading, Payload: records{Values: []int{0}}}, s)
	assert.Equal(t, done, from)
	assert.Equal(t, loading, to)

	runner.RunAll()
	s, err = m.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, fsm.State[records]{Tag: done, Payload: records{Values: []int{0, 4}}}, s)
}

func TestAsync_ActionFailureDispatchesNothing(t *testing.T) {
	t.Parallel()

	refused := errors.New("quota exceeded")
	runner := &fsmtest.Runner{}
	m, err := fsm.NewDefinition[records]().
		State(done).
		InFlightState(loading).
		Async(done, evFetch, loading, done, fetchValue,
			fsm.WithAction(func(c *fsm.Context[records]) error { return refused }),
		).
		Clone(cloneRecords).
		Initial(done, records{}).
		Build(fsm.WithRunner(runner))
	require.NoError(t, err)

	s, err := m.Transition(context.Background(), fsm.NewEvent(evFetch, 1))
	require.Error(t, err)
	assert.True(t, fsm.IsFailure(err))
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, done, s.Tag)
	assert.Equal(t, 0, runner.Len())
	assert.Equal(t, 0, m.Pending())
}

func TestAsync_ExitFailureKeepsInFlightPayload(t *testing.T) {
	t.Parallel()

	rejected := errors.New("rejected")
	runner := &fsmtest.Runner{}
	m, err := fsm.NewDefinition[records]().
		State(done).
		InFlightState(loading, fsm.WithOnExit(func(c *fsm.Context[records]) error {
			return rejected
		})).
		Async(done, evFetch, loading, done, fetchValue).
		Clone(cloneRecords).
		Initial(done, records{}).
		Build(fsm.WithRunner(runner))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.Transition(ctx, fsm.NewEvent(evFetch, 3))
	require.NoError(t, err)
	runner.RunAll()

	s, err := m.Settle(ctx)
	require.ErrorIs(t, err, rejected)
	assert.Equal(t, loading, s.Tag)
	assert.Empty(t, s.Payload.Values, "drained payload is not kept under the in-flight tag")
}

func TestAsync_SettleIsIdempotentWhileInFlight(t *testing.T) {
	t.Parallel()

	runner := &fsmtest.Runner{}
	m := newAsyncMachine(t, fetchValue, fsm.WithRunner(runner))
	ctx := context.Background()

	_, err := m.Transition(ctx, fsm.NewEvent(evFetch, 1))
	require.NoError(t, err)

	first, err := m.Settle(ctx)
	require.NoError(t, err)
	second, err := m.Settle(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, loading, second.Tag)
	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, 1, m.Outstanding())
	assert.Equal(t, 1, runner.Len(), "worker spawned exactly once")
}

func TestAsync_EventualSettlement(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	task := func(c *fsm.Context[records]) (records, error) {
		<-release
		return fetchValue(c)
	}
	m := newAsyncMachine(t, task)
	ctx := context.Background()

	s, err := m.Transition(ctx, fsm.NewEvent(evFetch, 7))
	require.NoError(t, err)
	require.Equal(t, loading, s.Tag)

	// Settle never blocks on a running worker
	s, err = m.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, loading, s.Tag)

	close(release)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	s, err = fsm.Await(ctx, m, time.Millisecond, m.Settled)
	require.NoError(t, err)
	assert.Equal(t, done, s.Tag)
	assert.Equal(t, []int{7}, s.Payload.Values)
	require.NoError(t, m.Wait())
}

func TestAsync_AtMostOneCompletionPerSettle(t *testing.T) {
	t.Parallel()

	runner := &fsmtest.Runner{}
	m := newAsyncMachine(t, fetchValue, fsm.WithRunner(runner))
	ctx := context.Background()

	_, err := m.Transition(ctx, fsm.NewEvent(evFetch, 1))
	require.NoError(t, err)
	_, err = m.Transition(ctx, fsm.NewEvent(evFetch, 2))
	require.NoError(t, err)

	s, err := m.Settle(ctx)
	require.NoError(t, err)
	require.Equal(t, loading, s.Tag)
	require.Equal(t, 2, runner.RunAll())

	s, err = m.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, done, s.Tag)
	assert.Equal(t, 1, m.Outstanding(), "second result still queued")

	s2, err := m.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, done, s2.Tag)
	assert.NotEqual(t, s.Payload, s2.Payload)
	assert.Equal(t, 0, m.Outstanding())

	// Nothing left: settle is stable again
	s3, err := m.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, s2, s3)
}

func TestAsync_SpawnOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		order fsm.Order
		want  [][]int
	}{
		{"lifo by default", fsm.OrderLIFO, [][]int{{3}, {2}, {1}}},
		{"fifo", fsm.OrderFIFO, [][]int{{1}, {2}, {3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newAsyncMachine(t, fetchValue,
				fsm.WithRunner(fsm.SyncRunner{}),
				fsm.WithSpawnOnSettle(),
				fsm.WithOrder(tt.order),
			)
			ctx := context.Background()

			for _, v := range []int{1, 2, 3} {
				s, err := m.Transition(ctx, fsm.NewEvent(evFetch, v))
				require.NoError(t, err)
				require.Equal(t, loading, s.Tag)
			}

			var got [][]int
			for range 3 {
				s, err := m.Settle(ctx)
				require.NoError(t, err)
				got = append(got, s.Payload.Values)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAsync_SecondDispatchCarriesSettledPayload(t *testing.T) {
	t.Parallel()

	m := newAsyncMachine(t, fetchValue, fsm.WithRunner(fsm.SyncRunner{}))
	ctx := context.Background()

	_, err := m.Transition(ctx, fsm.NewEvent(evFetch, 1))
	require.NoError(t, err)
	s, err := m.Settle(ctx)
	require.NoError(t, err)
	require.Equal(t, fsm.State[records]{Tag: done, Payload: records{Values: []int{1}}}, s)

	s, err = m.Transition(ctx, fsm.NewEvent(evFetch, 2))
	require.NoError(t, err)
	assert.Equal(t, fsm.State[records]{Tag: loading, Payload: records{Values: []int{1}}}, s)

	s, err = m.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, fsm.State[records]{Tag: done, Payload: records{Values: []int{1, 2}}}, s)
}

func TestAsync_ReportedFailureEndsCycle(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream unavailable")
	m := newAsyncMachine(t, fetchValue, fsm.WithRunner(fsm.SyncRunner{}))
	ctx := context.Background()

	m.UpdatePayload(func(p *records) { p.Values = []int{9} })

	_, err := m.Transition(ctx, fsm.NewEvent(evFetch, boom))
	require.NoError(t, err)

	s, err := m.Settle(ctx)
	require.Error(t, err)
	assert.True(t, fsm.IsFailure(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, done, s.Tag, "machine returns to the last settled tag")
	assert.Equal(t, []int{9}, s.Payload.Values, "payload kept")

	// The failure is reported once
	_, err = m.Settle(ctx)
	assert.NoError(t, err)
}

func TestAsync_FailureWhileOtherJobRunsKeepsInFlight(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	runner := &fsmtest.Runner{}
	m := newAsyncMachine(t, fetchValue, fsm.WithRunner(runner))
	ctx := context.Background()

	_, err := m.Transition(ctx, fsm.NewEvent(evFetch, boom))
	require.NoError(t, err)
	_, err = m.Transition(ctx, fsm.NewEvent(evFetch, 5))
	require.NoError(t, err)
	_, err = m.Settle(ctx)
	require.NoError(t, err)

	require.True(t, runner.RunNext()) // the failing job
	s, err := m.Settle(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, loading, s.Tag)

	require.True(t, runner.RunNext())
	s, err = m.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, done, s.Tag)
	assert.Equal(t, []int{5}, s.Payload.Values)
}

func TestAsync_SilentFailureStaysInFlight(t *testing.T) {
	t.Parallel()

	m := newAsyncMachine(t, fetchValue,
		fsm.WithRunner(fsm.SyncRunner{}),
		fsm.WithSilentFailures(),
	)
	ctx := context.Background()

	_, err := m.Transition(ctx, fsm.NewEvent(evFetch, errors.New("lost")))
	require.NoError(t, err)

	for range 5 {
		s, err := m.Settle(ctx)
		require.NoError(t, err)
		assert.Equal(t, loading, s.Tag)
	}
	assert.True(t, m.InFlight())
	assert.Equal(t, 1, m.Outstanding())
}

func TestAsync_PanicIsAFailure(t *testing.T) {
	t.Parallel()

	task := func(c *fsm.Context[records]) (records, error) {
		panic("task exploded")
	}
	m := newAsyncMachine(t, task, fsm.WithRunner(fsm.SyncRunner{}))
	ctx := context.Background()

	_, err := m.Transition(ctx, fsm.NewEvent(evFetch))
	require.NoError(t, err)

	s, err := m.Settle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task exploded")
	assert.Equal(t, done, s.Tag)
}

func TestAsync_TaskSeesSnapshotNotMachine(t *testing.T) {
	t.Parallel()

	var seen *fsm.Context[records]
	task := func(c *fsm.Context[records]) (records, error) {
		seen = c
		c.Payload.Values[0] = 100
		return *c.Payload, nil
	}
	runner := &fsmtest.Runner{}
	m := newAsyncMachine(t, task, fsm.WithRunner(runner))
	ctx := context.Background()

	m.UpdatePayload(func(p *records) { p.Values = []int{1} })
	_, err := m.Transition(ctx, fsm.NewEvent(evFetch))
	require.NoError(t, err)
	_, err = m.Settle(ctx)
	require.NoError(t, err)
	runner.RunAll()

	require.NotNil(t, seen)
	assert.Nil(t, seen.Machine)
	assert.True(t, seen.InTask())
	assert.Equal(t, done, seen.ToState)
	assert.Equal(t, []int{1}, m.Payload().Values, "snapshot mutation must not leak before drain")
}

func TestAsync_WorkerContextIsNotCancelled(t *testing.T) {
	t.Parallel()

	errs := make(chan error, 1)
	task := func(c *fsm.Context[records]) (records, error) {
		errs <- c.Err()
		return *c.Payload, nil
	}
	runner := &fsmtest.Runner{}
	m := newAsyncMachine(t, task, fsm.WithRunner(runner))

	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.Transition(ctx, fsm.NewEvent(evFetch))
	require.NoError(t, err)
	_, err = m.Settle(ctx)
	require.NoError(t, err)
	cancel()

	runner.RunAll()
	assert.NoError(t, <-errs)
}

func TestAsync_PoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const size = 2
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	task := func(c *fsm.Context[records]) (records, error) {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return fetchValue(c)
	}

	pool := fsm.NewPool(size)
	m := newAsyncMachine(t, task, fsm.WithRunner(pool))
	ctx := context.Background()

	for i := range 6 {
		_, err := m.Transition(ctx, fsm.NewEvent(evFetch, i))
		require.NoError(t, err)
	}
	_, err := m.Settle(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Wait())

	assert.LessOrEqual(t, peak, size)
	assert.Equal(t, size, pool.Size())

	left := m.Outstanding()
	drained := 0
	for m.Outstanding() > 0 {
		s, err := m.Settle(ctx)
		require.NoError(t, err)
		assert.Equal(t, done, s.Tag)
		drained++
	}
	assert.Equal(t, left, drained, "one result per settle")
}

func TestAsync_StopDropsLateResults(t *testing.T) {
	t.Parallel()

	runner := &fsmtest.Runner{}
	m := newAsyncMachine(t, fetchValue, fsm.WithRunner(runner))
	ctx := context.Background()

	_, err := m.Transition(ctx, fsm.NewEvent(evFetch, 1))
	require.NoError(t, err)
	_, err = m.Settle(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Stop())
	runner.RunAll()

	s, err := m.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, loading, s.Tag)
}

func TestAsync_StopRefusesNewWork(t *testing.T) {
	t.Parallel()

	runner := &fsmtest.Runner{}
	m := newAsyncMachine(t, fetchValue, fsm.WithRunner(runner), fsm.WithSpawnOnSettle())
	ctx := context.Background()

	_, err := m.Transition(ctx, fsm.NewEvent(evFetch, 1))
	require.NoError(t, err)
	require.NoError(t, m.Stop())
	assert.Equal(t, 0, m.Pending(), "pending jobs are discarded")

	_, err = m.Transition(ctx, fsm.NewEvent(evFetch, 2))
	assert.ErrorIs(t, err, fsm.ErrStopped)

	_, err = m.Settle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, runner.Len(), "nothing spawned after Stop")
}

func TestAsync_StopWhileSettling(t *testing.T) {
	t.Parallel()

	m := newAsyncMachine(t, fetchValue)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 50 {
			if _, err := m.Transition(ctx, fsm.NewEvent(evFetch, i)); err != nil {
				return
			}
			_, _ = m.Settle(ctx)
		}
	}()

	require.NoError(t, m.Stop())
	wg.Wait()
	require.NoError(t, m.Wait())
}

func TestAwait_ContextDeadline(t *testing.T) {
	t.Parallel()

	runner := &fsmtest.Runner{}
	m := newAsyncMachine(t, fetchValue, fsm.WithRunner(runner))

	_, err := m.Transition(context.Background(), fsm.NewEvent(evFetch, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s, err := fsm.Await(ctx, m, time.Millisecond, fsm.TagIs[records](done))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, loading, s.Tag)
}
