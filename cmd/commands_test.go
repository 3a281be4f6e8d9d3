package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/emla-tracker/internal/mastersync"
)

var fixedTime = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)

type fakeCompleter struct {
	ids []string
	day time.Time
	err error
}

func (f *fakeCompleter) SetCompleted(_ context.Context, ids []string, day time.Time) (int, error) {
	f.ids, f.day = ids, day
	return len(ids), f.err
}

func TestMarkCompleted(t *testing.T) {
	f := &fakeCompleter{}
	n, err := markCompleted(context.Background(), f, []string{" c1 ", "", "c2"}, fixedTime)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"c1", "c2"}, f.ids)
	assert.Equal(t, fixedTime, f.day)

	_, err = markCompleted(context.Background(), f, []string{" "}, fixedTime)
	assert.Error(t, err)

	_, err = markCompleted(context.Background(), &fakeCompleter{err: errors.New("db down")}, []string{"c1"}, fixedTime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "complete customers")
}

func TestLoadAdvisors_SQLite(t *testing.T) {
	sqliteConfig(t)
	ctx := context.Background()
	st, err := openStore(ctx, "advisors")
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	text := "Name,E-mail,Advisor Key\nJane Doe,Jane.Doe@example.com,I200\nNo Mail,,I300\nLi Wei,li.wei@example.com,\n"
	n, skipped, err := loadAdvisors(ctx, st, text)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 1, skipped)

	all, err := st.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, _, err = loadAdvisors(ctx, st, "Name,Email\nNobody,\n")
	assert.Error(t, err)
}

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (s *countingSyncer) Run(context.Context) (*mastersync.Result, error) {
	s.calls.Add(1)
	return &mastersync.Result{Success: s.err == nil}, s.err
}

func TestRunPeriodicSync(t *testing.T) {
	s := &countingSyncer{err: errors.New("feed unavailable")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runPeriodicSync(ctx, s, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic sync did not stop after cancel")
	}
}
