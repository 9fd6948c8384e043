package settings

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"receiptgen/internal/receipt"
	"receiptgen/internal/store"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memKV struct {
	mu     sync.Mutex
	data   map[string]string
	puts   []string
	putErr error
}

func newMemKV() *memKV { return &memKV{data: map[string]string{}} }

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = value
	m.puts = append(m.puts, value)
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.puts)
}

func TestLoad_DefaultsWhenAbsent(t *testing.T) {
	s, err := Load(context.Background(), newMemKV())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
	assert.Equal(t, receipt.DefaultAccountantName, s.AccountantName)
}

func TestLoad_PartialJSONKeepsDefaults(t *testing.T) {
	kv := newMemKV()
	kv.data[StorageKey] = `{"schoolName":"DAV Public School","accountantName":"Meera Iyer"}`

	s, err := Load(context.Background(), kv)
	require.NoError(t, err)

	want := Defaults()
	want.SchoolName = "DAV Public School"
	want.AccountantName = "Meera Iyer"
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_CorruptEntryFallsBack(t *testing.T) {
	kv := newMemKV()
	kv.data[StorageKey] = `{not json`
	s, err := Load(context.Background(), kv)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s)
}

func TestSaveLoadAndReset(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	s := Defaults()
	s.SchoolContact = "Phone: 0674 000000"
	require.NoError(t, Save(ctx, kv, s))

	got, err := Load(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	reset, err := Reset(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), reset)
	_, err = kv.Get(ctx, StorageKey)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApply(t *testing.T) {
	s := Settings{SchoolName: "X", LogoURL: "https://example.com/logo.png", AccountantName: "Meera Iyer"}
	rec := s.Record()
	assert.Equal(t, "X", rec.SchoolName)
	assert.Equal(t, "Meera Iyer", rec.AccountantName)
	assert.Equal(t, receipt.Default().StudentName, rec.StudentName)
	assert.Equal(t, s, FromRecord(rec))
	assert.Equal(t, "X", s.School().Name)
}

func TestSaver_DebouncesToLastWrite(t *testing.T) {
	kv := newMemKV()
	saver := NewSaver(kv, 40*time.Millisecond)
	defer saver.Close(context.Background())

	for _, name := range []string{"A", "AB", "ABC"} {
		s := Defaults()
		s.SchoolName = name
		saver.Schedule(s)
		time.Sleep(5 * time.Millisecond)
	}
	assert.True(t, saver.Pending())

	require.Eventually(t, func() bool { return kv.putCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, kv.putCount(), "burst collapses into one write")

	got, err := Load(context.Background(), kv)
	require.NoError(t, err)
	assert.Equal(t, "ABC", got.SchoolName)
	assert.False(t, saver.Pending())
}

func TestSaver_CloseFlushes(t *testing.T) {
	kv := newMemKV()
	saver := NewSaver(kv, time.Hour)

	s := Defaults()
	s.SchoolName = "Flushed"
	saver.Schedule(s)
	require.NoError(t, saver.Close(context.Background()))
	assert.Equal(t, 1, kv.putCount())

	saver.Schedule(Defaults())
	assert.False(t, saver.Pending(), "closed saver ignores new settings")
}

func TestSaver_ResetDropsPending(t *testing.T) {
	kv := newMemKV()
	saver := NewSaver(kv, time.Hour)
	defer saver.Close(context.Background())

	s := Defaults()
	s.SchoolName = "Never written"
	saver.Schedule(s)

	got, err := saver.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
	assert.False(t, saver.Pending())
	assert.Zero(t, kv.putCount())
}

func TestSaver_ReportsErrors(t *testing.T) {
	kv := newMemKV()
	kv.putErr = errors.New("disk full")
	saver := NewSaver(kv, time.Hour)

	var gotErr error
	saver.OnSaved(func(_ Settings, err error) { gotErr = err })
	saver.Schedule(Defaults())
	assert.Error(t, saver.Close(context.Background()))
	assert.ErrorContains(t, gotErr, "disk full")
}
