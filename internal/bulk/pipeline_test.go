package bulk

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"receiptgen/internal/generator"
	"receiptgen/internal/receipt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeContent struct {
	name string
	sig  string

	nameCalls atomic.Int32
	sigCalls  atomic.Int32
	sigFor    atomic.Value
}

func (f *fakeContent) PrincipalName(ctx context.Context) string {
	f.nameCalls.Add(1)
	return f.name
}

func (f *fakeContent) SignatureImage(ctx context.Context, name string, detail int) string {
	f.sigCalls.Add(1)
	f.sigFor.Store(name)
	return f.sig
}

type fakeRaster struct {
	mu       sync.Mutex
	fail     map[string]bool
	panicOn  string
	calls    []string
	inflight atomic.Int32
	maxSeen  atomic.Int32
	block    chan struct{}
	started  chan struct{}

	releases      atomic.Int32
	releasedAfter atomic.Int32
	releaseErr    error
}

func (f *fakeRaster) Release(ctx context.Context) error {
	f.mu.Lock()
	f.releasedAfter.Store(int32(len(f.calls)))
	f.mu.Unlock()
	f.releases.Add(1)
	return f.releaseErr
}

func (f *fakeRaster) Rasterize(ctx context.Context, rec receipt.Record) ([]byte, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	if n > f.maxSeen.Load() {
		f.maxSeen.Store(n)
	}

	f.mu.Lock()
	f.calls = append(f.calls, rec.StudentName)
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	if rec.StudentName == f.panicOn {
		panic("surface lost")
	}
	if f.fail[rec.StudentName] {
		return nil, errors.New("render failed")
	}
	return []byte("png:" + rec.StudentName), nil
}

func unzip(t *testing.T, data []byte) ([]string, map[string]string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		names = append(names, f.Name)
		files[f.Name] = string(body)
	}
	return names, files
}

func newPipeline(c Content, r *fakeRaster) *Pipeline {
	fixed := time.UnixMilli(1721030400123)
	return New(c, r, generator.NewWithSeed(11), Options{Now: func() time.Time { return fixed }})
}

func TestParseNames(t *testing.T) {
	assert.Equal(t, []string{"Aarav Sharma", "Priya Patel"}, ParseNames("Aarav Sharma\n\nPriya Patel\n"))
	assert.Equal(t, []string{"A", "B"}, ParseNames("  A \r\n\r\nB\r\n"))
	assert.Empty(t, ParseNames(" \n\t\n"))
	assert.Empty(t, ParseNames(""))
}

func TestRun_HappyPath(t *testing.T) {
	content := &fakeContent{name: "Rajesh Kumar", sig: "data:image/png;base64,AAAA"}
	raster := &fakeRaster{}
	p := newPipeline(content, raster)

	school := receipt.Default().School()
	res, err := p.Run(context.Background(), Request{Names: "Aarav Sharma\n\nPriya Patel\n", School: school})
	require.NoError(t, err)

	assert.Equal(t, "kiit-receipts-bulk-1721030400123.zip", res.ArchiveName)
	assert.Equal(t, 2, res.Rendered)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, "Rajesh Kumar", res.Signatory)
	assert.True(t, res.Signed)

	names, files := unzip(t, res.Archive)
	require.Len(t, names, 3)
	assert.Equal(t, receipt.ManifestName, names[0])
	assert.Equal(t, "1. Aarav Sharma\n2. Priya Patel", files[receipt.ManifestName])

	for _, rec := range res.Records {
		assert.Equal(t, school.Name, rec.SchoolName)
		assert.Equal(t, "Rajesh Kumar", rec.AccountantName)
		assert.Equal(t, content.sig, rec.SignatureURL)
		assert.Zero(t, math.Mod(rec.PaymentAmount, 100))
		assert.True(t, generator.MatchesTemplate(rec.PaymentMode, rec.PaymentDetails))
		assert.Equal(t, "png:"+rec.StudentName, files[receipt.ItemFilename(rec)])
	}

	assert.EqualValues(t, 1, content.nameCalls.Load())
	assert.EqualValues(t, 1, content.sigCalls.Load())
	assert.Equal(t, "Rajesh Kumar", content.sigFor.Load())
	assert.EqualValues(t, 1, raster.maxSeen.Load(), "rendering must be sequential")

	_, ok := p.Tracker().Snapshot()
	assert.False(t, ok, "progress is cleared after the job")
	assert.False(t, p.Running())
}

func TestRun_RenderFailuresKeepManifest(t *testing.T) {
	raster := &fakeRaster{fail: map[string]bool{"B": true}, panicOn: "D"}
	p := newPipeline(&fakeContent{name: "Rajesh Kumar"}, raster)

	res, err := p.Run(context.Background(), Request{Names: "A\nB\nC\nD"})
	require.NoError(t, err)

	names, files := unzip(t, res.Archive)
	assert.Equal(t, "1. A\n2. B\n3. C\n4. D", files[receipt.ManifestName])
	assert.Len(t, names, 3, "manifest + two images")
	assert.Equal(t, []string{"B", "D"}, res.Skipped)
	assert.Equal(t, 2, res.Rendered)
	assert.Equal(t, []string{"A", "B", "C", "D"}, raster.calls)
}

func TestRun_ReleasesRenderTargetAfterLastImage(t *testing.T) {
	raster := &fakeRaster{fail: map[string]bool{"C": true}}
	p := newPipeline(&fakeContent{name: "Rajesh Kumar"}, raster)

	_, err := p.Run(context.Background(), Request{Names: "A\nB\nC"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, raster.releases.Load())
	assert.EqualValues(t, 3, raster.releasedAfter.Load(), "released after every rasterize call")

	raster.releaseErr = errors.New("target gone")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx, Request{Names: "D"})
	require.NoError(t, err, "a failed release does not fail the job")
	assert.EqualValues(t, 2, raster.releases.Load())
	assert.False(t, p.Running())
}

func TestRun_RejectedJobDoesNotRelease(t *testing.T) {
	raster := &fakeRaster{}
	p := newPipeline(&fakeContent{}, raster)
	_, err := p.Run(context.Background(), Request{Names: " \n"})
	assert.ErrorIs(t, err, ErrNoNames)
	assert.Zero(t, raster.releases.Load())
}

func TestRun_SignatoryFallbacks(t *testing.T) {
	t.Run("name failure skips the image call", func(t *testing.T) {
		content := &fakeContent{}
		p := newPipeline(content, &fakeRaster{})
		res, err := p.Run(context.Background(), Request{Names: "A\nB"})
		require.NoError(t, err)
		assert.Equal(t, receipt.DefaultAccountantName, res.Signatory)
		assert.False(t, res.Signed)
		assert.EqualValues(t, 1, content.nameCalls.Load())
		assert.Zero(t, content.sigCalls.Load())
		for _, rec := range res.Records {
			assert.Equal(t, receipt.DefaultAccountantName, rec.AccountantName)
			assert.Empty(t, rec.SignatureURL)
		}
	})

	t.Run("image failure keeps the generated name", func(t *testing.T) {
		content := &fakeContent{name: "Sunita Rao"}
		p := newPipeline(content, &fakeRaster{})
		res, err := p.Run(context.Background(), Request{Names: "A\nB\nC"})
		require.NoError(t, err)
		assert.Equal(t, "Sunita Rao", res.Signatory)
		assert.EqualValues(t, 1, content.sigCalls.Load())
		for _, rec := range res.Records {
			assert.Equal(t, "Sunita Rao", rec.AccountantName)
			assert.Empty(t, rec.SignatureURL)
		}
	})
}

func TestRun_NoNamesIsNoop(t *testing.T) {
	content := &fakeContent{name: "Rajesh Kumar"}
	p := newPipeline(content, &fakeRaster{})

	res, err := p.Run(context.Background(), Request{Names: "\n  \n"})
	assert.ErrorIs(t, err, ErrNoNames)
	assert.Nil(t, res)
	assert.Zero(t, content.nameCalls.Load())
	_, ok := p.Tracker().Snapshot()
	assert.False(t, ok)
}

func TestRun_TooManyNames(t *testing.T) {
	p := New(&fakeContent{}, &fakeRaster{}, generator.NewWithSeed(1), Options{MaxNames: 2})
	_, err := p.Run(context.Background(), Request{Names: "A\nB\nC"})
	assert.ErrorIs(t, err, ErrTooManyNames)
}

func TestRun_SecondJobWhileRunningIsNoop(t *testing.T) {
	raster := &fakeRaster{block: make(chan struct{}), started: make(chan struct{}, 1)}
	content := &fakeContent{name: "Rajesh Kumar"}
	p := newPipeline(content, raster)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), Request{Names: "A\nB"})
		done <- err
	}()

	<-raster.started
	assert.True(t, p.Running())
	snap, ok := p.Tracker().Snapshot()
	require.True(t, ok)
	assert.Equal(t, StageImages, snap.Stage)
	assert.Equal(t, 1, snap.Current)
	assert.Equal(t, 2, snap.Total)

	res, err := p.Run(context.Background(), Request{Names: "C"})
	assert.ErrorIs(t, err, ErrJobInProgress)
	assert.Nil(t, res)
	assert.EqualValues(t, 1, content.nameCalls.Load(), "rejected job makes no remote calls")

	snapAfter, ok := p.Tracker().Snapshot()
	require.True(t, ok)
	assert.Equal(t, snap, snapAfter, "rejected job leaves progress untouched")

	close(raster.block)
	require.NoError(t, <-done)
	assert.False(t, p.Running())
}

func TestRun_UsesRememberedPairs(t *testing.T) {
	p := newPipeline(&fakeContent{name: "Rajesh Kumar"}, &fakeRaster{})
	p.RememberPairs([]receipt.NamePair{
		{StudentName: "Ishaan Rao", ParentName: "Mr. Vikram Rao"},
		{StudentName: "Ishaan Rao", ParentName: "Mrs. Lata Rao"},
	})

	res, err := p.Run(context.Background(), Request{Names: "Ishaan Rao\nZara"})
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "Mrs. Lata Rao", res.Records[0].ParentName)
	assert.True(t, strings.HasSuffix(res.Records[1].ParentName, " "), "single word name has no surname")
}

func TestTracker_SubscribeSeesStagesInOrder(t *testing.T) {
	p := newPipeline(&fakeContent{name: "Rajesh Kumar"}, &fakeRaster{})
	updates, cancel := p.Tracker().Subscribe()

	var seen []Progress
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for u := range updates {
			seen = append(seen, u)
			if u.Stage == StageIdle {
				return
			}
		}
	}()

	_, err := p.Run(context.Background(), Request{Names: "A"})
	require.NoError(t, err)
	wg.Wait()
	cancel()

	require.NotEmpty(t, seen)
	assert.Equal(t, StageIdle, seen[len(seen)-1].Stage)

	order := map[Stage]int{StageSignature: 0, StageData: 1, StageImages: 2, StageZipping: 3, StageIdle: 4}
	for i := 1; i < len(seen); i++ {
		assert.LessOrEqual(t, order[seen[i-1].Stage], order[seen[i].Stage])
	}
}

func TestTracker_SlowSubscriberGetsLatest(t *testing.T) {
	tr := NewTracker()
	ch, cancel := tr.Subscribe()
	defer cancel()

	for i := 1; i <= 40; i++ {
		tr.publish(Progress{Stage: StageData, Current: i, Total: 40})
	}
	var last Progress
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, 40, last.Current)
}
