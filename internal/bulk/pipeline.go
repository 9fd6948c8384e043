// Package bulk turns a list of student names into a zip of rendered receipts
// plus a numbered manifest.
//
// A run has four stages: one shared signatory is generated, one record is
// synthesized per name, records are rasterized one at a time through the
// single render surface, and everything is zipped. Per-item failures are
// logged and skipped; the job keeps going. When the job ends the render
// surface is released.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"receiptgen/internal/archive"
	"receiptgen/internal/generator"
	"receiptgen/internal/logging"
	"receiptgen/internal/receipt"
	"receiptgen/internal/render"
)

// SignatureDetail is the detail level used for the shared bulk signature.
const SignatureDetail = 3

var (
	// ErrNoNames is returned when the input holds no usable names.
	ErrNoNames = errors.New("no student names provided")
	// ErrJobInProgress is returned while another bulk job is running.
	ErrJobInProgress = errors.New("a bulk job is already running")
	// ErrTooManyNames is returned when the input exceeds the configured limit.
	ErrTooManyNames = errors.New("too many student names")
)

// Content is the AI collaborator the pipeline needs.
type Content interface {
	PrincipalName(ctx context.Context) string
	SignatureImage(ctx context.Context, name string, detail int) string
}

// Request is the input to a bulk run.
type Request struct {
	Names  string
	School receipt.SchoolIdentity
}

// Result is the outcome of a bulk run.
type Result struct {
	ArchiveName string
	Archive     []byte
	// Records holds every synthesized record in input order; the manifest
	// lists exactly these.
	Records []receipt.Record
	// Rendered counts images present in the archive.
	Rendered int
	// Skipped names were synthesized and listed but their image failed.
	Skipped []string
	// Dropped names could not be synthesized at all.
	Dropped   []string
	Signatory string
	Signed    bool
	Duration  time.Duration
}

// Options configures a Pipeline.
type Options struct {
	// MaxNames bounds one run; zero means unlimited.
	MaxNames int
	// Now stamps the archive name; defaults to time.Now.
	Now func() time.Time
}

// Pipeline runs bulk jobs. At most one job runs at a time.
type Pipeline struct {
	content Content
	raster  render.Rasterizer
	gen     *generator.Generator
	tracker *Tracker
	opts    Options
	log     *logging.Logger

	running atomic.Bool

	pairsMu sync.RWMutex
	pairs   receipt.NamePairs
}

// New creates a pipeline.
func New(content Content, raster render.Rasterizer, gen *generator.Generator, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		content: content,
		raster:  raster,
		gen:     gen,
		tracker: NewTracker(),
		opts:    opts,
		log:     logging.Get(logging.CategoryBulk),
	}
}

// Tracker exposes job progress to observers.
func (p *Pipeline) Tracker() *Tracker {
	return p.tracker
}

// Running reports whether a job is in progress.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// RememberPairs stores the latest AI generated name batch. Later runs use it
// to look up parent names; later entries overwrite earlier ones.
func (p *Pipeline) RememberPairs(pairs []receipt.NamePair) {
	m := receipt.PairsFrom(pairs)
	p.pairsMu.Lock()
	p.pairs = m
	p.pairsMu.Unlock()
	logging.BulkDebug("remembered %d name pairs", len(m))
}

// Pairs returns a copy of the remembered name pairs.
func (p *Pipeline) Pairs() receipt.NamePairs {
	p.pairsMu.RLock()
	defer p.pairsMu.RUnlock()
	out := make(receipt.NamePairs, len(p.pairs))
	for k, v := range p.pairs {
		out[k] = v
	}
	return out
}

// ParseNames splits text on line breaks, trims each line and drops blanks.
func ParseNames(text string) []string {
	lines := strings.Split(text, "\n")
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Run executes one bulk job. ctx bounds the remote and render calls; it does
// not abort the batch between items.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	names := ParseNames(req.Names)
	if len(names) == 0 {
		return nil, ErrNoNames
	}
	if p.opts.MaxNames > 0 && len(names) > p.opts.MaxNames {
		return nil, fmt.Errorf("%w: %d exceeds limit of %d", ErrTooManyNames, len(names), p.opts.MaxNames)
	}
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrJobInProgress
	}
	defer func() {
		p.release(ctx)
		p.tracker.clear()
		p.running.Store(false)
	}()

	start := time.Now()
	log := p.log.With("names", len(names))
	log.Info("bulk job started")

	res := &Result{}

	// Shared signatory.
	p.tracker.publish(Progress{Stage: StageSignature, Current: 0, Total: len(names)})
	signatory, signature := p.signatory(ctx)
	res.Signatory = signatory
	res.Signed = signature != ""

	// Per-item synthesis.
	pairs := p.Pairs()
	records := make([]receipt.Record, 0, len(names))
	for i, name := range names {
		p.tracker.publish(Progress{Stage: StageData, Current: i + 1, Total: len(names)})
		rec, err := p.synthesize(name, req.School, signatory, signature, pairs)
		if err != nil {
			log.Error("skipping %q: %v", name, err)
			res.Dropped = append(res.Dropped, name)
			continue
		}
		records = append(records, rec)
	}
	res.Records = records

	zb := archive.NewBuilder(p.opts.Now())
	zb.AddText(receipt.ManifestName, receipt.Manifest(records))

	// Sequential rendering through the single surface.
	for i, rec := range records {
		p.tracker.publish(Progress{Stage: StageImages, Current: i + 1, Total: len(records)})
		png, err := p.rasterize(ctx, rec)
		if err != nil {
			log.Error("failed to render receipt for %q: %v", rec.StudentName, err)
			res.Skipped = append(res.Skipped, rec.StudentName)
			continue
		}
		zb.AddFile(receipt.ItemFilename(rec), png)
		res.Rendered++
	}

	p.tracker.publish(Progress{Stage: StageZipping, Current: len(records), Total: len(records)})
	data, err := zb.Bytes()
	if err != nil {
		return nil, fmt.Errorf("build archive: %w", err)
	}
	res.Archive = data
	res.ArchiveName = receipt.BulkArchiveName(p.opts.Now())
	res.Duration = time.Since(start)

	if len(res.Skipped) > 0 {
		log.Warn("%d of %d receipts were not rendered: %s", len(res.Skipped), len(records), strings.Join(res.Skipped, ", "))
	}
	log.Info("bulk job finished: %s with %d images in %s", res.ArchiveName, res.Rendered, res.Duration.Round(time.Millisecond))
	return res, nil
}

// releaseTimeout bounds clearing the render target after a job.
const releaseTimeout = 10 * time.Second

// release clears the shared render target when the rasterizer supports it.
// It runs even when the caller's context is already done.
func (p *Pipeline) release(ctx context.Context) {
	r, ok := p.raster.(render.Releaser)
	if !ok {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("panic releasing render target: %v", rec)
		}
	}()
	if err := r.Release(rctx); err != nil {
		p.log.Warn("failed to release render target: %v", err)
	}
}

// signatory makes exactly one name call and at most one image call.
func (p *Pipeline) signatory(ctx context.Context) (string, string) {
	name := strings.TrimSpace(p.content.PrincipalName(ctx))
	if name == "" {
		p.log.Warn("no signatory name generated, using %q without a signature", receipt.DefaultAccountantName)
		return receipt.DefaultAccountantName, ""
	}
	sig := p.content.SignatureImage(ctx, name, SignatureDetail)
	if sig == "" {
		p.log.Warn("no signature image generated for %q", name)
	}
	return name, sig
}

func (p *Pipeline) synthesize(name string, school receipt.SchoolIdentity, signatory, signature string, pairs receipt.NamePairs) (rec receipt.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	school.Apply(&rec)
	p.gen.StudentFor(name, pairs).Apply(&rec)
	p.gen.Payment().Apply(&rec)
	rec.AccountantName = signatory
	rec.SignatureURL = signature
	return rec, rec.Validate()
}

func (p *Pipeline) rasterize(ctx context.Context, rec receipt.Record) (png []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.raster.Rasterize(ctx, rec)
}
