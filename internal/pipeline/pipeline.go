// Package pipeline drives the downlevel transform over a set of files: it
// loads every input into one semantic program, lowers decorators in the
// non-declaration files in parallel and writes the results.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"downlevel/internal/config"
	"downlevel/internal/downlevel"
	"downlevel/internal/logging"
	"downlevel/internal/semantic"
	"downlevel/internal/syntax"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Runner owns the loaded program. Load, Remove and Transform may be called
// repeatedly; watch mode uses that to rebuild incrementally.
type Runner struct {
	cfg         *config.Config
	outDir      string
	transformer *downlevel.Transformer
	program     *semantic.Program

	mu    sync.Mutex
	files map[string]*syntax.File
	roots []string
}

// NewRunner returns a Runner writing into outDir. An empty outDir keeps
// outputs in memory only; they are still available on the Summary.
func NewRunner(cfg *config.Config, outDir string) *Runner {
	program := semantic.NewProgram()
	return &Runner{
		cfg:         cfg,
		outDir:      outDir,
		program:     program,
		transformer: downlevel.New(program, AnnotationPredicate(cfg.Transform), downlevel.Options{Typed: cfg.Transform.TypedMetadata}),
		files:       make(map[string]*syntax.File),
	}
}

// AnnotationPredicate builds the eligibility predicate: a declaration is an
// annotation when its doc carries the configured tag, or when it is one of
// the known names imported from a module outside the program.
func AnnotationPredicate(tc config.TransformConfig) semantic.Predicate {
	preds := []semantic.Predicate{semantic.DocTag(tc.AnnotationTag)}
	byModule := make(map[string][]string)
	var order []string
	for _, entry := range tc.KnownAnnotations {
		module, name, ok := config.SplitKnownAnnotation(entry)
		if !ok {
			continue
		}
		if _, seen := byModule[module]; !seen {
			order = append(order, module)
		}
		byModule[module] = append(byModule[module], name)
	}
	for _, module := range order {
		preds = append(preds, semantic.ImportedAs(module, byModule[module]...))
	}
	return semantic.AnyOf(preds...)
}

// Run discovers the inputs under paths, loads them and transforms them.
// The returned error combines per-file failures and diagnostics; the
// Summary is valid even when the error is not nil.
func (r *Runner) Run(ctx context.Context, paths []string) (*Summary, error) {
	start := time.Now()
	found, err := Discover(paths, r.cfg.Input)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, path := range found {
		if !r.isOutput(path) {
			files = append(files, path)
		}
	}
	r.mu.Lock()
	r.roots = append([]string(nil), paths...)
	r.mu.Unlock()
	logging.Pipeline("discovered %d files under %s", len(files), strings.Join(paths, ", "))

	loadErr := r.Load(ctx, files)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	sum, err := r.Transform(ctx)
	if sum != nil {
		sum.Duration = time.Since(start)
	}
	return sum, multierr.Append(loadErr, err)
}

// Update reloads changed files, drops removed ones and transforms again.
func (r *Runner) Update(ctx context.Context, changed, removed []string) (*Summary, error) {
	start := time.Now()
	for _, path := range removed {
		r.Remove(path)
	}
	loadErr := r.Load(ctx, changed)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	sum, err := r.Transform(ctx)
	if sum != nil {
		sum.Duration = time.Since(start)
	}
	return sum, multierr.Append(loadErr, err)
}

// Load parses paths in parallel and adds them to the program, replacing
// earlier versions. Files that fail to load are skipped and reported in
// the returned error; a file loaded before keeps its previous version.
func (r *Runner) Load(ctx context.Context, paths []string) error {
	timer := logging.StartTimer(logging.CategoryPipeline, fmt.Sprintf("load %d files", len(paths)))
	defer timer.Stop()

	var (
		errMu sync.Mutex
		errs  error
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Input.Workers)
	for _, path := range paths {
		path := path
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			if err := r.loadFile(egCtx, path); err != nil {
				logging.PipelineError("%v", err)
				if r.loaded(path) {
					logging.PipelineWarn("keeping previous version of %s", path)
				}
				logging.Audit(logging.AuditEvent{EventType: logging.AuditFileError, File: path, Message: err.Error()})
				errMu.Lock()
				errs = multierr.Append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return errs
}

func (r *Runner) loadFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := syntax.Parse(ctx, path, src)
	if err != nil {
		return err
	}
	// The program keeps what it indexed; the tree is not needed after that.
	defer f.Close()
	if err := r.program.AddFile(f); err != nil {
		return fmt.Errorf("indexing %s: %w", path, err)
	}

	r.mu.Lock()
	r.files[path] = f
	r.mu.Unlock()
	return nil
}

func (r *Runner) loaded(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.files[path]
	return ok
}

// Remove forgets path.
func (r *Runner) Remove(path string) {
	r.mu.Lock()
	_, ok := r.files[path]
	delete(r.files, path)
	r.mu.Unlock()
	if ok {
		r.program.RemoveFile(path)
		logging.PipelineDebug("removed %s", path)
	}
}

// Files returns the loaded paths in sorted order.
func (r *Runner) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.files))
	for path := range r.files {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Source returns the loaded text of path.
func (r *Runner) Source(path string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[path]
	if !ok {
		return nil, false
	}
	return f.Text, true
}

// Transform lowers every loaded non-declaration file and writes the
// outputs. Diagnostics are part of the returned error.
func (r *Runner) Transform(ctx context.Context) (*Summary, error) {
	r.mu.Lock()
	var inputs []*syntax.File
	for path, f := range r.files {
		if !IsDeclarationFile(path) {
			inputs = append(inputs, f)
		}
	}
	r.mu.Unlock()
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })

	results := make([]*downlevel.Result, len(inputs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Input.Workers)
	for i, f := range inputs {
		i, f := i, f
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			results[i] = r.transformer.Transform(f)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sum := &Summary{Results: results}
	var errs error
	for i, res := range results {
		sum.add(res, len(inputs[i].Text))
		for _, d := range res.Diagnostics {
			errs = multierr.Append(errs, d)
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditDiagnostic,
				File:      d.File,
				Line:      d.Line,
				Column:    d.Column,
				Message:   d.Message,
			})
		}
		if err := r.write(res); err != nil {
			errs = multierr.Append(errs, err)
			logging.Audit(logging.AuditEvent{EventType: logging.AuditFileError, File: res.File, Message: err.Error()})
			continue
		}
		if res.Changed {
			logging.Audit(logging.AuditEvent{
				EventType: logging.AuditFileRewritten,
				File:      res.File,
				Bytes:     len(res.Output),
				Message:   fmt.Sprintf("%d decorators lowered", res.Lowered),
			})
		} else {
			logging.Audit(logging.AuditEvent{EventType: logging.AuditFileUnchanged, File: res.File})
		}
	}
	logging.Pipeline("%s", sum)
	return sum, errs
}

func (r *Runner) write(res *downlevel.Result) error {
	if r.outDir == "" {
		return nil
	}
	dest := filepath.Join(r.outDir, r.relPath(res.File))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating output dir for %s: %w", res.File, err)
	}
	if err := os.WriteFile(dest, res.Output, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}

// isOutput reports whether path lies in the output directory, which may
// sit inside an input root.
func (r *Runner) isOutput(path string) bool {
	if r.outDir == "" {
		return false
	}
	rel, err := filepath.Rel(r.outDir, path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

// relPath places path under the output directory relative to the input
// root it was found under. Files named directly keep only their base name.
func (r *Runner) relPath(path string) string {
	r.mu.Lock()
	roots := r.roots
	r.mu.Unlock()
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return rel
	}
	return filepath.Base(path)
}

// Summary aggregates one transform pass.
type Summary struct {
	Files       int
	Changed     int
	Lowered     int
	Diagnostics []downlevel.Diagnostic
	BytesIn     int
	BytesOut    int
	Duration    time.Duration
	// Results are ordered by file name.
	Results []*downlevel.Result
}

func (s *Summary) add(res *downlevel.Result, in int) {
	s.Files++
	if res.Changed {
		s.Changed++
	}
	s.Lowered += res.Lowered
	s.Diagnostics = append(s.Diagnostics, res.Diagnostics...)
	s.BytesIn += in
	s.BytesOut += len(res.Output)
}

// Result returns the result for path, if it was transformed.
func (s *Summary) Result(path string) (*downlevel.Result, bool) {
	for _, res := range s.Results {
		if res.File == path {
			return res, true
		}
	}
	return nil, false
}

func (s *Summary) String() string {
	return fmt.Sprintf("%d files, %d changed, %d decorators lowered, %d diagnostics (%s -> %s) in %v",
		s.Files, s.Changed, s.Lowered, len(s.Diagnostics),
		humanize.Bytes(uint64(s.BytesIn)), humanize.Bytes(uint64(s.BytesOut)),
		s.Duration.Round(time.Millisecond))
}
