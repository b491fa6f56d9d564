package gen

import (
	"context"
	"path"
	"runtime"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"

	"github.com/syssam/fabrica"
)

// Writer lays emitted files onto a filesystem. Go sources pass through
// goimports so stray imports from partial emission surface here, not
// in the user's build. Files are written in parallel.
type Writer struct {
	fs      afero.Fs
	workers int
}

// NewWriter returns a writer over fs.
func NewWriter(fs afero.Fs) *Writer {
	return &Writer{fs: fs, workers: runtime.GOMAXPROCS(0)}
}

// WithWorkers caps write parallelism.
func (w *Writer) WithWorkers(n int) *Writer {
	if n > 0 {
		w.workers = n
	}
	return w
}

// Write places every file under root.
func (w *Writer) Write(ctx context.Context, root string, files map[string][]byte) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.workers)
	for name, src := range files {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return w.writeFile(path.Join(root, name), src)
		})
	}
	return eg.Wait()
}

// WriteOutput places the server and client trees under their roots.
func (w *Writer) WriteOutput(ctx context.Context, serverRoot, clientRoot string, out *Output) error {
	if err := w.Write(ctx, serverRoot, out.Server); err != nil {
		return err
	}
	return w.Write(ctx, clientRoot, out.Client)
}

func (w *Writer) writeFile(name string, src []byte) error {
	if strings.HasSuffix(name, ".go") {
		formatted, err := imports.Process(name, src, nil)
		if err != nil {
			return fabrica.NewEmissionError("format", name, err)
		}
		src = formatted
	}
	if dir := path.Dir(name); dir != "." {
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return fabrica.NewEmissionError("write", name, err)
		}
	}
	if err := afero.WriteFile(w.fs, name, src, 0o644); err != nil {
		return fabrica.NewEmissionError("write", name, err)
	}
	return nil
}
