package halftone

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/esimov/halftone/utils"
)

// maxWorkers sets the maximum number of concurrently processed files.
const maxWorkers = 20

// validExtensions lists the supported source files.
var validExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp"}

// Ops describes a batch of images to process.
type Ops struct {
	Src, Dst, PipeName string
	// Workers is the number of files processed concurrently in directory mode.
	Workers int
	// Status, if set, is called once per processed file.
	Status func(path string, err error)
}

// result holds the outcome of processing one file.
type result struct {
	path string
	err  error
}

// Execute runs the processor over the source, which can be a local file,
// a URL, the pipe name (stdin) or a directory. In directory mode every
// supported image found recursively is written as a JSON file into Dst,
// and the first error encountered is returned after all files were tried.
func (op *Ops) Execute(p *Processor) error {
	src := op.Src

	if utils.IsValidUrl(src) {
		f, err := utils.DownloadImage(src)
		if err != nil {
			return fmt.Errorf("failed to load the source image: %w", err)
		}
		defer os.Remove(f.Name())
		f.Close()
		src = f.Name()
	}

	var (
		fs  os.FileInfo
		err error
	)
	if src == op.PipeName {
		fs, err = os.Stdin.Stat()
	} else {
		fs, err = os.Stat(src)
	}
	if err != nil {
		return fmt.Errorf("failed to load the source image: %w", err)
	}

	switch mode := fs.Mode(); {
	case mode.IsDir():
		return op.executeDir(p, src)
	case mode.IsRegular() || mode&os.ModeNamedPipe != 0 || src == op.PipeName:
		if ext := filepath.Ext(op.Dst); ext != ".json" && op.Dst != op.PipeName {
			return fmt.Errorf("%v file type not supported, the output should be a .json file", ext)
		}
		err = op.process(p, src, op.Dst)
		op.report(op.Dst, err)
		return err
	}
	return fmt.Errorf("unsupported source: %s", src)
}

func (op *Ops) executeDir(p *Processor, src string) error {
	if _, err := os.Stat(op.Dst); err != nil {
		if err := os.MkdirAll(op.Dst, 0755); err != nil {
			return fmt.Errorf("unable to create the destination directory: %w", err)
		}
	}

	workers := op.Workers
	if workers <= 0 || workers > maxWorkers {
		workers = runtime.NumCPU()
	}

	ch := make(chan result)
	done := make(chan struct{})
	defer close(done)

	paths, errc := walkDir(done, src, validExtensions)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			op.consumer(p, op.Dst, ch, done, paths)
		}()
	}

	// Close the channel after the values are consumed.
	go func() {
		defer close(ch)
		wg.Wait()
	}()

	var firstErr error
	for res := range ch {
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
		op.report(res.path, res.err)
	}

	if err := <-errc; err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// consumer reads the path names from the paths channel and runs the processor against each source image.
func (op *Ops) consumer(
	p *Processor,
	dest string,
	res chan<- result,
	done <-chan struct{},
	paths <-chan string,
) {
	for src := range paths {
		base := filepath.Base(src)
		dst := filepath.Join(dest, strings.TrimSuffix(base, filepath.Ext(base))+".json")
		err := op.process(p, src, dst)

		select {
		case <-done:
			return
		case res <- result{path: src, err: err}:
		}
	}
}

// process runs the processor over a single source and removes the
// destination file if it fails.
func (op *Ops) process(p *Processor, in, out string) error {
	src, dst, err := op.pathToFile(in, out)
	if err != nil {
		return err
	}
	defer src.Close()

	err = p.Process(src, dst)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil && out != op.PipeName {
		os.Remove(out)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// pathToFile converts the source and destination paths to readable and writable files.
func (op *Ops) pathToFile(in, out string) (io.ReadCloser, io.WriteCloser, error) {
	var (
		src io.ReadCloser
		dst io.WriteCloser
		err error
	)
	if in == op.PipeName {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, nil, errors.New("`-` should be used with a pipe for stdin")
		}
		src = io.NopCloser(os.Stdin)
	} else {
		src, err = os.Open(in)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open the source file: %w", err)
		}
	}

	if out == op.PipeName {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			src.Close()
			return nil, nil, errors.New("`-` should be used with a pipe for stdout")
		}
		dst = nopWriteCloser{os.Stdout}
	} else {
		dst, err = os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			src.Close()
			return nil, nil, fmt.Errorf("unable to create the destination file: %w", err)
		}
	}
	return src, dst, nil
}

func (op *Ops) report(path string, err error) {
	if op.Status != nil {
		op.Status(path, err)
	}
}

// walkDir starts a new goroutine to walk the specified directory tree
// in recursive manner and sends the path of each supported file to a new channel.
// It finishes in case the done channel is getting closed.
func walkDir(
	done <-chan struct{},
	src string,
	srcExts []string,
) (<-chan string, <-chan error) {
	pathChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		// Close the paths channel after Walk returns.
		defer close(pathChan)

		errChan <- filepath.Walk(src, func(path string, f os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !f.Mode().IsRegular() || !isValidExtension(strings.ToLower(filepath.Ext(f.Name())), srcExts) {
				return nil
			}

			select {
			case <-done:
				return errors.New("directory walk cancelled")
			case pathChan <- path:
			}
			return nil
		})
	}()
	return pathChan, errChan
}

// isValidExtension checks for the supported extensions.
func isValidExtension(ext string, extensions []string) bool {
	for _, ex := range extensions {
		if ex == ext {
			return true
		}
	}
	return false
}
