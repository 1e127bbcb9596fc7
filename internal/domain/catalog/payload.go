package catalog

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// maxConcurrentReads bounds how many directories are read at once during
// traversal.
const maxConcurrentReads = 16

// Payload is the input of one local ingestion. Its shape is decided once at
// the boundary; each variant has its own extraction.
//
// Implementations: DirectoryEntrySet, DataTransferItemSet, PlainFileSet.
type Payload interface {
	// Collect returns the complete file set. It returns only after every
	// read the payload requires has finished.
	Collect(ctx context.Context) ([]LocalFile, error)

	payload()
}

// DirectoryEntrySet is a set of directory trees (and possibly loose files)
// rooted in FS. Directories are expanded recursively.
type DirectoryEntrySet struct {
	FS    fs.FS
	Roots []string
}

func (DirectoryEntrySet) payload() {}

// Collect walks every root. Each sub-directory is read on its own goroutine;
// results are joined in directory-entry order once all branches are done.
func (s DirectoryEntrySet) Collect(ctx context.Context) ([]LocalFile, error) {
	w := &walker{fsys: s.FS, sem: make(chan struct{}, maxConcurrentReads)}

	results := make([][]LocalFile, len(s.Roots))
	var wg sync.WaitGroup
	for i, root := range s.Roots {
		root = path.Clean(strings.ReplaceAll(root, `\`, "/"))
		info, err := fs.Stat(s.FS, root)
		if err != nil {
			log.Warn().Err(err).Str("root", root).Msg("Skipping unreadable drop root")
			continue
		}
		if !info.IsDir() {
			results[i] = []LocalFile{fsFile{fsys: s.FS, name: root, modTime: info.ModTime()}}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = w.dir(ctx, root)
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return lo.Flatten(results), nil
}

type walker struct {
	fsys fs.FS
	sem  chan struct{}
}

func (w *walker) dir(ctx context.Context, dir string) []LocalFile {
	if ctx.Err() != nil {
		return nil
	}

	w.sem <- struct{}{}
	entries, err := fs.ReadDir(w.fsys, dir)
	<-w.sem
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("Skipping unreadable directory")
		return nil
	}

	results := make([][]LocalFile, len(entries))
	var wg sync.WaitGroup
	for i, e := range entries {
		name := path.Join(dir, e.Name())
		if e.IsDir() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = w.dir(ctx, name)
			}()
			continue
		}
		info, err := e.Info()
		if err != nil {
			log.Debug().Err(err).Str("file", name).Msg("Skipping unreadable entry")
			continue
		}
		results[i] = []LocalFile{fsFile{fsys: w.fsys, name: name, modTime: info.ModTime()}}
	}
	wg.Wait()

	return lo.Flatten(results)
}

// TransferItem is one item of a browser upload.
type TransferItem interface {
	// Name is the item's relative path as sent by the browser.
	Name() string
	MediaType() string
	Open() (io.ReadCloser, error)
}

// DataTransferItemSet is the item list of a browser upload. Audio items are
// copied under SpoolDir so they outlive the request that carried them.
type DataTransferItemSet struct {
	Items    []TransferItem
	SpoolDir string
}

func (DataTransferItemSet) payload() {}

// Collect spools every audio item. Non-audio items are dropped unread;
// items that fail to copy are skipped.
func (s DataTransferItemSet) Collect(ctx context.Context) ([]LocalFile, error) {
	files := make([]LocalFile, 0, len(s.Items))
	taken := make(map[string]bool)
	for _, item := range s.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mediaType := mediaTypeFor(item.MediaType(), item.Name())
		if !strings.HasPrefix(mediaType, "audio/") {
			continue
		}
		f, err := s.spool(item, mediaType, taken)
		if err != nil {
			log.Warn().Err(err).Str("item", item.Name()).Msg("Skipping unreadable upload item")
			continue
		}
		files = append(files, f)
	}
	return files, nil
}

// spool copies item under SpoolDir. taken holds the destinations already
// used by this upload; a repeated name gets a " (n)" suffix.
func (s DataTransferItemSet) spool(item TransferItem, mediaType string, taken map[string]bool) (LocalFile, error) {
	rel := path.Clean("/" + strings.ReplaceAll(item.Name(), `\`, "/"))
	dest := uniquePath(filepath.Join(s.SpoolDir, filepath.FromSlash(strings.TrimPrefix(rel, "/"))), taken)
	taken[dest] = true

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	src, err := item.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return nil, fmt.Errorf("failed to spool %s: %w", item.Name(), err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, err
	}
	return NewDiskFile(item.Name(), dest, mediaType, info.ModTime()), nil
}

func uniquePath(p string, taken map[string]bool) string {
	if !taken[p] {
		return p
	}
	ext := filepath.Ext(p)
	base := strings.TrimSuffix(p, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}

// PlainFileSet is a list of individual files on the server's disk.
type PlainFileSet struct {
	Paths []string
}

func (PlainFileSet) payload() {}

// Collect stats every path; missing files and directories are skipped.
func (s PlainFileSet) Collect(ctx context.Context) ([]LocalFile, error) {
	files := make([]LocalFile, 0, len(s.Paths))
	for _, p := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(p)
		if err != nil {
			log.Debug().Err(err).Str("path", p).Msg("Skipping unreadable file")
			continue
		}
		if info.IsDir() {
			continue
		}
		files = append(files, NewDiskFile(p, p, "", info.ModTime()))
	}
	return files, nil
}

// PathsPayload builds the payload for absolute or working-directory
// relative paths on the server's disk. With recursive set, directories are
// expanded; otherwise each path is a single file.
func PathsPayload(paths []string, recursive bool) (Payload, error) {
	if !recursive {
		return PlainFileSet{Paths: paths}, nil
	}

	roots := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		abs = filepath.ToSlash(strings.TrimPrefix(abs, filepath.VolumeName(abs)))
		roots = append(roots, strings.TrimPrefix(abs, "/"))
	}
	return DirectoryEntrySet{FS: os.DirFS("/"), Roots: roots}, nil
}
