package quarry

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/quarry-dev/quarry/internal/extract"
	"github.com/quarry-dev/quarry/internal/logging"
	"github.com/quarry-dev/quarry/internal/qerr"
	"github.com/quarry-dev/quarry/internal/store"
)

// skipDirs are never descended into, compared case-insensitively.
var skipDirs = map[string]bool{
	"bin": true, "obj": true, ".git": true, ".vs": true,
	".idea": true, "node_modules": true, "packages": true,
}

// workItem holds everything an extraction worker needs for one file.
type workItem struct {
	relPath string
	content []byte
	digest  string
}

// Scan resolves root, extracts every new or changed source file, and
// persists the results in one transaction. With incremental set, files
// whose digest matches the store are skipped and files that disappeared
// are removed; otherwise the store's contents are replaced wholesale.
//
// Per-file extraction failures are reported in the result, never as an
// error: one broken file does not abort the batch.
func (e *Engine) Scan(ctx context.Context, root string, incremental bool) (*ScanResult, error) {
	started := time.Now()

	paths, baseDir, err := e.resolveRoot(root)
	if err != nil {
		return nil, err
	}

	known := map[string]string{}
	if incremental {
		known, err = e.store.KnownDigests(ctx)
		if err != nil {
			return nil, err
		}
	}

	// ---- Phase A: serial read, hash, and change classification ----
	result := &ScanResult{Discovered: len(paths), StorePath: e.store.Path()}
	discovered := make(map[string]bool, len(paths))
	var items []workItem
	added, changed := 0, 0
	for _, abs := range paths {
		rel, err := filepath.Rel(baseDir, abs)
		if err != nil {
			return nil, fmt.Errorf("relativize %s: %w", abs, err)
		}
		rel = filepath.ToSlash(rel)
		discovered[rel] = true

		content, err := os.ReadFile(abs)
		if err != nil {
			result.FileErrors = append(result.FileErrors,
				FileError{Path: rel, Err: qerr.Wrap(qerr.Extraction, err, "reading %s", rel)})
			continue
		}
		digest := fmt.Sprintf("%x", sha256.Sum256(content))
		prev, seen := known[rel]
		if seen && prev == digest {
			result.Unchanged++
			continue
		}
		if seen {
			changed++
		} else {
			added++
		}
		items = append(items, workItem{
			relPath: rel,
			content: content,
			digest:  digest,
		})
	}

	var removed []string
	if incremental {
		for rel := range known {
			if !discovered[rel] {
				removed = append(removed, rel)
			}
		}
		sort.Strings(removed)
	}
	result.Removed = len(removed)

	// ---- Phase B: parallel extraction, one parser per worker ----
	facts, extractErrs := e.extractAll(ctx, items)
	result.FileErrors = append(result.FileErrors, extractErrs...)
	result.Scanned = len(facts)
	for _, f := range facts {
		result.IndexedEntities += f.EntityCount()
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// ---- Phase C: single writer transaction ----
	batch := &store.Batch{
		Files:        facts,
		RemovedPaths: removed,
		Full:         !incremental,
		Bookkeeping: store.ScanRecord{
			Root:         root,
			Incremental:  incremental,
			StartedAt:    started,
			FinishedAt:   time.Now(),
			FilesAdded:   added,
			FilesChanged: changed,
			FilesRemoved: len(removed),
			FilesSkipped: result.Unchanged,
			Errors:       len(result.FileErrors),
		},
	}
	if err := e.store.PersistBatch(ctx, batch); err != nil {
		return nil, err
	}

	result.Elapsed = time.Since(started)
	e.log.Info("scan complete", logging.Fields{
		"root":       root,
		"discovered": result.Discovered,
		"scanned":    result.Scanned,
		"unchanged":  result.Unchanged,
		"removed":    result.Removed,
		"entities":   result.IndexedEntities,
		"errors":     len(result.FileErrors),
		"elapsed_ms": result.Elapsed.Milliseconds(),
	})
	return result, nil
}

// extractAll fans items out to a worker pool and collects fact bundles in
// a stable path order. Each worker owns its Extractor: tree-sitter parsers
// are not safe for concurrent use.
func (e *Engine) extractAll(ctx context.Context, items []workItem) ([]*extract.FileFacts, []FileError) {
	if len(items) == 0 {
		return nil, nil
	}

	workCh := make(chan workItem, len(items))
	for _, item := range items {
		workCh <- item
	}
	close(workCh)

	type outcome struct {
		facts *extract.FileFacts
		fail  *FileError
	}
	resultCh := make(chan outcome, len(items))

	var wg sync.WaitGroup
	for i := 0; i < e.workerCount(len(items)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ex := extract.NewExtractor(e.resolver)
			for item := range workCh {
				if ctx.Err() != nil {
					return
				}
				facts, err := ex.Extract(ctx, item.relPath, item.content, item.digest)
				if err != nil {
					resultCh <- outcome{fail: &FileError{
						Path: item.relPath,
						Err:  qerr.Wrap(qerr.Extraction, err, "extracting %s", item.relPath),
					}}
					continue
				}
				resultCh <- outcome{facts: facts}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var facts []*extract.FileFacts
	var fails []FileError
	for out := range resultCh {
		if out.fail != nil {
			fails = append(fails, *out.fail)
			continue
		}
		facts = append(facts, out.facts)
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].Path < facts[j].Path })
	sort.Slice(fails, func(i, j int) bool { return fails[i].Path < fails[j].Path })
	return facts, fails
}

// resolveRoot turns root into the set of absolute source files plus the
// base directory stored paths are made relative to. Root may be a single
// source file, a directory (walked recursively; a quarry.toml inside takes
// over), or a manifest path.
func (e *Engine) resolveRoot(root string) (paths []string, baseDir string, err error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, "", fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, "", qerr.Wrap(qerr.Validation, err, "scan root %s does not exist", root)
	}

	if info.IsDir() {
		if nested := filepath.Join(abs, ManifestName); fileExists(nested) {
			paths, err = e.resolveManifest(nested)
			return paths, abs, err
		}
		paths, err = discoverDir(abs)
		return paths, abs, err
	}

	base := filepath.Base(abs)
	if base == ManifestName || strings.HasSuffix(base, ".toml") {
		paths, err = e.resolveManifest(abs)
		return paths, filepath.Dir(abs), err
	}
	if _, ok := extract.LanguageForFile(abs); ok {
		return []string{abs}, filepath.Dir(abs), nil
	}
	return nil, "", qerr.New(qerr.Validation, "scan root %s is not a source file, directory, or manifest", root)
}

// discoverDir walks dir for source files, skipping build-output and VCS
// directories and honoring a .gitignore at the walk root when present.
func discoverDir(dir string) ([]string, error) {
	var ignore *gitignore.GitIgnore
	if path := filepath.Join(dir, ".gitignore"); fileExists(path) {
		// A malformed .gitignore just disables ignore matching.
		ignore, _ = gitignore.CompileIgnoreFile(path)
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == dir {
				return nil
			}
			if skipDirs[strings.ToLower(d.Name())] {
				return filepath.SkipDir
			}
			if ignore != nil && ignore.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := extract.LanguageForFile(path); !ok {
			return nil
		}
		if ignore != nil && ignore.MatchesPath(rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}
