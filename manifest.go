package quarry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/quarry-dev/quarry/internal/logging"
	"github.com/quarry-dev/quarry/internal/qerr"
)

// ManifestName is the file name that marks a scan root as manifest-driven.
const ManifestName = "quarry.toml"

// manifest is the on-disk shape of quarry.toml.
//
//	[scan]
//	include  = ["src/**/*.cs"]
//	exclude  = ["**/Generated/**"]
//	files    = ["tools/Build.cs"]
//	projects = ["services/billing", "services/ledger"]
type manifest struct {
	Scan manifestScan `toml:"scan"`
}

type manifestScan struct {
	Include  []string `toml:"include"`
	Exclude  []string `toml:"exclude"`
	Files    []string `toml:"files"`
	Projects []string `toml:"projects"`
}

// resolveManifest expands a quarry.toml into the absolute source files it
// selects. Every selected path must stay inside the manifest's directory;
// an escape aborts the resolution. A referenced project that does not
// exist is skipped with a warning.
func (e *Engine) resolveManifest(path string) ([]string, error) {
	var m manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, qerr.Wrap(qerr.Validation, err, "parsing manifest %s", path)
	}

	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve manifest dir: %w", err)
	}

	var files []string
	add := func(abs string) error {
		inside, err := pathWithin(baseDir, abs)
		if err != nil {
			return err
		}
		if !inside {
			return qerr.New(qerr.Validation,
				"manifest %s selects %s outside its root %s", path, abs, baseDir)
		}
		files = append(files, abs)
		return nil
	}

	// Glob patterns select from a walk of the manifest's directory. An
	// empty scan section means "everything under the root".
	patterns := m.Scan.Include
	if len(patterns) == 0 && len(m.Scan.Files) == 0 && len(m.Scan.Projects) == 0 {
		patterns = []string{"**"}
	}
	if len(patterns) > 0 {
		walked, err := discoverDir(baseDir)
		if err != nil {
			return nil, err
		}
		for _, abs := range walked {
			rel, err := filepath.Rel(baseDir, abs)
			if err != nil {
				return nil, fmt.Errorf("relativize %s: %w", abs, err)
			}
			rel = filepath.ToSlash(rel)
			if !matchAny(patterns, rel) || matchAny(m.Scan.Exclude, rel) {
				continue
			}
			if err := add(abs); err != nil {
				return nil, err
			}
		}
	}

	for _, f := range m.Scan.Files {
		abs := f
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(baseDir, f)
		}
		abs, err := filepath.Abs(abs)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		if _, err := os.Stat(abs); err != nil {
			e.log.Warn("manifest file missing, skipping", logging.Fields{"path": f, "manifest": path})
			continue
		}
		if err := add(abs); err != nil {
			return nil, err
		}
	}

	for _, p := range m.Scan.Projects {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(baseDir, p)
		}
		abs, err := filepath.Abs(abs)
		if err != nil {
			return nil, fmt.Errorf("resolve project %s: %w", p, err)
		}
		inside, err := pathWithin(baseDir, abs)
		if err != nil {
			return nil, err
		}
		if !inside {
			return nil, qerr.New(qerr.Validation,
				"manifest %s references project %s outside its root %s", path, p, baseDir)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			e.log.Warn("manifest project missing, skipping", logging.Fields{"project": p, "manifest": path})
			continue
		}

		// A project with its own manifest resolves through it; a plain
		// directory is walked.
		var sub []string
		if nested := filepath.Join(abs, ManifestName); fileExists(nested) {
			sub, err = e.resolveManifest(nested)
		} else {
			sub, err = discoverDir(abs)
		}
		if err != nil {
			return nil, err
		}
		for _, f := range sub {
			if err := add(f); err != nil {
				return nil, err
			}
		}
	}

	return dedupePaths(files), nil
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// pathWithin reports whether abs sits at or under root.
func pathWithin(root, abs string) (bool, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false, fmt.Errorf("relativize %s: %w", abs, err)
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../"), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dedupePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
