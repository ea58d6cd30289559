// Package dataset resolves leaf directories under the content root into
// browsable manifests and derives the pairable id space shared by the two
// content categories.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// AIFolder and HumanFolder are the fixed category folder names inside a leaf.
const (
	AIFolder    = "ai"
	HumanFolder = "human"
)

// Extension rules: machine-generated images use the canonical .png; human
// photos accept a small whitelist.
var (
	aiExtensions    = map[string]bool{".png": true}
	humanExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}
)

var (
	// ErrNotFound means the resolved path does not exist under the root.
	ErrNotFound = errors.New("dataset path not found")
	// ErrInvalidPath means the path escapes the root, contains invalid
	// segments, or is not a directory.
	ErrInvalidPath = errors.New("invalid dataset path")
)

// Manifest is one resolved dataset directory: its child folders and, when it
// is a leaf, the per-category file lists. Manifests are rebuilt from the
// filesystem on demand and never persisted.
type Manifest struct {
	Path       string
	Folders    []string
	AIFiles    []string
	HumanFiles []string
}

func (m *Manifest) clone() *Manifest {
	out := &Manifest{Path: m.Path}
	out.Folders = append(out.Folders, m.Folders...)
	out.AIFiles = append(out.AIFiles, m.AIFiles...)
	out.HumanFiles = append(out.HumanFiles, m.HumanFiles...)
	return out
}

type cachedManifest struct {
	manifest *Manifest
	storedAt time.Time
}

// Resolver lists dataset directories strictly inside a fixed content root.
// Manifests go through a small LRU with a short TTL so request storms do not
// hammer the filesystem; concurrent misses for the same leaf collapse into
// one scan.
type Resolver struct {
	root  string
	ttl   time.Duration
	cache *lru.Cache[string, cachedManifest]
	group singleflight.Group
}

// NewResolver creates a resolver rooted at root. cacheSize bounds the
// manifest micro-cache and ttl bounds how stale a cached manifest may get.
func NewResolver(root string, cacheSize int, ttl time.Duration) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content root: %w", err)
	}

	cache, err := lru.New[string, cachedManifest](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create manifest cache: %w", err)
	}

	return &Resolver{root: abs, ttl: ttl, cache: cache}, nil
}

// ListLeaf resolves a leaf path into a manifest. A missing directory is
// ErrNotFound; traversal attempts and non-directories are ErrInvalidPath.
// A leaf with no content yet resolves to empty file lists, not an error.
func (r *Resolver) ListLeaf(ctx context.Context, leaf string) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cleaned, err := sanitizeLeaf(leaf)
	if err != nil {
		return nil, err
	}

	if entry, ok := r.cache.Get(cleaned); ok {
		if time.Since(entry.storedAt) < r.ttl {
			return entry.manifest.clone(), nil
		}
		r.cache.Remove(cleaned)
	}

	v, err, _ := r.group.Do(cleaned, func() (interface{}, error) {
		manifest, err := r.scan(cleaned)
		if err != nil {
			return nil, err
		}
		r.cache.Add(cleaned, cachedManifest{manifest: manifest, storedAt: time.Now()})
		return manifest, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Manifest).clone(), nil
}

// Invalidate drops any cached manifest for the leaf so the next ListLeaf
// re-scans the filesystem. Consumers call this before re-deriving after
// exhaustion to pick up content added since.
func (r *Resolver) Invalidate(leaf string) {
	cleaned, err := sanitizeLeaf(leaf)
	if err != nil {
		return
	}
	r.cache.Remove(cleaned)
}

// sanitizeLeaf normalizes a request path and rejects anything that could
// escape the content root. An empty path addresses the root itself.
func sanitizeLeaf(leaf string) (string, error) {
	leaf = strings.Trim(strings.TrimSpace(leaf), "/")
	if leaf == "" {
		return "", nil
	}

	cleaned := path.Clean(leaf)
	if cleaned == "." {
		return "", nil
	}

	for _, segment := range strings.Split(cleaned, "/") {
		if segment == "" || segment == ".." || strings.HasPrefix(segment, ".") {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, leaf)
		}
	}
	return cleaned, nil
}

func (r *Resolver) scan(cleaned string) (*Manifest, error) {
	fsPath := filepath.Join(r.root, filepath.FromSlash(cleaned))
	if fsPath != r.root && !strings.HasPrefix(fsPath, r.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, cleaned)
	}

	info, err := os.Stat(fsPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, cleaned)
	}
	if err != nil {
		return nil, fmt.Errorf("stat dataset path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", ErrInvalidPath, cleaned)
	}

	entries, err := os.ReadDir(fsPath)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}

	manifest := &Manifest{Path: cleaned}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.Name() == AIFolder || entry.Name() == HumanFolder {
			continue
		}
		manifest.Folders = append(manifest.Folders, entry.Name())
	}
	sort.Strings(manifest.Folders)

	manifest.AIFiles, err = listCategoryFiles(filepath.Join(fsPath, AIFolder), aiExtensions)
	if err != nil {
		return nil, err
	}
	manifest.HumanFiles, err = listCategoryFiles(filepath.Join(fsPath, HumanFolder), humanExtensions)
	if err != nil {
		return nil, err
	}

	return manifest, nil
}

// listCategoryFiles reads one category folder of a leaf. A missing folder
// means the leaf has no content for that category yet.
func listCategoryFiles(dir string, allowed map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read category dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !allowed[strings.ToLower(filepath.Ext(name))] {
			slog.Debug("skipping file with unsupported extension", "dir", dir, "file", name)
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// PairableIDs intersects the numeric stems of the manifest's two file lists.
// A stem present on only one side, or a non-numeric stem, is silently
// dropped. The result is ascending.
func PairableIDs(m *Manifest) []int64 {
	aiStems := make(map[int64]bool)
	for _, name := range m.AIFiles {
		if id, ok := stem(name); ok {
			aiStems[id] = true
		}
	}

	var ids []int64
	seen := make(map[int64]bool)
	for _, name := range m.HumanFiles {
		id, ok := stem(name)
		if !ok || !aiStems[id] || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FilesByStem indexes a file list by numeric stem. When two extensions share
// a stem the first file in the list wins.
func FilesByStem(files []string) map[int64]string {
	byStem := make(map[int64]string, len(files))
	for _, name := range files {
		id, ok := stem(name)
		if !ok {
			continue
		}
		if _, exists := byStem[id]; !exists {
			byStem[id] = name
		}
	}
	return byStem
}

// FileURL joins the public base url, leaf path, category folder, and file
// name into the address clients load.
func FileURL(base, leaf, folder, name string) string {
	base = strings.TrimSuffix(base, "/")
	if leaf == "" {
		return base + "/" + folder + "/" + name
	}
	return base + "/" + leaf + "/" + folder + "/" + name
}

func stem(name string) (int64, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	id, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		slog.Debug("ignoring non-numeric stem", "file", name)
		return 0, false
	}
	return id, true
}
