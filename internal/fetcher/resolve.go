package fetcher

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DownloadDir is the workspace subdirectory holding downloaded and extracted
// inputs.
const DownloadDir = "_downloads"

// Resolver turns input references (local paths, http(s) or ftp URLs, ZIP
// archives) into local dataset paths. It is safe for concurrent use: each URL
// is downloaded once and each archive extracted once, however many inputs
// refer to it.
type Resolver struct {
	HTTP Fetcher
	FTP  Fetcher
	// Dir receives downloads and extracted archives.
	Dir string

	mu    sync.Mutex
	calls map[string]*call
	dests map[string]bool
}

// call is the shared outcome of one download or extraction.
type call struct {
	once  sync.Once
	path  string
	files []string
	err   error
}

// entry returns the call for key, creating it on first use.
func (r *Resolver) entry(key string) *call {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]*call)
	}
	c, ok := r.calls[key]
	if !ok {
		c = &call{}
		r.calls[key] = c
	}
	return c
}

// reserve returns an unused path under Dir named after name, so that distinct
// sources sharing a base name do not overwrite each other.
func (r *Resolver) reserve(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dests == nil {
		r.dests = make(map[string]bool)
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 2; r.dests[candidate]; n++ {
		candidate = stem + "_" + strconv.Itoa(n) + ext
	}
	r.dests[candidate] = true
	return filepath.Join(r.Dir, candidate)
}

// NewResolver returns a Resolver that stores remote inputs under
// workspace/_downloads.
func NewResolver(workspace string, httpOpts HTTPOptions, ftpOpts FTPOptions) *Resolver {
	return &Resolver{
		HTTP: NewHTTPFetcher(httpOpts),
		FTP:  NewFTPFetcher(ftpOpts),
		Dir:  filepath.Join(workspace, DownloadDir),
	}
}

// IsRemote reports whether ref names an http(s) or ftp URL.
func IsRemote(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return u.Host != ""
	}
	return false
}

// Resolve returns a local path for ref. Remote references are downloaded first.
// Archives are extracted and the first entry whose extension is in exts is
// returned.
func (r *Resolver) Resolve(ctx context.Context, ref string, exts ...string) (string, error) {
	local := ref
	if IsRemote(ref) {
		c := r.entry("url:" + ref)
		c.once.Do(func() { c.path, c.err = r.download(ctx, ref) })
		if c.err != nil {
			return "", c.err
		}
		local = c.path
	} else if _, err := os.Stat(local); err != nil {
		return "", eris.Wrapf(err, "fetcher: input %s", ref)
	}

	if !strings.EqualFold(filepath.Ext(local), ".zip") {
		return local, nil
	}

	key := local
	if abs, err := filepath.Abs(local); err == nil {
		key = abs
	}
	c := r.entry("zip:" + key)
	c.once.Do(func() { c.files, c.err = r.unpack(local) })
	if c.err != nil {
		return "", c.err
	}
	return pick(local, c.files, exts)
}

func (r *Resolver) download(ctx context.Context, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse %s", ref)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "download"
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create download directory")
	}
	dest := r.reserve(name)

	f := r.HTTP
	if strings.EqualFold(u.Scheme, "ftp") {
		f = r.FTP
	}
	if f == nil {
		return "", eris.Errorf("fetcher: no fetcher for %s", u.Scheme)
	}

	n, err := f.DownloadToFile(ctx, ref, dest)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: download %s", ref)
	}
	zap.L().Info("fetcher: downloaded input",
		zap.String("component", "fetcher"),
		zap.String("url", ref),
		zap.String("path", dest),
		zap.Int64("bytes", n),
	)
	return dest, nil
}

// unpack extracts an archive into its own directory under Dir.
func (r *Resolver) unpack(zipPath string) ([]string, error) {
	base := strings.TrimSuffix(filepath.Base(zipPath), filepath.Ext(zipPath))
	dest := r.reserve(base)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, eris.Wrap(err, "fetcher: create extraction directory")
	}
	files, err := ExtractZIP(zipPath, dest)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("fetcher: extracted archive",
		zap.String("component", "fetcher"),
		zap.String("archive", zipPath),
		zap.String("dir", dest),
		zap.Int("files", len(files)),
	)
	return files, nil
}

// pick returns the first extracted file with one of exts.
func pick(zipPath string, files, exts []string) (string, error) {
	for _, f := range files {
		if matchExt(f, exts) {
			return f, nil
		}
	}
	return "", eris.Errorf("fetcher: no %s file in %s", strings.Join(exts, "/"), zipPath)
}

func matchExt(p string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := filepath.Ext(p)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
