package store

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kksharma1618/mediaserver/dlna"
	"github.com/kksharma1618/mediaserver/transcode"
)

// TranscodeFolderName is the virtual folder listing transcoded variants of
// the videos beside it.
const TranscodeFolderName = "#--TRANSCODE--#"

// TranscodeEngine is the engine name of variants in transcode folders.
const TranscodeEngine = "mpegts"

// Mime types most renderers play without help.
var directPlayable = map[string]bool{
	"video/mp4":       true,
	"video/mpeg":      true,
	"video/mp2t":      true,
	"video/quicktime": true,
	"audio/mpeg":      true,
	"audio/mp4":       true,
	"audio/flac":      true,
	"audio/x-flac":    true,
	"audio/wav":       true,
	"audio/x-wav":     true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
}

type FileStoreOptions struct {
	Roots       []string
	Probe       ProbeFunc
	Transcoder  *transcode.Transcoder
	Logger      *slog.Logger
	Counter     *UpdateCounter
	Concurrency int
}

// FileStore serves directories from disk. The tree is built by Scan and
// replaced wholesale on every rescan.
type FileStore struct {
	opts  FileStoreOptions
	index atomic.Pointer[MemoryStore]
	paths atomic.Pointer[map[string]string]
}

func NewFileStore(opts FileStoreOptions) *FileStore {
	if opts.Probe == nil {
		opts.Probe = runFFprobe
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	s := &FileStore{opts: opts}
	s.index.Store(NewMemoryStore(s.ID(), nil))
	empty := map[string]string{}
	s.paths.Store(&empty)
	return s
}

func (s *FileStore) ID() string {
	return "filestore"
}

type scanEntry struct {
	path  string
	isDir bool
	res   *Resource
}

type scanDir struct {
	path     string
	entries  []*scanEntry
	sidecars []string
}

// Scan walks the configured roots, probes media files and swaps in the new
// tree.
func (s *FileStore) Scan(ctx context.Context) error {
	log := s.opts.Logger
	dirs := map[string]*scanDir{}
	var items []*scanEntry

	for _, root := range s.opts.Roots {
		root = filepath.Clean(root)
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warn("scan: skipping", "path", p, "error", err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if p != root && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				dirs[p] = &scanDir{path: p}
				if p != root {
					parent := dirs[filepath.Dir(p)]
					parent.entries = append(parent.entries, &scanEntry{path: p, isDir: true})
				}
				return nil
			}
			parent := dirs[filepath.Dir(p)]
			if parent == nil {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(p))
			switch {
			case ext == ".srt" || ext == ".vtt":
				parent.sidecars = append(parent.sidecars, p)
			case ext == ".m3u" || ext == ".m3u8":
				parent.entries = append(parent.entries, &scanEntry{path: p, isDir: true})
			case MimeTypeByPath(p).IsMedia():
				e := &scanEntry{path: p}
				parent.entries = append(parent.entries, e)
				items = append(items, e)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("scanning %s: %w", root, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, e := range items {
		g.Go(func() error {
			e.res = s.itemResource(gctx, e.path)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	b := newTreeBuilder(s.ID())
	for i, root := range s.opts.Roots {
		d, ok := dirs[filepath.Clean(root)]
		if !ok {
			continue
		}
		id := RootID + "$" + strconv.Itoa(i+1)
		b.folder(id, RootID, filepath.Base(d.path), d.path)
		b.fill(id, d, dirs)
	}
	b.library()

	s.index.Store(b.idx)
	s.paths.Store(&b.paths)
	if s.opts.Counter != nil {
		s.opts.Counter.Increment()
	}
	log.Info("scan complete", "items", len(items), "folders", len(dirs))
	return nil
}

func (s *FileStore) itemResource(ctx context.Context, p string) *Resource {
	mt := MimeTypeByPath(p)
	r := &Resource{
		Kind:      KindItem,
		Title:     strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)),
		Path:      p,
		Mime:      string(mt),
		MediaType: mt.MediaType(),
	}
	if fi, err := os.Stat(p); err == nil {
		r.Size = fi.Size()
	}
	r.Compatible = directPlayable[r.Mime]
	if r.MediaType == MediaImage {
		r.HasThumbnail = true
		return r
	}
	info, err := s.opts.Probe(ctx, p)
	if err != nil {
		s.opts.Logger.Debug("probe failed", "path", p, "error", err)
	} else {
		applyProbe(r, info)
	}
	r.HasThumbnail = coverArt(p) != ""
	return r
}

// coverArt finds an image beside p: "<name>.jpg", then folder.jpg or
// cover.jpg.
func coverArt(p string) string {
	base := strings.TrimSuffix(p, filepath.Ext(p))
	dir := filepath.Dir(p)
	for _, c := range []string{base + ".jpg", base + ".png", filepath.Join(dir, "folder.jpg"), filepath.Join(dir, "cover.jpg")} {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c
		}
	}
	return ""
}

func (s *FileStore) Resource(ctx context.Context, id string) (*Resource, error) {
	return s.index.Load().Resource(ctx, id)
}

func (s *FileStore) Children(ctx context.Context, id string) ([]*Resource, error) {
	return s.index.Load().Children(ctx, id)
}

func (s *FileStore) LibraryFolder(l Library) string {
	return s.index.Load().LibraryFolder(l)
}

func (s *FileStore) Search(ctx context.Context, containerID string, c Criteria) ([]*Resource, error) {
	return SearchTree(ctx, s, containerID, c)
}

func (s *FileStore) item(ctx context.Context, id string) (*Resource, error) {
	r, err := s.Resource(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsContainer() || r.Path == "" {
		return nil, fmt.Errorf("%q: %w", id, ErrUnsupported)
	}
	return r, nil
}

func (s *FileStore) Open(ctx context.Context, id string, br dlna.ByteRange, tr dlna.TimeRange) (Stream, error) {
	r, err := s.item(ctx, id)
	if err != nil {
		return nil, err
	}
	tr = tr.Merge(r.SplitRange)
	if r.Engine == "" && !tr.HasStart() {
		return OpenFile(r.Path, br)
	}
	if s.opts.Transcoder == nil {
		return nil, fmt.Errorf("no transcoder for %q: %w", id, ErrUnsupported)
	}
	seek := transcode.Seek{Start: tr.StartOrZero()}
	if tr.End != nil {
		seek.End = *tr.End
	}
	if r.MediaType == MediaAudio {
		seek.Engine = "mp3"
	}
	return s.opts.Transcoder.OpenSeek(ctx, r.Path, seek)
}

func (s *FileStore) OpenSegment(ctx context.Context, id string, seg transcode.Segment) (Stream, error) {
	r, err := s.item(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.opts.Transcoder == nil {
		return nil, fmt.Errorf("no transcoder for %q: %w", id, ErrUnsupported)
	}
	return s.opts.Transcoder.OpenSegment(ctx, r.Path, seg)
}

func (s *FileStore) Thumbnail(ctx context.Context, id string) (io.ReadCloser, error) {
	r, err := s.item(ctx, id)
	if err != nil {
		return nil, err
	}
	p := r.Path
	if r.MediaType != MediaImage {
		p = coverArt(r.Path)
	}
	if p == "" {
		return nil, fmt.Errorf("thumbnail %q: %w", id, ErrNotFound)
	}
	return os.Open(p)
}

// treeBuilder assembles a scan into a MemoryStore. Ids are positional, so
// they survive rescans of an unchanged tree.
type treeBuilder struct {
	idx   *MemoryStore
	paths map[string]string
	all   []*Resource
}

func newTreeBuilder(storeID string) *treeBuilder {
	return &treeBuilder{idx: NewMemoryStore(storeID, nil), paths: map[string]string{}}
}

func (b *treeBuilder) put(r *Resource) {
	if err := b.idx.Put(r, nil); err != nil {
		panic(fmt.Sprintf("store: building tree: %v", err))
	}
	if r.Path != "" {
		b.paths[r.ID] = r.Path
	}
}

func (b *treeBuilder) folder(id, parentID, title, path string) {
	b.put(&Resource{ID: id, ParentID: parentID, Kind: KindContainer, Title: title, Path: path})
}

func sortEntries(es []*scanEntry) {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].isDir != es[j].isDir {
			return es[i].isDir
		}
		return strings.ToLower(filepath.Base(es[i].path)) < strings.ToLower(filepath.Base(es[j].path))
	})
}

func (b *treeBuilder) fill(id string, d *scanDir, dirs map[string]*scanDir) {
	sortEntries(d.entries)
	var videos []*Resource
	n := 0
	for _, e := range d.entries {
		n++
		childID := id + "$" + strconv.Itoa(n)
		switch {
		case e.isDir && dirs[e.path] != nil:
			b.folder(childID, id, filepath.Base(e.path), e.path)
			b.fill(childID, dirs[e.path], dirs)
		case e.isDir:
			b.playlist(childID, id, e.path)
		default:
			r := *e.res
			r.ID, r.ParentID = childID, id
			r.Subtitles = append(r.Subtitles, externalSubtitles(r.Path, d.sidecars, len(r.Subtitles))...)
			b.put(&r)
			b.all = append(b.all, &r)
			if r.MediaType == MediaVideo {
				videos = append(videos, &r)
			}
		}
	}
	if len(videos) > 0 {
		b.transcodeFolder(id+"$T", id, videos)
	}
}

// transcodeFolder lists one variant per audio track of every video.
func (b *treeBuilder) transcodeFolder(id, parentID string, videos []*Resource) {
	b.folder(id, parentID, TranscodeFolderName, "")
	n := 0
	for _, v := range videos {
		tracks := v.AudioTracks
		if len(tracks) == 0 {
			tracks = []AudioTrack{{ID: -1}}
		}
		for _, t := range tracks {
			n++
			r := *v
			r.ID, r.ParentID = id+"$"+strconv.Itoa(n), id
			r.Engine = TranscodeEngine
			r.InsideTranscodeFolder = true
			r.Mime = "video/mp2t"
			r.Compatible = true
			r.Title = v.Title + " [FFmpeg]"
			if t.Lang != "" {
				r.Title += " {" + t.Lang + "}"
			}
			b.put(&r)
		}
	}
}

// externalSubtitles matches "<name>.srt" and "<name>.<lang>.srt" sidecars.
func externalSubtitles(media string, sidecars []string, firstID int) []Subtitle {
	base := strings.TrimSuffix(filepath.Base(media), filepath.Ext(media))
	var out []Subtitle
	for _, sc := range sidecars {
		name := filepath.Base(sc)
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		var lang string
		switch {
		case stem == base:
		case strings.HasPrefix(stem, base+"."):
			lang = strings.TrimPrefix(stem, base+".")
		default:
			continue
		}
		out = append(out, Subtitle{
			ID:       firstID + len(out),
			Lang:     lang,
			Format:   strings.TrimPrefix(strings.ToLower(ext), "."),
			External: true,
			Path:     sc,
		})
	}
	return out
}

// playlist adds an m3u file as a container of the entries it lists.
func (b *treeBuilder) playlist(id, parentID, path string) {
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	b.folder(id, parentID, title, "")
	b.all = append(b.all, &Resource{ID: id, Kind: KindContainer, Title: title, Path: path})
	entries, err := readM3U(path)
	if err != nil {
		return
	}
	for i, p := range entries {
		mt := MimeTypeByPath(p)
		if !mt.IsMedia() {
			continue
		}
		b.put(&Resource{
			ID:         id + "$" + strconv.Itoa(i+1),
			ParentID:   id,
			Kind:       KindItem,
			Title:      strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)),
			Path:       p,
			Mime:       string(mt),
			MediaType:  mt.MediaType(),
			Compatible: directPlayable[string(mt)],
		})
	}
}

func readM3U(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(filepath.Dir(path), line)
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

var libraryFolders = []struct {
	lib   Library
	key   string
	title string
}{
	{LibraryAll, "all", "All Audio"},
	{LibraryAlbum, "album", "Album"},
	{LibraryArtist, "artist", "Artist"},
	{LibraryGenre, "genre", "Genre"},
	{LibraryPlaylist, "playlist", "Playlist"},
}

// library adds the virtual music library: every audio item, grouped by
// album, artist and genre, plus every playlist.
func (b *treeBuilder) library() {
	const libID = RootID + "$L"
	b.folder(libID, RootID, "Library", "")
	var audio, playlists []*Resource
	for _, r := range b.all {
		switch {
		case r.IsContainer():
			playlists = append(playlists, r)
		case r.MediaType == MediaAudio:
			audio = append(audio, r)
		}
	}
	for _, f := range libraryFolders {
		id := libID + "$" + f.key
		b.folder(id, libID, f.title, "")
		b.idx.SetLibraryFolder(f.lib, id)
		switch f.lib {
		case LibraryAll:
			b.copies(id, audio)
		case LibraryAlbum:
			b.grouped(id, audio, func(r *Resource) string { return r.Album })
		case LibraryArtist:
			b.grouped(id, audio, func(r *Resource) string { return r.Artist })
		case LibraryGenre:
			b.grouped(id, audio, func(r *Resource) string { return r.Genre })
		case LibraryPlaylist:
			for i, p := range playlists {
				b.playlist(id+"$"+strconv.Itoa(i+1), id, p.Path)
			}
		}
	}
}

func (b *treeBuilder) copies(parentID string, rs []*Resource) {
	for i, r := range rs {
		cp := *r
		cp.ID, cp.ParentID = parentID+"$"+strconv.Itoa(i+1), parentID
		b.put(&cp)
	}
}

func (b *treeBuilder) grouped(parentID string, rs []*Resource, key func(*Resource) string) {
	groups := map[string][]*Resource{}
	var names []string
	for _, r := range rs {
		k := key(r)
		if k == "" {
			continue
		}
		if _, ok := groups[k]; !ok {
			names = append(names, k)
		}
		groups[k] = append(groups[k], r)
	}
	sort.Strings(names)
	for i, name := range names {
		id := parentID + "$" + strconv.Itoa(i+1)
		b.folder(id, parentID, name, "")
		b.copies(id, groups[name])
	}
}

// PathOf returns the file behind id.
func (s *FileStore) PathOf(id string) (string, error) {
	p, ok := (*s.paths.Load())[id]
	if !ok {
		return "", fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	return p, nil
}
