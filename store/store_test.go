package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/anacrolix/ffprobe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kksharma1618/mediaserver/dlna"
	"github.com/kksharma1618/mediaserver/transcode"
)

func TestUpdateCounter(t *testing.T) {
	var seen []uint64
	var mu sync.Mutex
	c := NewUpdateCounter(10, func(v uint64) {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	assert.EqualValues(t, 10, c.Snapshot())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Increment()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 60, c.Snapshot())
	assert.Len(t, seen, 50)
}

func newTestMemoryStore(t *testing.T) (*MemoryStore, *UpdateCounter) {
	t.Helper()
	c := NewUpdateCounter(0, nil)
	s := NewMemoryStore("mem", c)
	require.NoError(t, s.Put(&Resource{ID: "music", ParentID: RootID, Kind: KindContainer, Title: "Music"}, nil))
	require.NoError(t, s.Put(&Resource{ID: "a", ParentID: "music", Kind: KindItem, Title: "Alpha", MediaType: MediaAudio, Artist: "Band"}, []byte("0123456789")))
	require.NoError(t, s.Put(&Resource{ID: "b", ParentID: "music", Kind: KindItem, Title: "Beta", MediaType: MediaVideo}, nil))
	return s, c
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s, c := newTestMemoryStore(t)
	assert.EqualValues(t, 3, c.Snapshot())

	root, err := s.Resource(ctx, RootID)
	require.NoError(t, err)
	assert.Equal(t, 1, root.ChildCount)

	kids, err := s.Children(ctx, "music")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "a", kids[0].ID)
	assert.Equal(t, "b", kids[1].ID)

	a, err := s.Resource(ctx, "a")
	require.NoError(t, err)
	assert.EqualValues(t, 10, a.Size)

	// Returned resources are copies.
	a.Title = "changed"
	a2, _ := s.Resource(ctx, "a")
	assert.Equal(t, "Alpha", a2.Title)

	_, err = s.Children(ctx, "a")
	assert.ErrorIs(t, err, ErrNotContainer)
	_, err = s.Resource(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Put(&Resource{ID: "x", ParentID: "a"}, nil), ErrNotContainer)
	assert.ErrorIs(t, s.Put(&Resource{ID: "x", ParentID: "zz"}, nil), ErrNotFound)

	require.NoError(t, s.Remove("music"))
	_, err = s.Resource(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	root, _ = s.Resource(ctx, RootID)
	assert.Zero(t, root.ChildCount)
	assert.EqualValues(t, 4, c.Snapshot())
}

func TestMemoryStoreMove(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t)
	require.NoError(t, s.Put(&Resource{ID: "b", ParentID: RootID, Kind: KindItem, Title: "Beta"}, nil))
	music, _ := s.Resource(ctx, "music")
	root, _ := s.Resource(ctx, RootID)
	assert.Equal(t, 1, music.ChildCount)
	assert.Equal(t, 2, root.ChildCount)
}

func TestMemoryStoreOpen(t *testing.T) {
	ctx := context.Background()
	s, c := newTestMemoryStore(t)

	st, err := s.Open(ctx, "a", dlna.ByteRange{Start: 4, End: -1}, dlna.TimeRange{})
	require.NoError(t, err)
	assert.EqualValues(t, 6, st.Available())
	b, err := io.ReadAll(st)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(b))
	assert.EqualValues(t, 0, st.Available())

	_, err = s.Open(ctx, "b", dlna.ByteRange{}, dlna.TimeRange{})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = s.Thumbnail(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	before := c.Snapshot()
	s.SetThumbnail("a", []byte("img"))
	assert.Equal(t, before+1, c.Snapshot())
	rc, err := s.Thumbnail(ctx, "a")
	require.NoError(t, err)
	rc.Close()
	a, _ := s.Resource(ctx, "a")
	assert.True(t, a.HasThumbnail)
}

func TestFilterByName(t *testing.T) {
	rs := []*Resource{{Title: "Intro"}, {Title: "Hello World"}, {Title: "other"}}
	got := FilterByName(rs, "WORLD")
	require.Len(t, got, 1)
	assert.Equal(t, "Hello World", got[0].Title)
	assert.Len(t, rs, 3)
}

func TestParseCriteria(t *testing.T) {
	c, err := ParseCriteria(`upnp:class derivedfrom "object.item.audioItem" and dc:title contains "alp"`)
	require.NoError(t, err)
	require.Len(t, c.Terms, 2)
	assert.Equal(t, Term{"upnp:class", "derivedfrom", "object.item.audioItem"}, c.Terms[0])

	c, err = ParseCriteria("*")
	require.NoError(t, err)
	assert.True(t, c.Any)

	_, err = ParseCriteria(`dc:title = "a" or dc:title = "b"`)
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = ParseCriteria(`garbage`)
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = ParseCriteria(`dc:title startswith "x"`)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestMemoryStore(t)
	c, err := ParseCriteria(`upnp:class derivedfrom "object.item.audioItem" and upnp:artist = "band"`)
	require.NoError(t, err)
	got, err := s.Search(ctx, RootID, c)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	c, _ = ParseCriteria(`(dc:title doesNotContain "a")`)
	got, err = s.Search(ctx, RootID, c)
	require.NoError(t, err)
	assert.Empty(t, got)

	// Containers are walked but never returned.
	c, _ = ParseCriteria(`dc:title contains "mus"`)
	got, err = s.Search(ctx, RootID, c)
	require.NoError(t, err)
	assert.Empty(t, got)
	c, _ = ParseCriteria("*")
	got, err = s.Search(ctx, RootID, c)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestClass(t *testing.T) {
	assert.Equal(t, "object.container.storageFolder", Class(&Resource{Kind: KindContainer}))
	assert.Equal(t, "object.item.videoItem", Class(&Resource{Kind: KindItem, MediaType: MediaVideo}))
	assert.Equal(t, "object.item.imageItem.photo", Class(&Resource{Kind: KindItem, MediaType: MediaImage}))
}

func TestMimeTypeByPath(t *testing.T) {
	assert.Equal(t, MimeType("video/x-matroska"), MimeTypeByPath("/a/b.MKV"))
	assert.Equal(t, MimeType("image/jpeg"), MimeTypeByPath("x.jpg"))
	assert.Equal(t, MimeType("application/octet-stream"), MimeTypeByPath("x.unknownext"))
	assert.True(t, MimeTypeByPath("a.mp3").IsAudio())
	assert.Equal(t, MediaVideo, MimeType("video/mp4").MediaType())
	assert.False(t, MimeType("text/plain").IsMedia())
}

func TestMimeTypeByContent(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	mt, err := MimeTypeByContent(strings.NewReader(string(png)))
	require.NoError(t, err)
	assert.Equal(t, MimeType("image/png"), mt)

	mt, err = MimeTypeByContent(strings.NewReader("plain"))
	require.NoError(t, err)
	assert.Equal(t, MimeType("application/octet-stream"), mt)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fakeProbe(_ context.Context, path string) (*ffprobe.Info, error) {
	switch filepath.Ext(path) {
	case ".mkv":
		return &ffprobe.Info{
			Format: map[string]interface{}{"duration": "120.500000", "bit_rate": "4000000"},
			Streams: []map[string]interface{}{
				{"codec_type": "video", "codec_name": "h264", "width": float64(1920), "height": float64(1080)},
				{"codec_type": "audio", "codec_name": "ac3", "channels": float64(6), "tags": map[string]interface{}{"language": "eng"}},
				{"codec_type": "audio", "codec_name": "aac", "channels": float64(2), "tags": map[string]interface{}{"language": "ger"}},
				{"codec_type": "subtitle", "codec_name": "subrip"},
			},
		}, nil
	case ".mp3":
		return &ffprobe.Info{
			Format: map[string]interface{}{
				"duration": "200.000000", "bit_rate": "320000",
				"tags": map[string]interface{}{"artist": "Band", "album": "Record", "genre": "Rock", "title": "Song"},
			},
		}, nil
	}
	return nil, os.ErrInvalid
}

func TestFileStoreScan(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Movies", "film.mkv"), "matroska")
	writeFile(t, filepath.Join(dir, "Movies", "film.en.srt"), "1\n00:00:01,000 --> 00:00:02,000\nhi\n")
	writeFile(t, filepath.Join(dir, "Music", "song.mp3"), "0123456789")
	writeFile(t, filepath.Join(dir, "Music", "list.m3u"), "#EXTM3U\nsong.mp3\nnotes.txt\n")
	writeFile(t, filepath.Join(dir, ".hidden", "x.mp3"), "x")
	writeFile(t, filepath.Join(dir, "readme.txt"), "x")

	counter := NewUpdateCounter(0, nil)
	s := NewFileStore(FileStoreOptions{Roots: []string{dir}, Probe: fakeProbe, Counter: counter})
	require.NoError(t, s.Scan(ctx))
	assert.EqualValues(t, 1, counter.Snapshot())

	top, err := s.Children(ctx, RootID)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, filepath.Base(dir), top[0].Title)
	assert.Equal(t, "Library", top[1].Title)

	folders, err := s.Children(ctx, top[0].ID)
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Equal(t, "Movies", folders[0].Title)
	assert.Equal(t, "Music", folders[1].Title)

	movies, err := s.Children(ctx, folders[0].ID)
	require.NoError(t, err)
	require.Len(t, movies, 2)
	film := movies[0]
	assert.Equal(t, "film", film.Title)
	assert.Equal(t, MediaVideo, film.MediaType)
	assert.Equal(t, 1920, film.Width)
	assert.Len(t, film.AudioTracks, 2)
	require.Len(t, film.Subtitles, 2)
	assert.False(t, film.Subtitles[0].External)
	assert.True(t, film.Subtitles[1].External)
	assert.Equal(t, "en", film.Subtitles[1].Lang)
	assert.False(t, film.Compatible)

	tf := movies[1]
	assert.Equal(t, TranscodeFolderName, tf.Title)
	variants, err := s.Children(ctx, tf.ID)
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.True(t, variants[0].InsideTranscodeFolder)
	assert.Equal(t, TranscodeEngine, variants[0].Engine)
	assert.Equal(t, "film [FFmpeg] {eng}", variants[0].Title)

	music, err := s.Children(ctx, folders[1].ID)
	require.NoError(t, err)
	require.Len(t, music, 2)
	assert.True(t, music[0].IsContainer(), "playlists sort with folders")
	entries, err := s.Children(ctx, music[0].ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "song", entries[0].Title)
	assert.Equal(t, "Song", music[1].Title)
	assert.Equal(t, "Band", music[1].Artist)

	artists, err := s.Children(ctx, s.LibraryFolder(LibraryArtist))
	require.NoError(t, err)
	require.Len(t, artists, 1)
	assert.Equal(t, "Band", artists[0].Title)
	all, err := s.Children(ctx, s.LibraryFolder(LibraryAll))
	require.NoError(t, err)
	assert.Len(t, all, 1)
	pls, err := s.Children(ctx, s.LibraryFolder(LibraryPlaylist))
	require.NoError(t, err)
	assert.Len(t, pls, 1)

	st, err := s.Open(ctx, music[1].ID, dlna.ByteRange{Start: 2, End: -1}, dlna.TimeRange{})
	require.NoError(t, err)
	defer st.Close()
	assert.EqualValues(t, 8, st.Available())
	b, _ := io.ReadAll(st)
	assert.Equal(t, "23456789", string(b))

	p, err := s.PathOf(music[1].ID)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Music", "song.mp3"), p)

	// Time seeks need a transcoder.
	_, err = s.Open(ctx, music[1].ID, dlna.ByteRange{}, dlna.TimeRange{Start: dlna.Seconds(10)})
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = s.OpenSegment(ctx, film.ID, transcode.Segment{Start: 0, End: 6})
	assert.ErrorIs(t, err, ErrUnsupported)

	c, _ := ParseCriteria(`upnp:class derivedfrom "object.item.videoItem"`)
	found, err := s.Search(ctx, top[0].ID, c)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, film.ID, found[0].ID)

	// The song is also in the playlist and in every library folder.
	c, _ = ParseCriteria(`upnp:class derivedfrom "object.item.audioItem"`)
	found, err = s.Search(ctx, RootID, c)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, music[1].ID, found[0].ID)
	assert.Equal(t, "Band", found[0].Artist)
}

func TestFileStoreThumbnail(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "song.mp3"), "x")
	writeFile(t, filepath.Join(dir, "cover.jpg"), "jpegdata")
	s := NewFileStore(FileStoreOptions{Roots: []string{dir}, Probe: fakeProbe})
	require.NoError(t, s.Scan(ctx))

	kids, err := s.Children(ctx, RootID+"$1")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	var song *Resource
	for _, k := range kids {
		if k.MediaType == MediaAudio {
			song = k
		}
	}
	require.NotNil(t, song)
	assert.True(t, song.HasThumbnail)
	rc, err := s.Thumbnail(ctx, song.ID)
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "jpegdata", string(b))
}

func TestRemoteStore(t *testing.T) {
	ctx := context.Background()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/browse":
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			if r.URL.Query().Get("id") != RootID {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode([]remoteItem{
				{ID: "d1", ParentID: RootID, IsDirectory: true, Title: "Shows", ChildCount: 3},
				{ID: "v1", ParentID: RootID, Title: "Clip", MimeType: "video/mp4", MediaURL: srv.URL + "/media/v1", Resolution: "1280x720", Duration: 30},
				{ID: "n1", ParentID: RootID, Title: "Notes", MimeType: "text/plain", MediaURL: srv.URL + "/media/n1"},
			})
		case "/item":
			if r.URL.Query().Get("id") != "v1" {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(remoteItem{ID: "v1", ParentID: RootID, Title: "Clip", MimeType: "video/mp4", MediaURL: srv.URL + "/media/v1"})
		case "/media/v1":
			assert.Equal(t, "bytes=3-", r.Header.Get("Range"))
			w.Header().Set("Content-Length", "7")
			w.WriteHeader(http.StatusPartialContent)
			io.WriteString(w, "3456789")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s, err := NewRemoteStore(RemoteOptions{BaseURL: srv.URL + "/", Token: "secret"})
	require.NoError(t, err)

	kids, err := s.Children(ctx, RootID)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.True(t, kids[0].IsContainer())
	assert.Equal(t, 3, kids[0].ChildCount)
	assert.Equal(t, 1280, kids[1].Width)
	assert.Equal(t, 30.0, kids[1].Duration)

	root, err := s.Resource(ctx, RootID)
	require.NoError(t, err)
	assert.Equal(t, 3, root.ChildCount)

	_, err = s.Resource(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	st, err := s.Open(ctx, "v1", dlna.ByteRange{Start: 3, End: -1}, dlna.TimeRange{})
	require.NoError(t, err)
	assert.EqualValues(t, 7, st.Available())
	b, err := io.ReadAll(st)
	require.NoError(t, err)
	st.Close()
	assert.Equal(t, "3456789", string(b))

	_, err = s.OpenSegment(ctx, "v1", transcode.Segment{})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Empty(t, s.LibraryFolder(LibraryAlbum))
}

func TestRemoteStoreBadRootCA(t *testing.T) {
	_, err := NewRemoteStore(RemoteOptions{BaseURL: "http://x", RootCAs: []string{"/nonexistent.pem"}})
	assert.Error(t, err)
}
