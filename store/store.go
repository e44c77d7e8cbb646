package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"

	"github.com/kksharma1618/mediaserver/dlna"
	"github.com/kksharma1618/mediaserver/transcode"
)

var (
	ErrNotFound     = errors.New("store: no such object")
	ErrNotContainer = errors.New("store: object is not a container")
	ErrUnsupported  = errors.New("store: operation not supported")
)

// RootID is the id of the top of every store's tree.
const RootID = "0"

type Kind int

const (
	KindContainer Kind = iota
	KindItem
)

type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaVideo
	MediaAudio
	MediaImage
)

func (t MediaType) String() string {
	switch t {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	case MediaImage:
		return "image"
	}
	return "unknown"
}

type AudioTrack struct {
	ID       int
	Lang     string
	Title    string
	Codec    string
	Channels int
}

type Subtitle struct {
	ID     int
	Lang   string
	Title  string
	Format string // srt, vtt, ass, ...
	// External tracks live in their own file at Path; embedded ones can
	// only be reached through a transcode.
	External bool
	Path     string
}

func (s Subtitle) IsText() bool {
	switch s.Format {
	case "srt", "subrip", "vtt", "webvtt", "ass", "ssa", "mov_text":
		return true
	}
	return false
}

type Chapter struct {
	Start float64
	End   float64
	Title string
}

// Resource is a container or an item of a store. The flags on it replace
// what would otherwise be subclasses: virtual transcode folder entries,
// played marks, resume points.
type Resource struct {
	ID       string
	ParentID string
	Kind     Kind
	Title    string
	// ChildCount is only meaningful for containers.
	ChildCount int

	Path      string
	Mime      string
	MediaType MediaType
	Size      int64
	// Duration in seconds, zero when unknown.
	Duration float64
	Bitrate  int
	Width    int
	Height   int

	VideoCodec  string
	AudioTracks []AudioTrack
	Subtitles   []Subtitle
	Chapters    []Chapter

	Artist string
	Album  string
	Genre  string
	Date   string

	// Compatible reports whether the file can be streamed as is. Items that
	// aren't are only offered through the transcode folder.
	Compatible bool
	// Engine names the transcoding engine used to deliver the item, empty
	// for direct streaming.
	Engine string
	// InsideTranscodeFolder marks the variants listed in the
	// #--TRANSCODE--# folder. They are offered regardless of compatibility.
	InsideTranscodeFolder bool
	FullyPlayed           bool
	// Flags are overlay labels painted on the thumbnail.
	Flags      []string
	SplitRange dlna.TimeRange

	HasThumbnail bool
}

func (r *Resource) IsContainer() bool {
	return r.Kind == KindContainer
}

// ExternalSubtitle returns the first sidecar subtitle, if any.
func (r *Resource) ExternalSubtitle() (Subtitle, bool) {
	for _, s := range r.Subtitles {
		if s.External {
			return s, true
		}
	}
	return Subtitle{}, false
}

// Stream is the body of a resource. Available reports how many bytes can
// still be read, or -1 when that is unknown.
type Stream interface {
	io.ReadCloser
	Available() int64
}

// Library folders some clients address by fixed ids.
type Library int

const (
	LibraryAll Library = iota
	LibraryAlbum
	LibraryArtist
	LibraryGenre
	LibraryPlaylist
)

// Store is the resource tree the ContentDirectory and media engine serve.
type Store interface {
	// ID identifies the store in feature lists.
	ID() string
	Resource(ctx context.Context, id string) (*Resource, error)
	// Children returns the direct children of a container, in order.
	Children(ctx context.Context, id string) ([]*Resource, error)
	Open(ctx context.Context, id string, br dlna.ByteRange, tr dlna.TimeRange) (Stream, error)
	OpenSegment(ctx context.Context, id string, seg transcode.Segment) (Stream, error)
	// Thumbnail returns the source image the thumbnail is rendered from.
	Thumbnail(ctx context.Context, id string) (io.ReadCloser, error)
	// LibraryFolder returns the id of a library folder, or "" when the
	// store has none.
	LibraryFolder(l Library) string
}

// Searcher is implemented by stores that evaluate search criteria
// themselves.
type Searcher interface {
	Search(ctx context.Context, containerID string, c Criteria) ([]*Resource, error)
}

// UpdateCounter is the SystemUpdateID. It only increases.
type UpdateCounter struct {
	v        atomic.Uint64
	onChange func(uint64)
}

func NewUpdateCounter(initial uint64, onChange func(uint64)) *UpdateCounter {
	c := &UpdateCounter{onChange: onChange}
	c.v.Store(initial)
	return c
}

func (c *UpdateCounter) Increment() uint64 {
	n := c.v.Add(1)
	if c.onChange != nil {
		c.onChange(n)
	}
	return n
}

func (c *UpdateCounter) Snapshot() uint64 {
	return c.v.Load()
}

// FilterByName keeps the resources whose title contains s, ignoring case.
func FilterByName(rs []*Resource, s string) []*Resource {
	needle := fold(s)
	out := rs[:0:0]
	for _, r := range rs {
		if strings.Contains(fold(r.Title), needle) {
			out = append(out, r)
		}
	}
	return out
}
