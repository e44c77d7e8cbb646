package store

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kksharma1618/mediaserver/dlna"
	"github.com/kksharma1618/mediaserver/transcode"
)

// remoteItem is an entry as the content provider API returns it.
type remoteItem struct {
	ID           string `json:"id"`
	ParentID     string `json:"parent_id"`
	IsDirectory  bool   `json:"is_directory"`
	Title        string `json:"title"`
	ChildCount   int    `json:"child_count,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	MediaURL     string `json:"media_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Size         int64  `json:"size,omitempty"`
	Bitrate      int    `json:"bitrate,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
	Artist       string `json:"artist,omitempty"`
	Album        string `json:"album,omitempty"`
	Genre        string `json:"genre,omitempty"`
}

type RemoteOptions struct {
	BaseURL string
	Token   string
	// RootCAs are PEM files trusted in addition to the system pool.
	RootCAs []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// RemoteStore browses a content provider over its JSON API and fetches
// media from the URLs it hands out.
type RemoteStore struct {
	base   string
	token  string
	client *http.Client
	// media has no overall timeout, streams run as long as the renderer
	// reads.
	media  *http.Client
	logger *slog.Logger
}

func NewRemoteStore(opts RemoteOptions) (*RemoteStore, error) {
	transport, err := remoteTransport(opts.RootCAs, opts.Logger)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RemoteStore{
		base:   strings.TrimSuffix(opts.BaseURL, "/"),
		token:  opts.Token,
		client: &http.Client{Transport: transport, Timeout: opts.Timeout},
		media:  &http.Client{Transport: transport},
		logger: opts.Logger,
	}, nil
}

func remoteTransport(rootCAFiles []string, logger *slog.Logger) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if len(rootCAFiles) == 0 {
		return t, nil
	}
	rootCAs, _ := x509.SystemCertPool()
	if rootCAs == nil {
		rootCAs = x509.NewCertPool()
	}
	for _, file := range rootCAFiles {
		certs, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading root CA %q: %w", file, err)
		}
		if ok := rootCAs.AppendCertsFromPEM(certs); !ok && logger != nil {
			logger.Warn("no certs appended, using system certs only", "file", file)
		}
	}
	t.TLSClientConfig = &tls.Config{RootCAs: rootCAs}
	return t, nil
}

func (s *RemoteStore) ID() string {
	return "remote"
}

func (s *RemoteStore) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
	if err != nil {
		return err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("content provider: %w", err)
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("content provider %s: %w", path, ErrNotFound)
	case res.StatusCode >= 300:
		return fmt.Errorf("content provider %s: %s", path, res.Status)
	}
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("content provider %s: decoding: %w", path, err)
	}
	return nil
}

func (s *RemoteStore) item(ctx context.Context, id string) (remoteItem, error) {
	var it remoteItem
	err := s.get(ctx, "/item?"+url.Values{"id": {id}}.Encode(), &it)
	return it, err
}

func (s *RemoteStore) Resource(ctx context.Context, id string) (*Resource, error) {
	if id == RootID {
		// Providers aren't required to describe their root.
		var kids []remoteItem
		if err := s.get(ctx, "/browse?"+url.Values{"id": {id}}.Encode(), &kids); err != nil {
			return nil, err
		}
		return &Resource{ID: RootID, ParentID: "-1", Kind: KindContainer, Title: "root", ChildCount: len(kids)}, nil
	}
	it, err := s.item(ctx, id)
	if err != nil {
		return nil, err
	}
	return it.resource(), nil
}

func (s *RemoteStore) Children(ctx context.Context, id string) ([]*Resource, error) {
	var items []remoteItem
	if err := s.get(ctx, "/browse?"+url.Values{"id": {id}}.Encode(), &items); err != nil {
		return nil, err
	}
	out := make([]*Resource, 0, len(items))
	for _, it := range items {
		r := it.resource()
		if r.Kind == KindItem && (it.MediaURL == "" || r.MediaType == MediaUnknown) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (it remoteItem) resource() *Resource {
	r := &Resource{
		ID:         it.ID,
		ParentID:   it.ParentID,
		Title:      it.Title,
		ChildCount: it.ChildCount,
	}
	if it.IsDirectory {
		r.Kind = KindContainer
		return r
	}
	mt := MimeType(it.MimeType)
	r.Kind = KindItem
	r.Mime = it.MimeType
	r.MediaType = mt.MediaType()
	r.Size = it.Size
	r.Bitrate = it.Bitrate
	r.Duration = float64(it.Duration)
	r.Artist, r.Album, r.Genre = it.Artist, it.Album, it.Genre
	r.Compatible = true
	r.HasThumbnail = it.ThumbnailURL != ""
	if w, h, ok := strings.Cut(it.Resolution, "x"); ok {
		r.Width, _ = strconv.Atoi(w)
		r.Height, _ = strconv.Atoi(h)
	}
	return r
}

func (s *RemoteStore) fetch(ctx context.Context, target string, br dlna.ByteRange) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if br.Start > 0 || br.End > 0 {
		end := ""
		if br.End > 0 {
			end = strconv.FormatInt(br.End, 10)
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%s", br.Start, end))
	}
	res, err := s.media.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 300 {
		res.Body.Close()
		if res.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", target, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %s", target, res.Status)
	}
	return res, nil
}

// Open forwards the byte range to the media URL. Time ranges are not
// supported by content providers and are ignored.
func (s *RemoteStore) Open(ctx context.Context, id string, br dlna.ByteRange, _ dlna.TimeRange) (Stream, error) {
	it, err := s.item(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.MediaURL == "" {
		return nil, fmt.Errorf("%q has no media: %w", id, ErrUnsupported)
	}
	res, err := s.fetch(ctx, it.MediaURL, br)
	if err != nil {
		return nil, err
	}
	available := res.ContentLength
	if br.Start > 0 && res.StatusCode == http.StatusOK {
		// Provider ignored the range.
		if _, err := io.CopyN(io.Discard, res.Body, br.Start); err != nil {
			res.Body.Close()
			return nil, err
		}
		if available >= 0 {
			available -= br.Start
		}
	}
	return ReaderStream(res.Body, available), nil
}

func (s *RemoteStore) OpenSegment(context.Context, string, transcode.Segment) (Stream, error) {
	return nil, fmt.Errorf("remote segments: %w", ErrUnsupported)
}

func (s *RemoteStore) Thumbnail(ctx context.Context, id string) (io.ReadCloser, error) {
	it, err := s.item(ctx, id)
	if err != nil {
		return nil, err
	}
	if it.ThumbnailURL == "" {
		return nil, fmt.Errorf("thumbnail %q: %w", id, ErrNotFound)
	}
	res, err := s.fetch(ctx, it.ThumbnailURL, dlna.ByteRange{})
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (s *RemoteStore) LibraryFolder(Library) string {
	return ""
}
