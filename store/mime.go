package store

import (
	"io"
	"mime"
	"path"
	"strings"

	"github.com/h2non/filetype"
)

// MimeType is a media type with the helpers the DIDL renderer needs.
type MimeType string

func (m MimeType) Type() string {
	return strings.SplitN(string(m), "/", 2)[0]
}

func (m MimeType) IsVideo() bool { return m.Type() == "video" }
func (m MimeType) IsAudio() bool { return m.Type() == "audio" }
func (m MimeType) IsImage() bool { return m.Type() == "image" }

func (m MimeType) IsMedia() bool {
	return m.IsVideo() || m.IsAudio() || m.IsImage()
}

func (m MimeType) MediaType() MediaType {
	switch {
	case m.IsVideo():
		return MediaVideo
	case m.IsAudio():
		return MediaAudio
	case m.IsImage():
		return MediaImage
	}
	return MediaUnknown
}

// Extensions mime.TypeByExtension gets wrong or doesn't know on common
// systems.
var extraTypes = map[string]string{
	".mkv":  "video/x-matroska",
	".ts":   "video/mp2t",
	".m2ts": "video/mp2t",
	".mts":  "video/mp2t",
	".vob":  "video/mpeg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".srt":  "text/srt",
	".vtt":  "text/vtt",
	".m3u8": "application/vnd.apple.mpegurl",
	".webp": "image/webp",
}

// MimeTypeByPath guesses from the file extension.
func MimeTypeByPath(filePath string) MimeType {
	ext := strings.ToLower(path.Ext(filePath))
	if t, ok := extraTypes[ext]; ok {
		return MimeType(t)
	}
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	if t == "" {
		return "application/octet-stream"
	}
	return MimeType(t)
}

// MimeTypeByContent sniffs the leading bytes of r.
func MimeTypeByContent(r io.Reader) (MimeType, error) {
	head := make([]byte, 261)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	kind, err := filetype.Match(head[:n])
	if err != nil {
		return "", err
	}
	if kind == filetype.Unknown {
		return "application/octet-stream", nil
	}
	return MimeType(kind.MIME.Value), nil
}
