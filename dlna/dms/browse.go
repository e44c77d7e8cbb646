package dms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kksharma1618/mediaserver/renderer"
	"github.com/kksharma1618/mediaserver/store"
	"github.com/kksharma1618/mediaserver/upnp"
	"github.com/kksharma1618/mediaserver/upnpav"
)

const (
	browseDirectChildren = "BrowseDirectChildren"
	browseMetadata       = "BrowseMetadata"
)

// browseRequest binds both Browse and Search arguments. Search only sends
// ContainerID and SearchCriteria.
type browseRequest struct {
	ObjectID       string
	ContainerID    string
	BrowseFlag     string
	Filter         string
	StartingIndex  int
	RequestedCount int
	SearchCriteria string
	SortCriteria   string
}

// xbox360Folder is what an Xbox 360 shorthand container id stands for.
type xbox360Folder struct {
	library store.Library
	// artistSearch containers carry an upnp:artist term in the raw body.
	artistSearch bool
}

var xbox360Containers = map[string]xbox360Folder{
	"7": {library: store.LibraryAlbum},
	"6": {library: store.LibraryArtist},
	"5": {library: store.LibraryGenre},
	"F": {library: store.LibraryPlaylist},
	"4": {library: store.LibraryAll},
	"1": {library: store.LibraryArtist, artistSearch: true},
}

func xbox360Container(id string) (xbox360Folder, bool) {
	f, ok := xbox360Containers[id]
	return f, ok
}

// enclosingValue returns the text between the first left and the next
// right after it, or false when either is missing. It works on raw,
// possibly malformed, request bodies.
func enclosingValue(content, left, right string) (string, bool) {
	i := strings.Index(content, left)
	if i < 0 {
		return "", false
	}
	start := i + len(left)
	j := strings.Index(content[start:], right)
	if j < 0 {
		return "", false
	}
	return content[start : start+j], true
}

// browseSearch implements Browse and Search. Search always lists
// children, filtered by its criteria.
func (me *Server) browseSearch(ctx context.Context, rend *renderer.Renderer, req browseRequest, body []byte, search bool, host string) ([][2]string, error) {
	xbox := rend.Profile.Xbox360
	objectID := req.ObjectID
	containerID := req.ContainerID
	if objectID == "" {
		if containerID == "" || (xbox && !strings.Contains(containerID, "$")) {
			objectID = store.RootID
		} else {
			objectID = containerID
			containerID = ""
		}
	} else {
		containerID = ""
	}
	direct := search || req.BrowseFlag == browseDirectChildren
	if !direct && req.BrowseFlag != browseMetadata {
		return nil, upnp.Errorf(upnp.ArgumentValueInvalidErrorCode, "unhandled browse flag: %v", req.BrowseFlag)
	}

	var (
		nameFilter string
		criteria   string
	)
	if xbox && containerID != "" {
		if f, ok := xbox360Container(containerID); ok {
			folder := me.Store.LibraryFolder(f.library)
			switch {
			case f.artistSearch:
				if artist, ok := enclosingValue(string(body), "upnp:artist = &quot;", "&quot;)"); ok && folder != "" {
					objectID = folder
					nameFilter = artist
				}
			case folder != "":
				objectID = folder
			}
		}
	} else if search {
		criteria = req.SearchCriteria
	}

	parent, err := me.Store.Resource(ctx, objectID)
	if err != nil {
		return nil, me.noSuchObject(objectID, err)
	}
	var entries []*store.Resource
	switch {
	case !direct:
		entries = []*store.Resource{parent}
	case criteria != "":
		entries, err = me.search(ctx, objectID, criteria)
	default:
		entries, err = me.Store.Children(ctx, objectID)
	}
	if err != nil {
		return nil, me.noSuchObject(objectID, err)
	}
	if nameFilter != "" {
		entries = store.FilterByName(entries, nameFilter)
		if xbox && len(entries) > 0 && entries[0].IsContainer() {
			drill := entries[0].ID
			if entries, err = me.Store.Children(ctx, drill); err != nil {
				return nil, me.noSuchObject(drill, err)
			}
		}
	}
	// Read once, after the listing, and reported by the whole response.
	updateID := me.updateIDString()
	total := len(entries)
	entries = paginate(entries, req.StartingIndex, req.RequestedCount)

	fakeParent := ""
	if xbox {
		fakeParent = containerID
	}
	transcodeFolder := len(entries) > 0 && entries[0].InsideTranscodeFolder
	var (
		sb    strings.Builder
		minus int
	)
	for _, res := range entries {
		if !res.IsContainer() && !transcodeFolder && !me.playable(res, rend) {
			minus++
			continue
		}
		obj := me.didlObject(res, rend, host, fakeParent)
		s, err := upnpav.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("rendering %q: %w", res.ID, err)
		}
		sb.WriteString(s)
	}
	returned := len(entries) - minus

	var totalMatches int
	switch {
	case direct && rend.Profile.UseMediaInfo && rend.Profile.DLNATreeHack:
		totalMatches = req.StartingIndex + req.RequestedCount + 1
		if returned <= 0 {
			totalMatches = req.StartingIndex
		}
	case direct:
		totalMatches = total - minus
	default:
		totalMatches = 1
	}
	return [][2]string{
		{"Result", upnpav.DIDLLite(sb.String())},
		{"NumberReturned", strconv.Itoa(returned)},
		{"TotalMatches", strconv.Itoa(totalMatches)},
		{"UpdateID", updateID},
	}, nil
}

// search evaluates criteria below containerID. Stores that can't search,
// or criteria they can't parse, fall back to listing the children.
func (me *Server) search(ctx context.Context, containerID, criteria string) ([]*store.Resource, error) {
	if s, ok := me.Store.(store.Searcher); ok {
		c, err := store.ParseCriteria(criteria)
		if err == nil {
			return s.Search(ctx, containerID, c)
		}
		me.cdsLog.Debug("search falls back to browse",
			slog.String("criteria", criteria),
			slog.String("error", err.Error()))
	}
	return me.Store.Children(ctx, containerID)
}

func (me *Server) noSuchObject(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotContainer) {
		return upnp.Errorf(upnpav.NoSuchObjectErrorCode, "no such object %q", id)
	}
	return err
}

// paginate slices rs to the requested window. A zero count means all
// remaining entries.
func paginate(rs []*store.Resource, start, count int) []*store.Resource {
	if start == 0 && count == 0 {
		return rs
	}
	start = max(min(start, len(rs)), 0)
	end := len(rs)
	if count > 0 && start+count < end {
		end = start + count
	}
	return rs[start:end]
}

// playable reports whether an item can be offered to rend, either as is
// or through its transcoding engine.
func (me *Server) playable(res *store.Resource, rend *renderer.Renderer) bool {
	if !res.Compatible {
		return false
	}
	if res.Engine != "" {
		return rend.SupportsEngine(res.Engine)
	}
	return rend.SupportsMime(res.Mime)
}
