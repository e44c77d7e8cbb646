package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Term is one "property op value" clause of a search criteria string.
type Term struct {
	Property string
	Op       string
	Value    string
}

// Criteria is a conjunction of terms. Any matches everything.
type Criteria struct {
	Any   bool
	Terms []Term
}

var (
	termPattern = regexp.MustCompile(`(?i)^\(*\s*((?:dc|upnp):[A-Za-z]+|@id|@parentID|@refID)\s+([A-Za-z=!<>]+)\s+"(.*?)"\s*\)*$`)
	andPattern  = regexp.MustCompile(`(?i)\s+and\s+`)
	orPattern   = regexp.MustCompile(`(?i)\s+or\s+`)
)

// ParseCriteria parses the subset of UPnP search criteria that stores can
// evaluate: "*" or terms joined by "and". Anything else is ErrUnsupported,
// and callers fall back to browsing.
func ParseCriteria(s string) (Criteria, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Criteria{Any: true}, nil
	}
	if orPattern.MatchString(s) {
		return Criteria{}, fmt.Errorf("%w: disjunction in %q", ErrUnsupported, s)
	}
	var c Criteria
	for _, part := range andPattern.Split(s, -1) {
		m := termPattern.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return Criteria{}, fmt.Errorf("%w: search term %q", ErrUnsupported, part)
		}
		t := Term{Property: m[1], Op: strings.ToLower(m[2]), Value: m[3]}
		switch t.Op {
		case "=", "!=", "contains", "doesnotcontain", "derivedfrom", "exists":
		default:
			return Criteria{}, fmt.Errorf("%w: operator %q", ErrUnsupported, m[2])
		}
		c.Terms = append(c.Terms, t)
	}
	return c, nil
}

func (c Criteria) Match(r *Resource) bool {
	if c.Any {
		return true
	}
	for _, t := range c.Terms {
		if !t.match(r) {
			return false
		}
	}
	return true
}

func (t Term) match(r *Resource) bool {
	v := fold(property(r, t.Property))
	want := fold(t.Value)
	switch t.Op {
	case "=":
		return v == want
	case "!=":
		return v != want
	case "contains":
		return strings.Contains(v, want)
	case "doesnotcontain":
		return !strings.Contains(v, want)
	case "derivedfrom":
		return strings.HasPrefix(v, want)
	case "exists":
		return (v != "") == (want == "true")
	}
	return false
}

func property(r *Resource, name string) string {
	switch strings.ToLower(name) {
	case "dc:title":
		return r.Title
	case "dc:creator", "upnp:artist", "upnp:actor":
		return r.Artist
	case "upnp:album":
		return r.Album
	case "upnp:genre":
		return r.Genre
	case "dc:date":
		return r.Date
	case "upnp:class":
		return Class(r)
	case "@id":
		return r.ID
	case "@parentid":
		return r.ParentID
	}
	return ""
}

// Class is the upnp:class of r.
func Class(r *Resource) string {
	if r.IsContainer() {
		return "object.container.storageFolder"
	}
	switch r.MediaType {
	case MediaVideo:
		return "object.item.videoItem"
	case MediaAudio:
		return "object.item.audioItem.musicTrack"
	case MediaImage:
		return "object.item.imageItem.photo"
	}
	return "object.item"
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// SearchTree returns the items below containerID matching c. Each
// container's own items are matched before its subfolders are walked, so a
// file that also appears in playlists or library folders is reported once,
// under its own folder. Transcode folders are not descended into.
func SearchTree(ctx context.Context, s Store, containerID string, c Criteria) ([]*Resource, error) {
	var out []*Resource
	seen := make(map[string]bool)
	var walk func(id string) error
	walk = func(id string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		children, err := s.Children(ctx, id)
		if err != nil {
			return err
		}
		var folders []string
		for _, child := range children {
			if child.InsideTranscodeFolder || child.Title == TranscodeFolderName {
				continue
			}
			if child.IsContainer() {
				folders = append(folders, child.ID)
				continue
			}
			if child.Path != "" {
				if seen[child.Path] {
					continue
				}
				seen[child.Path] = true
			}
			if c.Match(child) {
				out = append(out, child)
			}
		}
		for _, f := range folders {
			if err := walk(f); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(containerID); err != nil {
		return nil, err
	}
	return out, nil
}
