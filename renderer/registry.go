package renderer

import (
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Registry tracks renderers by UUID and by address. Renderers are created
// on first contact and never removed while the server runs.
type Registry struct {
	profiles []Profile
	fallback Profile

	mu     sync.RWMutex
	byUUID map[string]*Renderer
	byAddr map[string]*Renderer
}

func NewRegistry(profiles []Profile, fallback Profile) *Registry {
	return &Registry{
		profiles: profiles,
		fallback: fallback,
		byUUID:   make(map[string]*Renderer),
		byAddr:   make(map[string]*Renderer),
	}
}

// Match returns the first profile whose User-Agent substring occurs in ua.
func Match(profiles []Profile, ua string) (Profile, bool) {
	ua = strings.ToLower(ua)
	for _, p := range profiles {
		if p.UserAgent != "" && strings.Contains(ua, strings.ToLower(p.UserAgent)) {
			return p, true
		}
	}
	return Profile{}, false
}

// hostOf strips the port from a remote address. Renderers open a new
// connection per request.
func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (g *Registry) ByUUID(id string) (*Renderer, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.byUUID[id]
	return r, ok
}

func (g *Registry) ByAddress(addr string) (*Renderer, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.byAddr[hostOf(addr)]
	return r, ok
}

// Resolve returns the renderer at addr, creating it with a fresh UUID and
// the profile matching userAgent if it is new.
func (g *Registry) Resolve(addr, userAgent string) *Renderer {
	host := hostOf(addr)
	if r, ok := g.ByAddress(host); ok {
		r.seen(userAgent)
		return r
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.byAddr[host]; ok {
		r.seen(userAgent)
		return r
	}
	p, ok := Match(g.profiles, userAgent)
	if !ok {
		p = g.fallback
	}
	r := &Renderer{UUID: uuid.NewString(), Address: host, Profile: p}
	r.seen(userAgent)
	g.byUUID[r.UUID] = r
	g.byAddr[host] = r
	return r
}

// Put registers r, replacing any renderer with the same UUID or address.
func (g *Registry) Put(r *Renderer) {
	r.Address = hostOf(r.Address)
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.byUUID[r.UUID]; ok && old.Address != r.Address {
		delete(g.byAddr, old.Address)
	}
	if old, ok := g.byAddr[r.Address]; ok && old.UUID != r.UUID {
		delete(g.byUUID, old.UUID)
	}
	g.byUUID[r.UUID] = r
	g.byAddr[r.Address] = r
}

// Snapshot returns the known renderers ordered by address. The slice is
// the caller's.
func (g *Registry) Snapshot() []*Renderer {
	g.mu.RLock()
	out := make([]*Renderer, 0, len(g.byUUID))
	for _, r := range g.byUUID {
		out = append(out, r)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
