// Package session maps browser sessions to dashboard controllers.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"txdash/internal/cache"
	"txdash/internal/dashboard"
	"txdash/internal/log"
)

// CookieName is the cookie carrying the session id.
const CookieName = "txdash_session"

// Factory builds the controller for a new session.
type Factory func(id string) *dashboard.Controller

// Registry holds one controller per session in an LRU cache with a sliding TTL.
// Controllers that leave the cache are closed.
type Registry struct {
	sessions *cache.LRUCache[*dashboard.Controller]
	factory  Factory
	ttl      time.Duration
	secure   bool
	now      func() time.Time
	group    singleflight.Group
	closing  sync.WaitGroup
	logger   *log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(r *Registry) { r.secure = secure }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock is used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry returns a registry holding at most maxSessions controllers.
func NewRegistry(factory Factory, maxSessions int, ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{factory: factory, ttl: ttl, now: time.Now, logger: log.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent(log.ComponentSession)
	r.sessions = cache.NewLRUCache(maxSessions, ttl,
		cache.WithSlidingTTL[*dashboard.Controller](),
		cache.WithClock[*dashboard.Controller](r.now),
		cache.WithEvictFunc[*dashboard.Controller](r.evicted))
	return r
}

func (r *Registry) evicted(id string, c *dashboard.Controller) {
	r.logger.Debug("Session closed", log.FieldSessionID, id)
	r.closing.Add(1)
	go func() {
		defer r.closing.Done()
		c.Close()
	}()
}

// Lookup returns the controller for id without creating one.
func (r *Registry) Lookup(id string) (*dashboard.Controller, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	return r.sessions.Get(id)
}

// Resolve returns the controller for the request's session, creating a new
// session when the cookie is missing, malformed or refers to an expired
// session. The session cookie is (re)written on every call so its lifetime
// follows the sliding TTL. Concurrent requests presenting the same stale id
// share a single new session.
func (r *Registry) Resolve(w http.ResponseWriter, req *http.Request) (string, *dashboard.Controller) {
	presented := ""
	if ck, err := req.Cookie(CookieName); err == nil {
		presented = ck.Value
		if c, ok := r.Lookup(presented); ok {
			r.setCookie(w, presented)
			return presented, c
		}
	}

	var id string
	var c *dashboard.Controller
	if presented == "" {
		id, c = r.create()
	} else {
		v, _, _ := r.group.Do(presented, func() (any, error) {
			id, c := r.create()
			return created{id: id, c: c}, nil
		})
		res := v.(created)
		id, c = res.id, res.c
	}

	r.setCookie(w, id)
	return id, c
}

type created struct {
	id string
	c  *dashboard.Controller
}

func (r *Registry) create() (string, *dashboard.Controller) {
	id := uuid.NewString()
	c := r.factory(id)
	r.sessions.Set(id, c)
	r.logger.Info("Session created", log.FieldSessionID, id, "sessions", r.sessions.Size())
	return id, c
}

func (r *Registry) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(r.ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Cleaner exposes the session cache to a cache.Manager sweep.
func (r *Registry) Cleaner() cache.Cleaner {
	return r.sessions
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Close closes every session and waits for their in-flight fetches.
func (r *Registry) Close() {
	n := r.sessions.Purge()
	r.closing.Wait()
	r.logger.Info("All sessions closed", "sessions", n)
}
