package socket

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	managersMu sync.Mutex
	managers   = make(map[string]*Manager)
)

// Connect returns a socket for the namespace named by the uri path (or the
// Path option). Sockets to the same origin share a Manager unless ForceNew
// or Multiplex(false) is set, or the namespace is already open on it.
func Connect(uri string, opts ...Option) (*Socket, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("socket: invalid uri: %w", err)
	}
	nsp := o.Path
	if nsp == "" {
		nsp = u.Path
	}
	nsp = normalizeNamespace(nsp)
	key := cacheKey(u)

	managersMu.Lock()
	defer managersMu.Unlock()

	cached := managers[key]
	newConnection := o.ForceNew || !o.Multiplex || (cached != nil && cached.hasSocket(nsp))

	var m *Manager
	switch {
	case newConnection:
		m, err = NewManager(uri, opts...)
	case cached != nil:
		m = cached
	default:
		m, err = NewManager(uri, opts...)
		if err == nil {
			managers[key] = m
		}
	}
	if err != nil {
		return nil, err
	}
	return m.Socket(nsp), nil
}

func cacheKey(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	host := strings.ToLower(u.Host)
	if p := u.Port(); p == "" {
		if scheme == "https" {
			host += ":443"
		} else {
			host += ":80"
		}
	}
	return scheme + "://" + host
}
