package session

import "sync"

// pageCursor tracks the conversation-list pagination token. An empty token
// from the server means the listing is exhausted.
type pageCursor struct {
	mu    sync.Mutex
	token string
	valid bool
}

func (p *pageCursor) set(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
	p.valid = token != ""
}

func (p *pageCursor) get() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, p.valid
}
