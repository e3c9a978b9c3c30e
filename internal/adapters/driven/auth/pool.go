package auth

import (
	"strings"
	"sync"

	"github.com/custodia-labs/devtrawl/internal/core/domain"
	"github.com/custodia-labs/devtrawl/internal/core/ports/driven"
)

// Ensure Pool implements the interface.
var _ driven.CredentialPool = (*Pool)(nil)

// Pool is a round-robin set of Personal Access Tokens. PATs don't expire
// and don't require refresh; a token that is rate limited is rotated away
// from and comes back into use once the rotation wraps around.
//
// The index is the only shared mutable state of a crawl, so every read and
// update happens under one mutex.
type Pool struct {
	mu      sync.Mutex
	creds   []domain.Credential
	current int
}

// NewPool creates a pool from tokens in rotation order. Blank and repeated
// tokens are dropped. If nothing usable remains it returns
// domain.ErrNoCredentials.
func NewPool(tokens []string) (*Pool, error) {
	seen := make(map[string]struct{}, len(tokens))
	creds := make([]domain.Credential, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		creds = append(creds, domain.Credential{Index: len(creds), Token: t})
	}

	if len(creds) == 0 {
		return nil, domain.ErrNoCredentials
	}
	return &Pool{creds: creds}, nil
}

// Current returns the active credential.
func (p *Pool) Current() domain.Credential {
	if p == nil {
		return domain.Credential{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.creds) == 0 {
		return domain.Credential{}
	}
	return p.creds[p.current]
}

// Rotate advances to the next credential and returns it.
func (p *Pool) Rotate() domain.Credential {
	if p == nil {
		return domain.Credential{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.creds) == 0 {
		return domain.Credential{}
	}
	p.current = (p.current + 1) % len(p.creds)
	return p.creds[p.current]
}

// Advance rotates only if from is still the active index.
func (p *Pool) Advance(from int) domain.Credential {
	if p == nil {
		return domain.Credential{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.creds) == 0 {
		return domain.Credential{}
	}
	if p.current == from {
		p.current = (p.current + 1) % len(p.creds)
	}
	return p.creds[p.current]
}

// Size returns the number of credentials.
func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}
