package memory

import (
	"context"
	"sync"
	"time"

	"github.com/beststore/accounts/internal/domain/reset"
)

type PasswordResetsRepo struct {
	mu      sync.Mutex
	nextID  int64
	now     func() time.Time
	byHash  map[string]reset.Request
	byEmail map[string]string // email -> token hash
}

func NewPasswordResetsRepo() *PasswordResetsRepo {
	return &PasswordResetsRepo{
		now:     time.Now,
		byHash:  make(map[string]reset.Request),
		byEmail: make(map[string]string),
	}
}

// WithClock swaps the time source used for creation timestamps.
func (r *PasswordResetsRepo) WithClock(now func() time.Time) *PasswordResetsRepo {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
	return r
}

func (r *PasswordResetsRepo) Issue(_ context.Context, email string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byEmail[email]; ok {
		delete(r.byHash, old)
	}

	req := reset.New(email, r.now())
	r.nextID++
	req.ID = r.nextID

	hash := reset.HashToken(req.Token)
	stored := req
	stored.Token = ""
	r.byHash[hash] = stored
	r.byEmail[email] = hash

	return req.Token, nil
}

func (r *PasswordResetsRepo) Find(_ context.Context, token string) (reset.Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.byHash[reset.HashToken(token)]
	if !ok {
		return reset.Request{}, reset.ErrNotFound
	}
	req.Token = token
	return req, nil
}

func (r *PasswordResetsRepo) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := reset.HashToken(token)
	req, ok := r.byHash[hash]
	if !ok {
		return reset.ErrNotFound
	}

	delete(r.byHash, hash)
	if r.byEmail[req.Email] == hash {
		delete(r.byEmail, req.Email)
	}
	return nil
}

func (r *PasswordResetsRepo) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged int64
	for hash, req := range r.byHash {
		if !req.CreatedAt.After(cutoff) {
			delete(r.byHash, hash)
			if r.byEmail[req.Email] == hash {
				delete(r.byEmail, req.Email)
			}
			purged++
		}
	}
	return purged, nil
}

// Len is the number of live requests.
func (r *PasswordResetsRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHash)
}
