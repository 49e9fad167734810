package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/beststore/accounts/internal/domain/user"
)

// UsersRepo is an in-process account directory. The email index plays the
// role of the unique constraint.
type UsersRepo struct {
	mu      sync.RWMutex
	nextID  int64
	items   map[int64]user.User
	byEmail map[string]int64
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:   make(map[int64]user.User),
		byEmail: make(map[string]int64),
	}
}

func (r *UsersRepo) FindByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.items[id], nil
}

func (r *UsersRepo) FindByID(_ context.Context, id int64) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) CountByEmail(_ context.Context, email string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.byEmail[email]; ok {
		return 1, nil
	}
	return 0, nil
}

func (r *UsersRepo) Create(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[u.Email]; taken {
		return user.User{}, user.ErrEmailAlreadyUsed
	}

	r.nextID++
	u.ID = r.nextID
	r.items[u.ID] = u
	r.byEmail[u.Email] = u.ID

	return u, nil
}

func (r *UsersRepo) Save(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[u.ID]
	if !ok {
		return user.ErrNotFound
	}

	if owner, taken := r.byEmail[u.Email]; taken && owner != u.ID {
		return user.ErrEmailAlreadyUsed
	}

	// id and creation time are immutable
	u.CreatedAt = current.CreatedAt

	delete(r.byEmail, current.Email)
	r.byEmail[u.Email] = u.ID
	r.items[u.ID] = u

	return nil
}

// List returns every user, newest first.
func (r *UsersRepo) List(_ context.Context) ([]user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Len is the number of stored users.
func (r *UsersRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
