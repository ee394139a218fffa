// Package memory is an in-process credential store for local development and
// tests. Data does not survive a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carelink-solutions/carelink-auth/internal/domain"
	apperrors "github.com/carelink-solutions/carelink-auth/pkg/errors"
)

// UserRepository implements repository.UserRepository with maps guarded by a
// mutex. Callers receive copies, never the stored records.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[u.Email]; taken {
		return apperrors.AlreadyExists("user", "email", u.Email)
	}

	now := r.now()
	u.ID = uuid.NewString()
	u.CreatedAt, u.UpdatedAt = now, now

	r.byID[u.ID] = clone(u)
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	return clone(u), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]domain.User, int, error) {
	r.mu.RLock()
	all := make([]domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		all = append(all, *clone(u))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	if offset >= total {
		return []domain.User{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *UserRepository) Update(ctx context.Context, u *domain.User, bumpTokenVersion bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[u.ID]
	if !ok {
		return apperrors.NotFound("user", u.ID)
	}
	if owner, taken := r.byEmail[u.Email]; taken && owner != u.ID {
		return apperrors.AlreadyExists("user", "email", u.Email)
	}

	delete(r.byEmail, existing.Email)
	u.TokenVersion = existing.TokenVersion
	if bumpTokenVersion {
		u.TokenVersion++
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = r.now()
	r.byID[u.ID] = clone(u)
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	delete(r.byID, id)
	delete(r.byEmail, u.Email)
	return u, nil
}

func (r *UserRepository) IncrementTokenVersion(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return 0, apperrors.NotFound("user", id)
	}
	u.TokenVersion++
	u.UpdatedAt = r.now()
	return u.TokenVersion, nil
}

func clone(u *domain.User) *domain.User {
	c := *u
	if u.CaregiverID != nil {
		v := *u.CaregiverID
		c.CaregiverID = &v
	}
	if u.PatientID != nil {
		v := *u.PatientID
		c.PatientID = &v
	}
	return &c
}
