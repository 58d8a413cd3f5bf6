package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/fitback/internal/database"
	"github.com/iliyamo/fitback/internal/model"
	"github.com/iliyamo/fitback/internal/utils"
)

// Memory is an in-process store implementing Manager and
// database.Transactor.  It honours the same uniqueness and token rules as
// the MySQL tables and is used by tests and local runs without a database.
type Memory struct {
	txMu sync.Mutex

	mu      sync.Mutex
	users   map[uint64]model.User
	tokens  map[string]model.VerificationToken // by token hash
	nextUID uint64
	nextTID uint64
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:  map[uint64]model.User{},
		tokens: map[string]model.VerificationToken{},
		now:    time.Now,
	}
}

// SetClock replaces the time source, for expiry tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Memory) Users(database.DBTX) UserStore    { return memUsers{m} }
func (m *Memory) Tokens(database.DBTX) TokenLedger { return memTokens{m} }

func (m *Memory) Conn() database.DBTX { return nil }

// WithTx serialises transactions and restores the previous state when fn
// fails or panics.
func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx database.DBTX) error) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	users, tokens, uid, tid := cloneMap(m.users), cloneMap(m.tokens), m.nextUID, m.nextTID
	m.mu.Unlock()

	restore := func() {
		m.mu.Lock()
		m.users, m.tokens, m.nextUID, m.nextTID = users, tokens, uid, tid
		m.mu.Unlock()
	}
	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
		if err != nil {
			restore()
		}
	}()
	return fn(ctx, nil)
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type memUsers struct{ m *Memory }

func (s memUsers) Create(_ context.Context, u *model.User) (uint64, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	email, username := NormalizeEmail(u.Email), strings.TrimSpace(u.Username)
	for _, x := range m.users {
		if x.Email == email {
			return 0, ErrEmailExists
		}
		if x.Username == username {
			return 0, ErrUsernameExists
		}
	}
	m.nextUID++
	row := *u
	row.ID = m.nextUID
	row.Email = email
	row.Username = username
	row.CreatedAt = m.now().UTC()
	m.users[row.ID] = row
	return row.ID, nil
}

func (s memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	email = NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (s memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (s memUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := s.GetByEmail(ctx, email)
	return err == nil, nil
}

func (s memUsers) UsernameExists(_ context.Context, username string) (bool, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	username = strings.TrimSpace(username)
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s memUsers) update(id uint64, fn func(*model.User)) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	m.users[id] = u
	return nil
}

func (s memUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	return s.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (s memUsers) MarkEmailVerified(_ context.Context, id uint64) error {
	return s.update(id, func(u *model.User) { u.EmailVerified = true })
}

func (s memUsers) TouchLastActivity(_ context.Context, id uint64, at time.Time) error {
	at = at.UTC()
	return s.update(id, func(u *model.User) { u.LastActivityAt = &at })
}

func (s memUsers) UpdateProfile(_ context.Context, in *model.User) error {
	return s.update(in.ID, func(u *model.User) {
		u.Age, u.HeightCm, u.WeightKg, u.TargetWeightKg = in.Age, in.HeightCm, in.WeightKg, in.TargetWeightKg
		u.Sex, u.BMI, u.Goal = in.Sex, in.BMI, in.Goal
	})
}

func (s memUsers) Delete(_ context.Context, id uint64) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	for h, t := range m.tokens {
		if t.UserID == id {
			delete(m.tokens, h)
		}
	}
	return nil
}

func (s memUsers) List(_ context.Context, limit, offset int) ([]model.User, error) {
	m := s.m
	m.mu.Lock()
	all := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u)
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s memUsers) Count(context.Context) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return int64(len(s.m.users)), nil
}

type memTokens struct{ m *Memory }

func (s memTokens) Create(_ context.Context, userID uint64, typ model.TokenType, ttl time.Duration) (string, error) {
	if !typ.Valid() {
		return "", fmt.Errorf("unknown token type %q", typ)
	}
	raw, err := utils.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, t := range m.tokens {
		if t.UserID == userID && t.Type == typ && !t.Used {
			delete(m.tokens, h)
		}
	}
	m.nextTID++
	now := m.now().UTC()
	hash := utils.HashToken(raw)
	m.tokens[hash] = model.VerificationToken{
		ID: m.nextTID, UserID: userID, TokenHash: hash, Type: typ,
		ExpiresAt: now.Add(ttl), CreatedAt: now,
	}
	return raw, nil
}

func (s memTokens) Validate(_ context.Context, raw string, typ model.TokenType) (model.TokenOwner, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[utils.HashToken(raw)]
	if !ok || t.Used || t.Type != typ || !t.ExpiresAt.After(m.now().UTC()) {
		return model.TokenOwner{}, ErrNotFound
	}
	u, ok := m.users[t.UserID]
	if !ok {
		return model.TokenOwner{}, ErrNotFound
	}
	return model.TokenOwner{
		TokenID: t.ID, Type: t.Type, ExpiresAt: t.ExpiresAt,
		UserID: u.ID, Email: u.Email, Username: u.Username, EmailVerified: u.EmailVerified,
	}, nil
}

func (s memTokens) Consume(_ context.Context, raw string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	h := utils.HashToken(raw)
	if _, ok := s.m.tokens[h]; !ok {
		return ErrNotFound
	}
	delete(s.m.tokens, h)
	return nil
}

func (s memTokens) Purge(_ context.Context, now time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for h, t := range s.m.tokens {
		if t.ExpiresAt.Before(now) || t.Used {
			delete(s.m.tokens, h)
			n++
		}
	}
	return n, nil
}
