package application

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/go-credential-service/internal/domain/apperror"
	"github.com/oksasatya/go-credential-service/internal/domain/entity"
	"github.com/oksasatya/go-credential-service/internal/domain/repository"
	"github.com/oksasatya/go-credential-service/pkg/token"
)

// memoryDB is a transactional in-memory credential table with unique
// email and phone columns.
type memoryDB struct {
	mu           sync.Mutex
	rows         map[uuid.UUID]entity.Credential
	beforeCommit func(db *memoryDB)
	beginErr     error
	commits      int
}

func newMemoryDB() *memoryDB {
	return &memoryDB{rows: map[uuid.UUID]entity.Credential{}}
}

func (db *memoryDB) Begin(context.Context) (repository.UnitOfWork, error) {
	if db.beginErr != nil {
		return nil, apperror.Storage("uow.begin", db.beginErr)
	}
	return &memoryUoW{db: db, staged: map[uuid.UUID]entity.Credential{}}, nil
}

func (db *memoryDB) count() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.rows)
}

func (db *memoryDB) get(id uuid.UUID) (entity.Credential, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.rows[id]
	return c, ok
}

// insertCommitted stores c as if another request had committed it.
func (db *memoryDB) insertCommitted(c *entity.Credential) {
	db.rows[c.ID] = *c
}

func conflictField(c entity.Credential, rows map[uuid.UUID]entity.Credential) repository.Field {
	for id, r := range rows {
		if id == c.ID {
			continue
		}
		if r.Email == c.Email {
			return repository.FieldEmail
		}
		if r.PhoneNumber == c.PhoneNumber {
			return repository.FieldPhone
		}
	}
	return ""
}

type memoryUoW struct {
	db       *memoryDB
	staged   map[uuid.UUID]entity.Credential
	inserted []uuid.UUID
	closed   bool
}

func (u *memoryUoW) Credentials() repository.CredentialRepository { return &memoryRepo{uow: u} }

func (u *memoryUoW) Commit(context.Context) error {
	if u.closed {
		return apperror.Storage("uow.commit", io.ErrClosedPipe)
	}
	u.closed = true
	if hook := u.db.beforeCommit; hook != nil {
		u.db.beforeCommit = nil
		hook(u.db)
	}
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	for _, id := range u.inserted {
		if f := conflictField(u.staged[id], u.db.rows); f != "" {
			return apperror.Storage("uow.commit", &repository.UniqueViolationError{Field: f, Constraint: "credentials_" + string(f) + "_key"})
		}
	}
	for id, c := range u.staged {
		u.db.rows[id] = c
	}
	u.db.commits++
	return nil
}

func (u *memoryUoW) Rollback(context.Context) error {
	u.closed = true
	return nil
}

func (u *memoryUoW) snapshot() map[uuid.UUID]entity.Credential {
	u.db.mu.Lock()
	defer u.db.mu.Unlock()
	out := make(map[uuid.UUID]entity.Credential, len(u.db.rows)+len(u.staged))
	for id, c := range u.db.rows {
		out[id] = c
	}
	for id, c := range u.staged {
		out[id] = c
	}
	return out
}

type memoryRepo struct {
	uow *memoryUoW
}

func (r *memoryRepo) Add(_ context.Context, c *entity.Credential) (*entity.Credential, error) {
	if !c.IsHashed() {
		return nil, entity.ErrPasswordNotHashed
	}
	if f := conflictField(*c, r.uow.snapshot()); f != "" {
		return nil, apperror.Storage("credential.add", &repository.UniqueViolationError{Field: f})
	}
	r.uow.staged[c.ID] = *c
	r.uow.inserted = append(r.uow.inserted, c.ID)
	return c, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Credential, error) {
	c, ok := r.uow.snapshot()[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *memoryRepo) FindOneMatchingAny(_ context.Context, filters ...repository.Filter) (*entity.Credential, error) {
	for _, c := range r.uow.snapshot() {
		for _, f := range filters {
			if matches(c, f) {
				found := c
				return &found, nil
			}
		}
	}
	return nil, nil
}

func (r *memoryRepo) FindOneMatchingAll(_ context.Context, filters ...repository.Filter) (*entity.Credential, error) {
	for _, c := range r.uow.snapshot() {
		all := true
		for _, f := range filters {
			all = all && matches(c, f)
		}
		if all {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) Update(_ context.Context, c *entity.Credential) (*entity.Credential, error) {
	if _, ok := r.uow.snapshot()[c.ID]; !ok {
		return nil, apperror.ErrUserNotFound
	}
	r.uow.staged[c.ID] = *c
	return c, nil
}

func matches(c entity.Credential, f repository.Filter) bool {
	switch f.Field {
	case repository.FieldID:
		return c.ID.String() == f.Value
	case repository.FieldEmail:
		return c.Email.String() == f.Value
	case repository.FieldPhone:
		return c.PhoneNumber.String() == f.Value
	case repository.FieldStatus:
		return string(c.Status) == f.Value
	case repository.FieldRole:
		return string(c.Role) == f.Value
	}
	return false
}

// memoryStore is an ephemeral store with a controllable clock.
type memoryStore struct {
	mu   sync.Mutex
	data map[string]storeEntry
	now  func() time.Time
	err  error
}

type storeEntry struct {
	value   string
	expires time.Time
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{data: map[string]storeEntry{}, now: now}
}

func (s *memoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return apperror.Cache("cache.set", s.err)
	}
	s.data[key] = storeEntry{value: value, expires: s.now().Add(ttl)}
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", false, apperror.Cache("cache.get", s.err)
	}
	e, ok := s.data[key]
	if !ok || !s.now().Before(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memoryStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}

type publishedEvent struct {
	topic string
	body  []byte
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
	onSend func()
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onSend != nil {
		p.onSend()
	}
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{topic: topic, body: body})
	return nil
}

type sentMail struct {
	body, to, subject string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, body, to, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{body: body, to: to, subject: subject})
	return nil
}

type recordingIndexer struct {
	mu    sync.Mutex
	views []entity.View
}

func (i *recordingIndexer) Index(_ context.Context, v entity.View) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.views = append(i.views, v)
	return nil
}

func (i *recordingIndexer) Search(_ context.Context, q string, _ int) ([]entity.View, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	var out []entity.View
	for _, v := range i.views {
		if v.Email == q || v.FirstName == q {
			out = append(out, v)
		}
	}
	return out, nil
}

// inlineScheduler runs each job immediately on a fresh background context
// and records its name and result.
type inlineScheduler struct {
	mu   sync.Mutex
	jobs []string
	errs []error
}

func (s *inlineScheduler) Submit(name string, job func(ctx context.Context) error) bool {
	err := job(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, name)
	s.errs = append(s.errs, err)
	return true
}

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

type harness struct {
	svc        *CredentialService
	db         *memoryDB
	reset      *memoryStore
	activation *memoryStore
	events     *recordingPublisher
	mail       *recordingMailer
	indexer    *recordingIndexer
	scheduler  *inlineScheduler
	now        time.Time
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		db:        newMemoryDB(),
		events:    &recordingPublisher{},
		mail:      &recordingMailer{},
		indexer:   &recordingIndexer{},
		scheduler: &inlineScheduler{},
		now:       time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	h.reset = newMemoryStore(clock)
	h.activation = newMemoryStore(clock)

	tokens, err := token.NewService(token.Options{
		PrivateKey: signingKey(t),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Issuer:     "credential-service",
	})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	h.svc, err = NewCredentialService(Config{
		AppName:           "Credentials",
		UserTopic:         "user",
		ResetTokenTTL:     6000 * time.Second,
		ActivationCodeTTL: 24 * time.Hour,
		ActivateURL:       "https://accounts.example.com/api/v1/auth/activate",
		ResetPasswordURL:  "https://accounts.example.com/reset-password",
		BcryptCost:        bcrypt.MinCost,
	}, Deps{
		UnitOfWork:      h.db,
		Tokens:          tokens,
		ResetStore:      h.reset,
		ActivationStore: h.activation,
		Events:          h.events,
		Mail:            h.mail,
		Indexer:         h.indexer,
		Scheduler:       h.scheduler,
		Logger:          logger,
	})
	require.NoError(t, err)
	return h
}
