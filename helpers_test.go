package authkernel

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/authkernel/authkernel/ratelimit"
	"github.com/authkernel/authkernel/rbac"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memUserStore is an in-memory UserStore for engine tests.
type memUserStore struct {
	mu    sync.RWMutex
	users map[string]*UserRecord
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*UserRecord)}
}

func cloneUser(u *UserRecord) *UserRecord {
	out := *u
	out.Roles = append([]rbac.Role(nil), u.Roles...)
	return &out
}

func (s *memUserStore) GetByID(_ context.Context, id string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, ErrUserNotFound
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memUserStore) GetByUsername(_ context.Context, username string) (*UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memUserStore) UsernameExists(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memUserStore) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memUserStore) List(_ context.Context, opts ListOptions) ([]UserRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []UserRecord
	query := strings.ToLower(opts.Query)
	for _, u := range s.users {
		if query != "" &&
			!strings.Contains(strings.ToLower(u.Username), query) &&
			!strings.Contains(strings.ToLower(u.Email), query) {
			continue
		}
		all = append(all, *cloneUser(u))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

	total := len(all)
	if opts.Offset > len(all) {
		return nil, total, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, total, nil
}

func (s *memUserStore) SaveWithRoles(_ context.Context, user *UserRecord, roleNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.users {
		if id == user.ID {
			continue
		}
		if strings.EqualFold(existing.Username, user.Username) ||
			strings.EqualFold(existing.Email, user.Email) {
			return ErrAlreadyExists
		}
	}

	stored := cloneUser(user)
	stored.Roles = nil
	for _, name := range roleNames {
		stored.Roles = append(stored.Roles, rbac.Role{ID: "role-" + name, Name: name})
	}
	s.users[user.ID] = stored
	return nil
}

func (s *memUserStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *memUserStore) SetActive(_ context.Context, userID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Active = active
	return nil
}

// memRoleStore is an in-memory RoleStore. Permission sets are assigned
// per user id; permLoads counts PermissionsForUser calls so tests can
// observe evaluator caching.
type memRoleStore struct {
	mu        sync.RWMutex
	roles     map[string]rbac.Role
	userPerms map[string][]rbac.Permission
	permLoads int
}

func newMemRoleStore() *memRoleStore {
	store := &memRoleStore{
		roles:     make(map[string]rbac.Role),
		userPerms: make(map[string][]rbac.Permission),
	}
	for _, name := range []string{"USER", "ADMIN"} {
		store.roles[name] = rbac.Role{ID: "role-" + name, Name: name}
	}
	return store
}

func (s *memRoleStore) GetRoleByName(_ context.Context, name string) (*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if role, ok := s.roles[name]; ok {
		return &role, nil
	}
	return nil, ErrRoleNotFound
}

func (s *memRoleStore) GetRoleWithPermissions(_ context.Context, id string) (*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if role.ID == id {
			return &role, nil
		}
	}
	return nil, ErrRoleNotFound
}

func (s *memRoleStore) RoleExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[name]
	return ok, nil
}

func (s *memRoleStore) PermissionsForUser(_ context.Context, userID string) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permLoads++
	return append([]rbac.Permission(nil), s.userPerms[userID]...), nil
}

func (s *memRoleStore) RoleUserCounts(_ context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.roles))
	for name := range s.roles {
		counts[name] = 0
	}
	return counts, nil
}

func (s *memRoleStore) AssignRoles(_ context.Context, userID string, roleNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range roleNames {
		role, ok := s.roles[name]
		if !ok {
			return ErrRoleNotFound
		}
		for _, p := range role.Permissions {
			s.userPerms[userID] = append(s.userPerms[userID], p)
		}
	}
	return nil
}

func (s *memRoleStore) SetRolePermissions(_ context.Context, roleName string, permissionNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleName]
	if !ok {
		return ErrRoleNotFound
	}
	role.Permissions = nil
	for _, name := range permissionNames {
		role.Permissions = append(role.Permissions, rbac.Permission{Name: name})
	}
	s.roles[roleName] = role
	return nil
}

func (s *memRoleStore) grant(userID string, perms ...rbac.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userPerms[userID] = append(s.userPerms[userID], perms...)
}

func (s *memRoleStore) loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permLoads
}

const testPassword = "Vermil!on7K"

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.Issuer = "authkernel-test"
	cfg.Password.Cost = 10
	cfg.RateLimit.User = ratelimit.Policy{MaxAttempts: 3, Window: time.Minute, Block: 5 * time.Minute}
	cfg.RateLimit.Identifier = ratelimit.Policy{MaxAttempts: 10, Window: time.Minute, Block: 5 * time.Minute}
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	users  *memUserStore
	roles  *memRoleStore
	sink   *ChannelSink
	clock  *fakeClock
}

type envOption func(*Config)

func newTestEngine(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	mr, client := newTestRedis(t)
	users := newMemUserStore()
	roles := newMemRoleStore()
	sink := NewChannelSink(64)
	clock := newFakeClock()

	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(users).
		WithRoleStore(roles).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, mr: mr, users: users, roles: roles, sink: sink, clock: clock}
}

// seedUser registers a user through the engine so the stored hash and
// handle resolution follow the production path.
func (env *testEnv) seedUser(t *testing.T, email, handle string, roleNames ...string) *UserRecord {
	t.Helper()

	user, err := env.engine.Register(context.Background(), RegisterInput{
		Email:             email,
		Password:          testPassword,
		FirstName:         "Jane",
		LastName:          "Doe",
		PreferredUsername: handle,
		RoleNames:         roleNames,
	})
	if err != nil {
		t.Fatalf("seed Register failed: %v", err)
	}
	return user
}

// waitAudit blocks until an event of the given type arrives or times out.
func (env *testEnv) waitAudit(t *testing.T, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-env.sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("no %q audit event arrived", eventType)
		}
	}
}

func mustPermission(t *testing.T, name, resource, action string) rbac.Permission {
	t.Helper()
	perm, err := rbac.NewPermission(name, resource, action, "")
	if err != nil {
		t.Fatalf("NewPermission failed: %v", err)
	}
	return perm
}

func requestCtx(ip, userAgent string) context.Context {
	ctx := context.Background()
	if ip != "" {
		ctx = WithClientIP(ctx, ip)
	}
	if userAgent != "" {
		ctx = WithUserAgent(ctx, userAgent)
	}
	return ctx
}
