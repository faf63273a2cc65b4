package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
	"streamgate/internal/services/session/player"
	"streamgate/internal/usecase"
)

type fakeStreams struct {
	mu      sync.Mutex
	lastReq domain.StreamRequest
	payload usecase.StreamPayload
	err     error
}

func (f *fakeStreams) Execute(ctx context.Context, req domain.StreamRequest) (usecase.StreamPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = req
	return f.payload, f.err
}

func (f *fakeStreams) last() domain.StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

type fakeTokens struct {
	mu          sync.Mutex
	cred        domain.UpstreamCredential
	err         error
	invalidated int
}

func (f *fakeTokens) Token(ctx context.Context) (domain.UpstreamCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cred, f.err
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *fakeTokens) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

type fakeMedia struct {
	mu    sync.Mutex
	items map[domain.ItemID]domain.MediaItem
	list  []domain.MediaItem
}

func (f *fakeMedia) Authenticate(ctx context.Context, serverURL, username, password string) (string, error) {
	return "viewer-token", nil
}

func (f *fakeMedia) ResolveViewerID(ctx context.Context, serverURL, token string) (string, error) {
	return "viewer-1", nil
}

func (f *fakeMedia) GetItem(ctx context.Context, serverURL, token, viewerID string, itemID domain.ItemID) (domain.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return domain.MediaItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (f *fakeMedia) ListItems(ctx context.Context, serverURL, token, viewID string) ([]domain.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list, nil
}

func (f *fakeMedia) Fetch(ctx context.Context, target string, asText bool) (ports.UpstreamResponse, error) {
	return ports.UpstreamResponse{StatusCode: http.StatusOK}, nil
}

type fakeTrackResolver struct {
	tracks []domain.AudioTrackDescriptor
}

func (f *fakeTrackResolver) ResolveAudioTracks(ctx context.Context, serverURL, token string, itemID domain.ItemID) []domain.AudioTrackDescriptor {
	return f.tracks
}

type memConfigStore struct {
	mu      sync.Mutex
	configs map[string]domain.ServerConfig
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{configs: make(map[string]domain.ServerConfig)}
}

func (m *memConfigStore) Create(ctx context.Context, cfg domain.ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.ID] = cfg
	return nil
}

func (m *memConfigStore) Update(ctx context.Context, cfg domain.ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[cfg.ID]; !ok {
		return domain.ErrNotFound
	}
	m.configs[cfg.ID] = cfg
	return nil
}

func (m *memConfigStore) Get(ctx context.Context, id string) (domain.ServerConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[id]
	if !ok {
		return domain.ServerConfig{}, domain.ErrNotFound
	}
	return cfg, nil
}

func (m *memConfigStore) List(ctx context.Context) ([]domain.ServerConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ServerConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memConfigStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.configs, id)
	return nil
}

func (m *memConfigStore) SetActive(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[id]; !ok {
		return domain.ErrNotFound
	}
	for key, cfg := range m.configs {
		cfg.Active = key == id
		m.configs[key] = cfg
	}
	return nil
}

func (m *memConfigStore) LoadActive(ctx context.Context) (domain.ServerConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cfg := range m.configs {
		if cfg.Active {
			return cfg, nil
		}
	}
	return domain.ServerConfig{}, domain.ErrNotFound
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]domain.User)}
}

func (m *memUserStore) Create(ctx context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *memUserStore) Update(ctx context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return domain.ErrNotFound
	}
	m.users[u.ID] = u
	return nil
}

func (m *memUserStore) Get(ctx context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m *memUserStore) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (m *memUserStore) List(ctx context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memUserStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type memFavoriteStore struct {
	mu        sync.Mutex
	favorites map[string]domain.Favorite
}

func newMemFavoriteStore() *memFavoriteStore {
	return &memFavoriteStore{favorites: make(map[string]domain.Favorite)}
}

func favKey(userID string, itemID domain.ItemID) string { return userID + ":" + string(itemID) }

func (m *memFavoriteStore) Add(ctx context.Context, f domain.Favorite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.favorites[favKey(f.UserID, f.ItemID)] = f
	return nil
}

func (m *memFavoriteStore) Remove(ctx context.Context, userID string, itemID domain.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.favorites, favKey(userID, itemID))
	return nil
}

func (m *memFavoriteStore) List(ctx context.Context, userID string) ([]domain.Favorite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Favorite, 0)
	for _, f := range m.favorites {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFavoriteStore) Has(ctx context.Context, userID string, itemID domain.ItemID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.favorites[favKey(userID, itemID)]
	return ok, nil
}

type memLibraryStore struct {
	mu        sync.Mutex
	libraries map[string]domain.Library
}

func newMemLibraryStore() *memLibraryStore {
	return &memLibraryStore{libraries: make(map[string]domain.Library)}
}

func (m *memLibraryStore) Create(ctx context.Context, l domain.Library) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.libraries[l.ID] = l
	return nil
}

func (m *memLibraryStore) Update(ctx context.Context, l domain.Library) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.libraries[l.ID]; !ok {
		return domain.ErrNotFound
	}
	m.libraries[l.ID] = l
	return nil
}

func (m *memLibraryStore) Get(ctx context.Context, id string) (domain.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.libraries[id]
	if !ok {
		return domain.Library{}, domain.ErrNotFound
	}
	return l, nil
}

func (m *memLibraryStore) List(ctx context.Context) ([]domain.Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Library, 0, len(m.libraries))
	for _, l := range m.libraries {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *memLibraryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.libraries[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.libraries, id)
	return nil
}

type memHistoryStore struct {
	mu        sync.Mutex
	positions map[string]domain.WatchPosition
}

func newMemHistoryStore() *memHistoryStore {
	return &memHistoryStore{positions: make(map[string]domain.WatchPosition)}
}

func (m *memHistoryStore) Upsert(ctx context.Context, wp domain.WatchPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[favKey(wp.UserID, wp.ItemID)] = wp
	return nil
}

func (m *memHistoryStore) Get(ctx context.Context, userID string, itemID domain.ItemID) (domain.WatchPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wp, ok := m.positions[favKey(userID, itemID)]
	if !ok {
		return domain.WatchPosition{}, domain.ErrNotFound
	}
	return wp, nil
}

func (m *memHistoryStore) ListRecent(ctx context.Context, userID string, limit int) ([]domain.WatchPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.WatchPosition, 0)
	for _, wp := range m.positions {
		if wp.UserID == userID {
			out = append(out, wp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memHistoryStore) Delete(ctx context.Context, userID string, itemID domain.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, favKey(userID, itemID))
	return nil
}

type memProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domain.ProfileSettings
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{profiles: make(map[string]domain.ProfileSettings)}
}

func (m *memProfileStore) Get(ctx context.Context, userID string) (domain.ProfileSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return domain.ProfileSettings{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memProfileStore) Upsert(ctx context.Context, p domain.ProfileSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
	return nil
}

// stubEngine is the minimal pipeline for session handler tests: Load parses
// immediately and every control call succeeds.
type stubEngine struct {
	mu  sync.Mutex
	url string
	cb  ports.EngineCallbacks
	pos float64
}

func (e *stubEngine) Load(ctx context.Context, url string, cb ports.EngineCallbacks) error {
	e.mu.Lock()
	e.url = url
	e.cb = cb
	parsed := cb.OnManifestParsed
	e.mu.Unlock()
	if parsed != nil {
		parsed([]ports.QualityLevel{{Height: 1080, Bitrate: 6_000_000}})
	}
	return nil
}

func (e *stubEngine) Levels() []ports.QualityLevel {
	return []ports.QualityLevel{{Height: 1080, Bitrate: 6_000_000}}
}

func (e *stubEngine) SetLevel(i int) error     { return nil }
func (e *stubEngine) Play() error              { return nil }
func (e *stubEngine) Pause()                   {}
func (e *stubEngine) SeekTo(pos float64) error { e.mu.Lock(); e.pos = pos; e.mu.Unlock(); return nil }
func (e *stubEngine) SetRate(rate float64)     {}
func (e *stubEngine) Position() float64        { e.mu.Lock(); defer e.mu.Unlock(); return e.pos }
func (e *stubEngine) StartLoad()               {}
func (e *stubEngine) RecoverMedia()            {}
func (e *stubEngine) Destroy()                 {}

type testEnv struct {
	server    *Server
	streams   *fakeStreams
	tokens    *fakeTokens
	media     *fakeMedia
	configs   *memConfigStore
	users     *memUserStore
	favorites *memFavoriteStore
	libraries *memLibraryStore
	history   *memHistoryStore
	profiles  *memProfileStore
	manager   *player.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		streams:   &fakeStreams{},
		tokens:    &fakeTokens{cred: domain.UpstreamCredential{Token: "tok", AcquiredAt: time.Now()}},
		media:     &fakeMedia{items: make(map[domain.ItemID]domain.MediaItem)},
		configs:   newMemConfigStore(),
		users:     newMemUserStore(),
		favorites: newMemFavoriteStore(),
		libraries: newMemLibraryStore(),
		history:   newMemHistoryStore(),
		profiles:  newMemProfileStore(),
	}
	env.manager = player.NewManager(
		func() ports.AdaptiveEngine { return &stubEngine{} },
		env.history, env.profiles, logger,
	)
	t.Cleanup(env.manager.Close)

	env.server = NewServer(env.streams,
		WithTokenSource(env.tokens),
		WithMediaServer(env.media),
		WithTrackResolver(&fakeTrackResolver{}),
		WithSessionManager(env.manager),
		WithServerConfigs(env.configs),
		WithUsers(env.users),
		WithFavorites(env.favorites),
		WithLibraries(env.libraries),
		WithWatchHistory(env.history),
		WithProfiles(env.profiles),
		WithJWT("test-secret", time.Hour),
		WithRateLimit(1000, 2000),
		WithLogger(logger),
	)
	t.Cleanup(env.server.Close)
	return env
}

// seedUser creates an account and returns a valid bearer token for it.
func (env *testEnv) seedUser(t *testing.T, id, username string, role domain.UserRole) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	user := domain.User{
		ID:           id,
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := env.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := env.server.issueToken(user, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (env *testEnv) seedActiveConfig(t *testing.T) domain.ServerConfig {
	t.Helper()
	cfg := domain.ServerConfig{
		ID:        "cfg-1",
		Name:      "main",
		ServerURL: "http://upstream.local",
		APIKey:    "static-key",
		Active:    true,
	}
	if err := env.configs.Create(context.Background(), cfg); err != nil {
		t.Fatalf("create config: %v", err)
	}
	return cfg
}

func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}

func TestUnknownSessionActionIs404(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedUser(t, "u1", "alice", domain.RoleViewer)
	rec := env.do(t, http.MethodPost, "/sessions/nope/play", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
