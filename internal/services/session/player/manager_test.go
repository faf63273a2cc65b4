package player

import (
	"context"
	"sync"
	"testing"

	"streamgate/internal/domain"
	"streamgate/internal/domain/ports"
)

type fakeProfiles struct {
	ports.ProfileStore
	settings map[string]domain.ProfileSettings
}

func (f *fakeProfiles) Get(ctx context.Context, userID string) (domain.ProfileSettings, error) {
	p, ok := f.settings[userID]
	if !ok {
		return domain.ProfileSettings{}, domain.ErrNotFound
	}
	return p, nil
}

type seededHistory struct {
	recordingHistory
	positions map[string]domain.WatchPosition
}

func (h *seededHistory) Get(ctx context.Context, userID string, itemID domain.ItemID) (domain.WatchPosition, error) {
	wp, ok := h.positions[userID+":"+string(itemID)]
	if !ok {
		return domain.WatchPosition{}, domain.ErrNotFound
	}
	return wp, nil
}

func managerItem() domain.MediaItem {
	return domain.MediaItem{ID: "movie-42", Name: "Stalker"}
}

func TestManagerSeedsProfileAndResume(t *testing.T) {
	rig := &engineRig{}
	profiles := &fakeProfiles{settings: map[string]domain.ProfileSettings{
		"user-1": {UserID: "user-1", PlaybackSpeed: 1.25, PreferredHeight: 720},
	}}
	hist := &seededHistory{positions: map[string]domain.WatchPosition{
		"user-1:movie-42": {UserID: "user-1", ItemID: "movie-42", Position: 33},
	}}
	m := NewManager(rig.factory, hist, profiles, nil)

	s, err := m.Open(context.Background(), "user-1", managerItem(), testTracks())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitState(t, s, StatePlaying)

	s.mu.Lock()
	speed, quality, resumed := s.speed, s.qualityHeight, s.hasResumed
	s.mu.Unlock()
	if speed != 1.25 || quality != 720 {
		t.Fatalf("profile not applied: speed=%v quality=%d", speed, quality)
	}
	if !resumed {
		t.Fatal("saved watch position not resumed")
	}
	m.Close()
}

func TestManagerReplacesUsersPreviousSession(t *testing.T) {
	rig := &engineRig{}
	m := NewManager(rig.factory, nil, nil, nil)

	first, err := m.Open(context.Background(), "user-1", managerItem(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitState(t, first, StatePlaying)

	second, err := m.Open(context.Background(), "user-1", domain.MediaItem{ID: "movie-43"}, nil)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	waitState(t, second, StatePlaying)

	if first.State() != StateDestroyed {
		t.Fatalf("previous session must be destroyed, got %s", first.State())
	}
	if _, ok := m.Get(first.ID); ok {
		t.Fatal("previous session still registered")
	}
	if got, ok := m.Get(second.ID); !ok || got != second {
		t.Fatal("new session not registered")
	}
	m.Close()
}

func TestManagerConcurrentOpensKeepOneSessionPerUser(t *testing.T) {
	rig := &engineRig{}
	m := NewManager(rig.factory, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Open(context.Background(), "user-1", managerItem(), nil); err != nil {
				t.Errorf("Open: %v", err)
			}
		}()
	}
	wg.Wait()

	live := 0
	for _, snap := range m.Snapshots() {
		if snap.UserID == "user-1" {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("live sessions for user = %d, want 1", live)
	}

	m.mu.RLock()
	id, ok := m.byUser["user-1"]
	_, registered := m.sessions[id]
	m.mu.RUnlock()
	if !ok || !registered {
		t.Fatal("byUser entry does not point at a registered session")
	}
	m.Close()
}

func TestManagerSnapshots(t *testing.T) {
	rig := &engineRig{}
	m := NewManager(rig.factory, nil, nil, nil)

	s, err := m.Open(context.Background(), "user-1", managerItem(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitState(t, s, StatePlaying)

	snaps := m.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if snaps[0].ID != s.ID || snaps[0].State != "playing" || snaps[0].ItemID != "movie-42" {
		t.Fatalf("unexpected snapshot %+v", snaps[0])
	}
	m.Close()
}

func TestManagerCloseDestroysEverything(t *testing.T) {
	rig := &engineRig{}
	m := NewManager(rig.factory, nil, nil, nil)

	a, _ := m.Open(context.Background(), "user-1", managerItem(), nil)
	b, _ := m.Open(context.Background(), "user-2", managerItem(), nil)
	waitState(t, a, StatePlaying)
	waitState(t, b, StatePlaying)

	m.Close()
	if a.State() != StateDestroyed || b.State() != StateDestroyed {
		t.Fatal("close must destroy all sessions")
	}
	if len(m.Snapshots()) != 0 {
		t.Fatal("sessions still registered after close")
	}
}

func TestManagerOnChangeBroadcasts(t *testing.T) {
	rig := &engineRig{}
	m := NewManager(rig.factory, nil, nil, nil)

	var mu sync.Mutex
	var states []string
	m.OnChange(func(snap Snapshot) {
		mu.Lock()
		states = append(states, snap.State)
		mu.Unlock()
	})

	s, err := m.Open(context.Background(), "user-1", managerItem(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitState(t, s, StatePlaying)

	mu.Lock()
	if len(states) == 0 {
		t.Fatal("no snapshots broadcast")
	}
	sawPlaying := false
	for _, st := range states {
		if st == "playing" {
			sawPlaying = true
		}
	}
	if !sawPlaying {
		t.Fatalf("playing never broadcast: %v", states)
	}
	mu.Unlock()
	m.Close()
}
