package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/presence"
)

type counter map[string]int

func (c counter) CountRecordedSince(ctx context.Context, since time.Time) (map[string]int, error) {
	return c, nil
}

type failingPresence struct{}

func (failingPresence) Heartbeat(ctx context.Context, hb presence.Heartbeat) (presence.Entry, error) {
	return presence.Entry{}, nil
}

func (failingPresence) ListOnline(ctx context.Context) ([]presence.Entry, error) {
	return nil, errors.New("redis down")
}

func strPtr(s string) *string { return &s }

func fixture(t *testing.T) (*Aggregator, *presence.MemoryStore) {
	t.Helper()
	roster := agents.NewMemoryRepo(
		agents.Registration{Phone: "01011112222", Name: strPtr("Kim"), TeamName: strPtr("Sales")},
		agents.Registration{Phone: "01022223333", Name: strPtr("Lee"), TeamName: strPtr("Sales")},
		agents.Registration{Phone: "01033334444", Name: strPtr("Park"), TeamName: strPtr("Support")},
		agents.Registration{Phone: "01044445555", Name: strPtr("Choi")},
	)
	ps := presence.NewMemoryStore(presence.DefaultTTL)
	ctx := context.Background()
	_, _ = ps.Heartbeat(ctx, presence.Heartbeat{Phone: "+82 10-1111-2222", Name: "Kim", CallState: "oncall", CallNumber: "01099998888"})
	_, _ = ps.Heartbeat(ctx, presence.Heartbeat{Phone: "010-3333-4444", Name: "Park", CallState: "idle"})
	_, _ = ps.Heartbeat(ctx, presence.Heartbeat{Phone: "01077778888", Name: "Temp", CallState: "oncall"})

	c := counter{"01011112222": 3, "01033334444": 1, "01077778888": 2}
	return NewAggregator(roster, ps, c), ps
}

func TestLiveView_StatusesAndTeams(t *testing.T) {
	a, _ := fixture(t)
	v, err := a.LiveView(context.Background())
	if err != nil {
		t.Fatalf("live view: %v", err)
	}

	status := map[string]Status{}
	team := map[string]string{}
	for _, ag := range v.Agents {
		status[ag.Phone] = ag.Status
		team[ag.Phone] = ag.Team
	}
	want := map[string]Status{
		"01011112222": StatusOnCall,
		"01022223333": StatusOffline,
		"01033334444": StatusIdle,
		"01044445555": StatusOffline,
		"01077778888": StatusOnCall,
	}
	for p, s := range want {
		if status[p] != s {
			t.Fatalf("%s: status %q want %q", p, status[p], s)
		}
	}
	if team["01077778888"] != UnassignedTeam || team["01044445555"] != UnassignedTeam {
		t.Fatalf("expected unregistered and teamless agents to be unassigned, got %v", team)
	}

	teams := map[string]Team{}
	for _, tm := range v.Teams {
		teams[tm.Name] = tm
	}
	sales := teams["Sales"]
	if sales.Members != 2 || sales.Online != 1 || sales.OnCall != 1 || sales.CallsToday != 3 {
		t.Fatalf("unexpected Sales totals %+v", sales)
	}
	un := teams[UnassignedTeam]
	if un.Members != 2 || un.Online != 1 || un.OnCall != 1 || un.CallsToday != 2 {
		t.Fatalf("unexpected unassigned totals %+v", un)
	}
	if v.Teams[len(v.Teams)-1].Name != UnassignedTeam {
		t.Fatalf("expected unassigned team last")
	}

	s := v.Stats
	if s.Teams != 3 || s.Members != 5 || s.Online != 3 || s.OnCall != 2 || s.CallsToday != 6 {
		t.Fatalf("unexpected global stats %+v", s)
	}
}

func TestLiveView_NoDuplicatePhones(t *testing.T) {
	a, ps := fixture(t)
	ctx := context.Background()
	// same agent under several spellings plus repeated heartbeats
	for _, p := range []string{"01011112222", "+821011112222", "010 1111 2222"} {
		_, _ = ps.Heartbeat(ctx, presence.Heartbeat{Phone: p, CallState: "idle"})
	}
	_, _ = ps.Heartbeat(ctx, presence.Heartbeat{Phone: "01077778888", CallState: "idle"})

	v, err := a.LiveView(ctx)
	if err != nil {
		t.Fatalf("live view: %v", err)
	}
	seen := map[string]bool{}
	for _, ag := range v.Agents {
		if seen[ag.Phone] {
			t.Fatalf("phone %s listed twice", ag.Phone)
		}
		seen[ag.Phone] = true
	}
	if len(v.Agents) != 5 {
		t.Fatalf("expected 5 agents, got %d", len(v.Agents))
	}
}

func TestOnlineAgents(t *testing.T) {
	a, _ := fixture(t)
	got, err := a.OnlineAgents(context.Background())
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 online agents, got %d", len(got))
	}
	for _, ag := range got {
		if ag.Status == StatusOffline {
			t.Fatalf("offline agent in online list: %+v", ag)
		}
	}
}

func TestLiveView_ExpiredPresenceIsOffline(t *testing.T) {
	a, ps := fixture(t)
	ps.Now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	v, err := a.LiveView(context.Background())
	if err != nil {
		t.Fatalf("live view: %v", err)
	}
	if v.Stats.Online != 0 || v.Stats.Members != 4 {
		t.Fatalf("expected everyone offline and no unregistered rows, got %+v", v.Stats)
	}
}

func TestLiveView_SourceErrorPropagates(t *testing.T) {
	a := NewAggregator(agents.NewMemoryRepo(), failingPresence{}, counter{})
	if _, err := a.LiveView(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStartOfDay(t *testing.T) {
	seoul := time.FixedZone("KST", 9*3600)
	a := &Aggregator{Location: seoul}
	got := a.startOfDay(time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)) // 01:00 KST on the 2nd
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, seoul)
	if !got.Equal(want) {
		t.Fatalf("startOfDay = %v want %v", got, want)
	}
}
