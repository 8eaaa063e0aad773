package live

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"callcenter-platform/internal/agents"
	"callcenter-platform/internal/phone"
	"callcenter-platform/internal/presence"
)

// UnassignedTeam groups agents with no registration or no team.
const UnassignedTeam = "unassigned"

type Status string

const (
	StatusOnCall  Status = "oncall"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

type Agent struct {
	Phone         string     `json:"phone"`
	Name          string     `json:"name"`
	Team          string     `json:"team"`
	Registered    bool       `json:"registered"`
	Status        Status     `json:"status"`
	CallNumber    *string    `json:"call_number,omitempty"`
	CallStartTime *time.Time `json:"call_start_time,omitempty"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	CallsToday    int        `json:"calls_today"`
}

type Team struct {
	Name       string `json:"name"`
	Members    int    `json:"members"`
	Online     int    `json:"online"`
	OnCall     int    `json:"on_call"`
	CallsToday int    `json:"calls_today"`
}

type Stats struct {
	Teams      int `json:"teams"`
	Members    int `json:"members"`
	Online     int `json:"online"`
	OnCall     int `json:"on_call"`
	CallsToday int `json:"calls_today"`
}

type View struct {
	Agents      []Agent   `json:"agents"`
	Teams       []Team    `json:"teams"`
	Stats       Stats     `json:"stats"`
	GeneratedAt time.Time `json:"generated_at"`
}

// CallCounter supplies today's recorded-call counts keyed by uploader phone.
type CallCounter interface {
	CountRecordedSince(ctx context.Context, since time.Time) (map[string]int, error)
}

// Aggregator joins the roster, the presence set and today's call counters.
// Nothing is cached; every query reads all three sources.
type Aggregator struct {
	roster   agents.Repository
	presence presence.Store
	counter  CallCounter

	// Location defines "today". Defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
}

func NewAggregator(roster agents.Repository, ps presence.Store, counter CallCounter) *Aggregator {
	return &Aggregator{roster: roster, presence: ps, counter: counter, Location: time.Local, Now: time.Now}
}

func (a *Aggregator) LiveView(ctx context.Context) (View, error) {
	now := a.Now()

	var (
		regs    []agents.Registration
		online  []presence.Entry
		counter map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		regs, err = a.roster.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		online, err = a.presence.ListOnline(gctx)
		return err
	})
	g.Go(func() (err error) {
		counter, err = a.counter.CountRecordedSince(gctx, a.startOfDay(now))
		return err
	})
	if err := g.Wait(); err != nil {
		return View{}, err
	}

	agentsOut := merge(regs, online, counter)
	teams, stats := group(agentsOut)
	return View{Agents: agentsOut, Teams: teams, Stats: stats, GeneratedAt: now.UTC()}, nil
}

// OnlineAgents is the live view narrowed to agents with a presence entry.
func (a *Aggregator) OnlineAgents(ctx context.Context) ([]Agent, error) {
	v, err := a.LiveView(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Agent, 0, v.Stats.Online)
	for _, ag := range v.Agents {
		if ag.Status != StatusOffline {
			out = append(out, ag)
		}
	}
	return out, nil
}

func (a *Aggregator) startOfDay(t time.Time) time.Time {
	loc := a.Location
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// merge emits every roster agent and every unregistered online agent exactly
// once, keyed by normalized phone.
func merge(regs []agents.Registration, online []presence.Entry, counter map[string]int) []Agent {
	byPhone := make(map[string]presence.Entry, len(online))
	for _, e := range online {
		if p := phone.Normalize(e.Phone); p != "" {
			byPhone[p] = e
		}
	}

	seen := make(map[string]bool, len(regs)+len(online))
	out := make([]Agent, 0, len(regs)+len(online))

	for _, r := range regs {
		p := phone.Normalize(r.Phone)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		ag := Agent{
			Phone:      p,
			Name:       r.DisplayName(),
			Team:       teamOrUnassigned(r.Team()),
			Registered: true,
			Status:     StatusOffline,
			CallsToday: counter[p],
		}
		if e, ok := byPhone[p]; ok {
			applyPresence(&ag, e)
		}
		out = append(out, ag)
	}

	for p, e := range byPhone {
		if seen[p] {
			continue
		}
		seen[p] = true
		ag := Agent{
			Phone:      p,
			Name:       e.Name,
			Team:       UnassignedTeam,
			CallsToday: counter[p],
		}
		applyPresence(&ag, e)
		out = append(out, ag)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Team != out[j].Team {
			return teamLess(out[i].Team, out[j].Team)
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Phone < out[j].Phone
	})
	return out
}

func applyPresence(ag *Agent, e presence.Entry) {
	if e.CallState == presence.StateOnCall {
		ag.Status = StatusOnCall
		ag.CallNumber = e.CallNumber
		ag.CallStartTime = e.CallStartTime
	} else {
		ag.Status = StatusIdle
	}
	seen := e.LastSeen
	ag.LastSeen = &seen
	if ag.Name == "" {
		ag.Name = e.Name
	}
}

func group(list []Agent) ([]Team, Stats) {
	idx := map[string]int{}
	var teams []Team
	for _, ag := range list {
		i, ok := idx[ag.Team]
		if !ok {
			i = len(teams)
			idx[ag.Team] = i
			teams = append(teams, Team{Name: ag.Team})
		}
		t := &teams[i]
		t.Members++
		if ag.Status != StatusOffline {
			t.Online++
		}
		if ag.Status == StatusOnCall {
			t.OnCall++
		}
		t.CallsToday += ag.CallsToday
	}
	sort.Slice(teams, func(i, j int) bool { return teamLess(teams[i].Name, teams[j].Name) })

	stats := Stats{Teams: len(teams)}
	for _, t := range teams {
		stats.Members += t.Members
		stats.Online += t.Online
		stats.OnCall += t.OnCall
		stats.CallsToday += t.CallsToday
	}
	if teams == nil {
		teams = []Team{}
	}
	return teams, stats
}

func teamOrUnassigned(name string) string {
	if name == "" {
		return UnassignedTeam
	}
	return name
}

// teamLess orders teams by name with the unassigned bucket last.
func teamLess(a, b string) bool {
	if a == UnassignedTeam || b == UnassignedTeam {
		return b == UnassignedTeam && a != UnassignedTeam
	}
	return a < b
}
