package agents

// Registration is the roster entry for one agent, keyed by normalized phone.
// Name and TeamName are optional; an agent with no team is "unassigned" in
// every aggregated view.
type Registration struct {
	Phone    string  `json:"phone" gorm:"primaryKey;size:32"`
	Name     *string `json:"name,omitempty" gorm:"size:128"`
	TeamName *string `json:"team_name,omitempty" gorm:"size:128;index"`
}

func (Registration) TableName() string { return "agents" }

// Team returns the team name or "" when the agent has none.
func (r Registration) Team() string {
	if r.TeamName == nil {
		return ""
	}
	return *r.TeamName
}

// DisplayName returns the registered name or "".
func (r Registration) DisplayName() string {
	if r.Name == nil {
		return ""
	}
	return *r.Name
}
