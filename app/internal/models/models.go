package models

import "time"

// State is the reachability state of a monitored host
type State string

const (
	StateOnline  State = "ONLINE"
	StateOffline State = "OFFLINE"
)

// EventType identifies the kind of entry in the event journal
type EventType string

const (
	EventCheckResult     EventType = "check_result"
	EventStateTransition EventType = "state_transition"
)

// CheckResult is the outcome of a single liveness check
type CheckResult struct {
	Alive     bool    `json:"alive"`
	LatencyMs float64 `json:"latency_ms"`
}

// CheckSample is one entry of a host's recent check history
type CheckSample struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Transition records a change of state
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// HostState is the in-memory view of a monitored host.
// Exactly one of DownSince/UpSince is set, matching State.
type HostState struct {
	HostID           string        `json:"host_id"`
	Address          string        `json:"address"`
	DisplayName      string        `json:"display_name"`
	State            State         `json:"state"`
	LastResult       *CheckResult  `json:"last_result,omitempty"`
	LastResultAt     *time.Time    `json:"last_result_at,omitempty"`
	DownSince        *time.Time    `json:"down_since,omitempty"`
	UpSince          *time.Time    `json:"up_since,omitempty"`
	LastTransition   *Transition   `json:"last_transition,omitempty"`
	OriginalDownTime *time.Time    `json:"original_down_time,omitempty"`
	RecentChecks     []CheckSample `json:"recent_checks"`
}

// HostSeed patches identifying fields of a host. Empty fields are left unchanged.
type HostSeed struct {
	Address     string
	DisplayName string
}

// CheckReport is what the check loop hands to the state store
type CheckReport struct {
	HostID      string
	Address     string
	DisplayName string
	Alive       bool
	LatencyMs   float64
	Timestamp   time.Time // zero means now
}

// Event is a journal entry. Exactly one of Check/Transition is set, depending on Type.
type Event struct {
	ID          string       `json:"id"`
	Type        EventType    `json:"type"`
	HostID      string       `json:"host_id"`
	Address     string       `json:"address"`
	DisplayName string       `json:"display_name"`
	Check       *CheckResult `json:"check,omitempty"`
	Transition  *Transition  `json:"transition,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// TransitionResult is returned by the state store after recording a transition
type TransitionResult struct {
	From State
	To   State
	Host HostState
}

// InventoryHost is a row of the hosts table
type InventoryHost struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
}

// InventoryMeta describes the cached inventory
type InventoryMeta struct {
	Count         int        `json:"count"`
	LastRefreshAt *time.Time `json:"last_refresh_at,omitempty"`
	RefreshError  string     `json:"refresh_error,omitempty"`
}

// HealthStatus is a snapshot of database reachability
type HealthStatus struct {
	// Checked is false until the first probe has completed
	Checked        bool          `json:"checked"`
	Healthy        bool          `json:"healthy"`
	LastCheckAt    *time.Time    `json:"last_check_at,omitempty"`
	LastHealthyAt  *time.Time    `json:"last_healthy_at,omitempty"`
	LastError      string        `json:"last_error,omitempty"`
	NextRetryDelay time.Duration `json:"-"`
}
