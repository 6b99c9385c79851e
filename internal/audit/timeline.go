package audit

import "time"

// TimelineFilters narrows the audit timeline of one tenant.
type TimelineFilters struct {
	TenantID int64
	From     time.Time
	To       time.Time
	ActorID  int64
	Domain   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one recorded audit fact.
type TimelineRow struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	ActorID  int64          `json:"actor_id,omitempty"`
	Domain   string         `json:"domain"`
	Action   string         `json:"action"`
	EntityID string         `json:"entity_id"`
	Message  string         `json:"message,omitempty"`
	Before   map[string]any `json:"before,omitempty"`
	After    map[string]any `json:"after,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// PagingInfo carries simple page metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}
