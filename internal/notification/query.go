package notification

import "kitchen-dashboard/internal/model"

// Filter selects notifications. Zero fields match everything.
type Filter struct {
	Type      model.NotificationType
	Processed *bool
}

func (f Filter) match(n *model.Notification) bool {
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Processed != nil && n.Processed != *f.Processed {
		return false
	}
	return true
}

// List returns the notifications matching f, newest first.
func (a *Aggregator) List(f Filter) []model.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.Notification, 0, len(a.list))
	for i := range a.list {
		if f.match(&a.list[i]) {
			out = append(out, a.list[i])
		}
	}
	return out
}

// History returns processed notifications, optionally of one type.
func (a *Aggregator) History(t model.NotificationType) []model.Notification {
	processed := true
	return a.List(Filter{Type: t, Processed: &processed})
}

// TypeCounts are the counters of one notification type.
type TypeCounts struct {
	Total       int `json:"total"`
	Unread      int `json:"unread"`
	Unprocessed int `json:"unprocessed"`
}

// Counts are the list counters, overall and per type.
type Counts struct {
	TypeCounts
	ByType map[model.NotificationType]TypeCounts `json:"byType"`
}

// Counts walks the list on every call.
func (a *Aggregator) Counts() Counts {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := Counts{ByType: make(map[model.NotificationType]TypeCounts, len(model.NotificationTypes))}
	for _, t := range model.NotificationTypes {
		c.ByType[t] = TypeCounts{}
	}
	for _, n := range a.list {
		tc := c.ByType[n.Type]
		tc.Total++
		c.Total++
		if !n.Read {
			tc.Unread++
			c.Unread++
		}
		if !n.Processed {
			tc.Unprocessed++
			c.Unprocessed++
		}
		c.ByType[n.Type] = tc
	}
	return c
}
