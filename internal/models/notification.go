package models

// NotificationTask is one rendered guardian message waiting in the in-memory backlog.
type NotificationTask struct {
	Destination string
	Message     string
	StudentID   string
}

// NotificationQueueStatus exposes backlog depth for monitoring.
type NotificationQueueStatus struct {
	Pending     int  `json:"pending"`
	Draining    bool `json:"draining"`
	Concurrency int  `json:"concurrency"`
	Enabled     bool `json:"enabled"`
}
