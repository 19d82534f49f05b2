package models

type VisitEvent struct {
	Path string
}

type VisitStats struct {
	Path   string `json:"path"`
	Visits int64  `json:"visits"`
}
