package rules

import "pulseguard/pkg/models"

// Tag is a matched detection rule applied to an event.
type Tag struct {
	ID       string
	Name     string
	Severity string
}

// Engine applies detection rules to processed events.
type Engine interface {
	Apply(event *models.ProcessedEvent) []Tag
}

// NoopEngine returns no tags.
type NoopEngine struct{}

// Apply returns an empty tag list.
func (n *NoopEngine) Apply(event *models.ProcessedEvent) []Tag {
	return nil
}
