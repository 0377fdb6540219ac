package presentation

import (
	"github.com/zjrosen/depscope/internal/manifest"
)

// RunDTO is a manifest run report prepared for output.
type RunDTO struct {
	RunID      string         `json:"run_id"`
	Manifest   string         `json:"manifest"`
	StartedAt  string         `json:"started_at"`
	DurationMS float64        `json:"duration_ms"`
	Steps      []StepDTO      `json:"steps"`
	Members    []string       `json:"members"`
	Components []ComponentDTO `json:"components"`
	Events     []EventDTO     `json:"events,omitempty"`
	Refused    int            `json:"refused"`
}

// StepDTO is one applied step.
type StepDTO struct {
	Index   int    `json:"index"`
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Outcome string `json:"outcome"`
	Count   int    `json:"count,omitempty"`
	Error   string `json:"error,omitempty"`
	Holder  string `json:"holder,omitempty"`
}

// ComponentDTO is a component's final state.
type ComponentDTO struct {
	Handle    string    `json:"handle"`
	Key       string    `json:"key"`
	Present   bool      `json:"present"`
	Satisfied bool      `json:"satisfied"`
	Slots     []SlotDTO `json:"slots"`
	Seen      []string  `json:"seen,omitempty"`
}

// SlotDTO is one dependency slot. Occupant is empty while unfilled.
type SlotDTO struct {
	Descriptor string `json:"descriptor"`
	Named      string `json:"named,omitempty"`
	Strict     bool   `json:"strict"`
	Occupant   string `json:"occupant"`
}

// EventDTO is a published membership change.
type EventDTO struct {
	Type      string `json:"type"`
	Component string `json:"component,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FromReport converts a run report.
func FromReport(r *manifest.Report) RunDTO {
	dto := RunDTO{
		RunID:      r.RunID,
		Manifest:   r.Manifest,
		StartedAt:  r.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		DurationMS: float64(r.Duration.Microseconds()) / 1000,
		Steps:      make([]StepDTO, 0, len(r.Steps)),
		Members:    append([]string{}, r.Members...),
		Components: make([]ComponentDTO, 0, len(r.Components)),
		Refused:    len(r.Refused()),
	}
	for _, s := range r.Steps {
		dto.Steps = append(dto.Steps, StepDTO{
			Index:   s.Index,
			Action:  string(s.Action),
			Target:  s.Target,
			Outcome: string(s.Outcome),
			Count:   s.Count,
			Error:   s.Error,
			Holder:  s.Holder,
		})
	}
	for _, c := range r.Components {
		dto.Components = append(dto.Components, ComponentDTO{
			Handle:    c.Handle,
			Key:       c.Key,
			Present:   c.Present,
			Satisfied: c.Satisfied,
			Slots:     slotDTOs(c.Slots),
			Seen:      c.Seen,
		})
	}
	for _, e := range r.Events {
		dto.Events = append(dto.Events, EventDTO(e))
	}
	return dto
}

func slotDTOs(states []manifest.SlotState) []SlotDTO {
	out := make([]SlotDTO, 0, len(states))
	for _, s := range states {
		out = append(out, SlotDTO(s))
	}
	return out
}

// ManifestDTO summarizes a manifest without running it.
type ManifestDTO struct {
	Name       string             `json:"name"`
	Components []ComponentSpecDTO `json:"components"`
	Steps      []StepSpecDTO      `json:"steps"`
}

// ComponentSpecDTO is a declared component.
type ComponentSpecDTO struct {
	Handle   string          `json:"handle"`
	Category string          `json:"category"`
	Identity string          `json:"identity"`
	Label    string          `json:"label"`
	Parent   string          `json:"parent,omitempty"`
	Depends  []DependencyDTO `json:"depends"`
}

// DependencyDTO is a declared dependency.
type DependencyDTO struct {
	Category string `json:"category"`
	Strict   bool   `json:"strict"`
	Named    string `json:"named,omitempty"`
}

// StepSpecDTO is a declared step.
type StepSpecDTO struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

// FromManifest converts a parsed manifest.
func FromManifest(m *manifest.Manifest) ManifestDTO {
	dto := ManifestDTO{
		Name:       m.Name,
		Components: make([]ComponentSpecDTO, 0, len(m.Components)),
		Steps:      make([]StepSpecDTO, 0, len(m.Steps)),
	}
	for _, c := range m.Components {
		deps := make([]DependencyDTO, 0, len(c.Depends))
		for _, d := range c.Depends {
			deps = append(deps, DependencyDTO(d))
		}
		dto.Components = append(dto.Components, ComponentSpecDTO{
			Handle:   c.Name,
			Category: c.Category,
			Identity: string(c.Identity),
			Label:    c.Label,
			Parent:   c.Parent,
			Depends:  deps,
		})
	}
	for _, s := range m.Steps {
		action, target := s.Action()
		dto.Steps = append(dto.Steps, StepSpecDTO{Action: string(action), Target: target})
	}
	return dto
}
