// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

// Capability describes one thing the product must let its users do.
type Capability struct {
	// Name is a short imperative label, e.g. "invite existing members".
	Name string `json:"name"`

	// Description expands the capability in one or two sentences.
	Description string `json:"description"`

	// Category groups capabilities, e.g. "core", "supporting", "integration".
	Category string `json:"category,omitempty"`

	// Priority orders capabilities, lower is more important.
	Priority int `json:"priority,omitempty"`

	// AcceptanceCriteria are the conditions under which the capability
	// counts as delivered.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
}

func (c Capability) clone() Capability {
	out := c
	out.AcceptanceCriteria = append([]string(nil), c.AcceptanceCriteria...)
	return out
}

// Decision is one architecture decision. The capabilities it covers are
// listed in the envelope's Serves field.
type Decision struct {
	// Title is a short label, e.g. "session storage".
	Title string `json:"title"`

	// Area is the concern the decision belongs to, e.g. "auth", "storage".
	Area string `json:"area,omitempty"`

	// Choice is the selected option.
	Choice string `json:"choice"`

	// Rationale explains why the choice fits the anchored constraints.
	Rationale string `json:"rationale,omitempty"`

	// Alternatives lists rejected options.
	Alternatives []string `json:"alternatives,omitempty"`
}

func (d Decision) clone() Decision {
	out := d
	out.Alternatives = append([]string(nil), d.Alternatives...)
	return out
}

// Attribute is one typed field of a domain entity.
type Attribute struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
}

// Entity is a domain entity. The decisions it supports are listed in the
// envelope's Serves field.
type Entity struct {
	// Name is the entity name, e.g. "Member".
	Name string `json:"name"`

	// Description explains the entity's role in the domain.
	Description string `json:"description,omitempty"`

	// Attributes lists the entity's fields.
	Attributes []Attribute `json:"attributes,omitempty"`
}

func (e Entity) clone() Entity {
	out := e
	out.Attributes = append([]Attribute(nil), e.Attributes...)
	return out
}

// WorkItem is one ordered unit of implementation work. The capabilities it
// implements are listed in the envelope's Implements field.
type WorkItem struct {
	// Title is a short imperative label.
	Title string `json:"title"`

	// Description is the full work description.
	Description string `json:"description,omitempty"`

	// Order positions the item in the overall plan, lower runs first.
	Order int `json:"order"`

	// Effort is a coarse size estimate, e.g. "S", "M", "L".
	Effort string `json:"effort,omitempty"`

	// DependsOn lists work item IDs that must land first.
	DependsOn []string `json:"depends_on,omitempty"`

	// Labels carry traceability tags for external trackers.
	Labels []string `json:"labels,omitempty"`
}

func (w WorkItem) clone() WorkItem {
	out := w
	out.DependsOn = append([]string(nil), w.DependsOn...)
	out.Labels = append([]string(nil), w.Labels...)
	return out
}
