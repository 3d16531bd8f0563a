package review

import "time"

// Principle is a label definition under review.
type Principle struct {
	ID                string `json:"id"`
	LabelName         string `json:"label_name"`
	Definition        string `json:"definition"`
	InclusionCriteria string `json:"inclusion_criteria"`
	ExclusionCriteria string `json:"exclusion_criteria"`
}

// PrinciplePatch is a partial update of principle fields. Nil fields are
// left untouched.
type PrinciplePatch struct {
	LabelName         *string `json:"label_name,omitempty"`
	Definition        *string `json:"definition,omitempty"`
	InclusionCriteria *string `json:"inclusion_criteria,omitempty"`
	ExclusionCriteria *string `json:"exclusion_criteria,omitempty"`
}

// applyTo merges the patch into a copy of p.
func (patch PrinciplePatch) applyTo(p Principle) Principle {
	if patch.LabelName != nil {
		p.LabelName = *patch.LabelName
	}
	if patch.Definition != nil {
		p.Definition = *patch.Definition
	}
	if patch.InclusionCriteria != nil {
		p.InclusionCriteria = *patch.InclusionCriteria
	}
	if patch.ExclusionCriteria != nil {
		p.ExclusionCriteria = *patch.ExclusionCriteria
	}
	return p
}

// Sample is one annotated text span. PrincipleID is the foreign key whose
// change moves the sample between two cached partitions.
type Sample struct {
	ID                string     `json:"id"`
	PrincipleID       string     `json:"principle_id"`
	PrecedingText     string     `json:"preceding_text"`
	TargetText        string     `json:"target_text"`
	FollowingText     string     `json:"following_text"`
	Scores            [3]float64 `json:"scores"`
	LLMJustification  string     `json:"llm_justification"`
	LLMEvidenceQuote  string     `json:"llm_evidence_quote"`
	ExpertOpinion     string     `json:"expert_opinion"`
	IsRevised         bool       `json:"is_revised"`
	ReviserName       string     `json:"reviser_name"`
	RevisionTimestamp *time.Time `json:"revision_timestamp,omitempty"`
}

// Stats are the aggregate revision counters for one principle. They are
// always derived from the full unfiltered sample set server-side, so the
// progress indicator stays accurate when revised items are hidden.
type Stats struct {
	Total        int     `json:"total"`
	RevisedCount int     `json:"revised_count"`
	Percentage   float64 `json:"percentage"`
}

// SamplePage is one cached partition: a principle's samples under one
// revision-visibility filter, with the unfiltered aggregate stats.
type SamplePage struct {
	Samples []Sample `json:"samples"`
	Stats   Stats    `json:"stats"`
}

// find returns the index of the sample with the given id, or -1.
func (p SamplePage) find(sampleID string) int {
	for i := range p.Samples {
		if p.Samples[i].ID == sampleID {
			return i
		}
	}
	return -1
}

// withSample returns a copy of the page with the sample at idx replaced.
// The samples slice is copied so snapshots taken for rollback never alias
// optimistically mutated data.
func (p SamplePage) withSample(idx int, s Sample) SamplePage {
	samples := make([]Sample, len(p.Samples))
	copy(samples, p.Samples)
	samples[idx] = s
	p.Samples = samples
	return p
}
