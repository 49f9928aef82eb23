package types

import "time"

const (
	DefaultPurgeDays        = 14
	DefaultPurgeKeepMinimum = 0
	// PurgeRotationAllKey is reserved in the rotation map and never treated
	// as a project name.
	PurgeRotationAllKey = "all"
)

// RotationRule is one retention override. A nil Days means the value was
// not configured and must be defaulted by the caller.
type RotationRule struct {
	Days        *int `mapstructure:"days" yaml:"days,omitempty"`
	KeepMinimum int  `mapstructure:"keep_minimum" yaml:"keep_minimum,omitempty"`
}

func (r RotationRule) DaysOr(fallback int) int {
	if r.Days == nil {
		return fallback
	}
	return *r.Days
}

type ProjectRotation struct {
	Ref    map[string]RotationRule `mapstructure:"ref" yaml:"ref,omitempty"`
	Flavor map[string]RotationRule `mapstructure:"flavor" yaml:"flavor,omitempty"`
}

func (p ProjectRotation) HasRef(ref string) bool {
	_, ok := p.Ref[ref]
	return ok
}

func (p ProjectRotation) HasFlavor(flavor string) bool {
	_, ok := p.Flavor[flavor]
	return ok
}

// PurgeSelection is one resolved retention group: every repo of Project
// matching Ref and Flavor (nil means any) is ordered by modification time,
// the newest KeepMinimum survive and the rest older than Cutoff go.
type PurgeSelection struct {
	Project     string
	Ref         *string
	Flavor      *string
	Days        int
	KeepMinimum int
	Cutoff      time.Time
}

type PurgePlan struct {
	Selections []PurgeSelection
	Delete     []Repo
	Keep       []Repo
}
