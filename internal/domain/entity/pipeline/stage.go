package pipeline

import (
	"fmt"
	"strings"
)

// TraceHeader carries the trace identifier on every hop.
const TraceHeader = "X-Trace-Id"

// Stage names one hop of the pipeline.
type Stage string

const (
	StageIntake    Stage = "intake"
	StagePricing   Stage = "pricing"
	StageValuation Stage = "valuation"
	StageRisk      Stage = "risk"
)

// Stages lists the hops in call order.
var Stages = []Stage{StageIntake, StagePricing, StageValuation, StageRisk}

func (s Stage) String() string {
	return string(s)
}

// Service is the value written to the service field of every record.
func (s Stage) Service() string {
	return string(s) + "_service"
}

// Index returns the position of the stage in the chain, or -1.
func (s Stage) Index() int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the hop called by s.
func (s Stage) Next() (Stage, bool) {
	idx := s.Index()
	if idx < 0 || idx+1 >= len(Stages) {
		return "", false
	}
	return Stages[idx+1], true
}

func (s Stage) IsValid() bool {
	return s.Index() >= 0
}

func ParseStage(value string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(value)))
	if !stage.IsValid() {
		return "", fmt.Errorf("unknown stage %q", value)
	}
	return stage, nil
}

// StageFromService maps a record's service field back to its stage.
func StageFromService(service string) (Stage, bool) {
	for _, stage := range Stages {
		if stage.Service() == service {
			return stage, true
		}
	}
	return "", false
}
