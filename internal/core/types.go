package core

import (
	"crosslab/pkg/domain"
	"crosslab/pkg/genetics"
)

type (
	EntityType         = domain.EntityType
	LifecycleState     = domain.LifecycleState
	Severity           = domain.Severity
	Experiment         = domain.Experiment
	ExperimentParams   = domain.ExperimentParams
	GenerationPoint    = domain.GenerationPoint
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	PhenotypeID        = genetics.PhenotypeID
)

const (
	EntityExperiment = domain.EntityExperiment
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
