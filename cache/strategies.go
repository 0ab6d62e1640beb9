package cache

import (
	"fmt"
)

const (
	TagPeople        = "people"
	TagEmployment    = "employment"
	TagDepartments   = "departments"
	TagPositions     = "positions"
	TagLists         = "lists"
	TagStatistics    = "statistics"
	TagSearchResults = "search_results"
	TagReports       = "reports"
)

func PersonTag(id int64) string {
	return fmt.Sprintf("person:%d", id)
}

var strategyGraph = map[string][]string{
	TagPeople:      {TagStatistics, TagSearchResults, TagReports},
	TagEmployment:  {TagPeople, TagStatistics, TagReports},
	TagDepartments: {TagPositions, TagEmployment},
	TagPositions:   {TagEmployment},
}

// InvalidationStrategies maps domain mutations to cascading tag
// invalidations over a fixed dependency graph.
type InvalidationStrategies struct {
	invalidator *TagInvalidator
}

// NewInvalidationStrategies installs the dependency graph on the invalidator
// and pins its tags so periodic cleanup keeps the edges.
func NewInvalidationStrategies(invalidator *TagInvalidator) *InvalidationStrategies {
	for parent, dependents := range strategyGraph {
		invalidator.Pin(parent)
		invalidator.Pin(dependents...)
		for _, dependent := range dependents {
			invalidator.AddDependency(parent, dependent)
		}
	}
	return &InvalidationStrategies{invalidator: invalidator}
}

func (s *InvalidationStrategies) PersonCreated() InvalidationResult {
	return s.invalidate(TagPeople, TagLists)
}

func (s *InvalidationStrategies) PersonUpdated(id int64) InvalidationResult {
	return s.invalidate(TagPeople, TagLists, PersonTag(id))
}

func (s *InvalidationStrategies) PersonDeleted(id int64) InvalidationResult {
	return s.invalidate(TagPeople, TagEmployment, TagLists, PersonTag(id))
}

func (s *InvalidationStrategies) EmploymentCreated() InvalidationResult {
	return s.invalidate(TagEmployment, TagLists)
}

func (s *InvalidationStrategies) EmploymentUpdated() InvalidationResult {
	return s.invalidate(TagEmployment, TagLists)
}

func (s *InvalidationStrategies) DepartmentCreated() InvalidationResult {
	return s.invalidate(TagDepartments, TagLists)
}

func (s *InvalidationStrategies) DepartmentUpdated() InvalidationResult {
	return s.invalidate(TagDepartments, TagLists)
}

func (s *InvalidationStrategies) PositionCreated() InvalidationResult {
	return s.invalidate(TagPositions, TagLists)
}

func (s *InvalidationStrategies) BulkOperation() InvalidationResult {
	return s.invalidate(TagPeople, TagEmployment, TagDepartments, TagPositions, TagLists)
}

func (s *InvalidationStrategies) invalidate(tags ...string) InvalidationResult {
	return s.invalidator.InvalidateByTag(tags, true)
}
