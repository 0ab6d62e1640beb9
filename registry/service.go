package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-org-registry/cache"
	"github.com/saiset-co/sai-org-registry/types"
)

const PersonTTL = 120 * time.Second

// Repository is the storage the Service reads through and writes to.
type Repository interface {
	CreatePerson(ctx context.Context, in PersonInput) (Person, error)
	UpdatePerson(ctx context.Context, id int64, in PersonInput) (Person, error)
	DeletePerson(ctx context.Context, id int64) error
	GetPerson(ctx context.Context, id int64) (Person, error)
	ListPeople(ctx context.Context, page Page) ([]Person, error)
	SearchPeople(ctx context.Context, q string, limit int) ([]Person, error)

	CreateDepartment(ctx context.Context, in DepartmentInput) (Department, error)
	UpdateDepartment(ctx context.Context, id int64, in DepartmentInput) (Department, error)
	GetDepartment(ctx context.Context, id int64) (Department, error)
	ListDepartments(ctx context.Context, page Page) ([]Department, error)

	CreatePosition(ctx context.Context, in PositionInput) (Position, error)
	GetPosition(ctx context.Context, id int64) (Position, error)
	ListPositions(ctx context.Context, page Page) ([]Position, error)

	CreateEmployment(ctx context.Context, in EmploymentInput) (Employment, error)
	UpdateEmployment(ctx context.Context, id int64, in EmploymentInput) (Employment, error)
	GetEmployment(ctx context.Context, id int64) (Employment, error)
	ListEmployment(ctx context.Context, page Page) ([]Employment, error)

	Statistics(ctx context.Context) (Statistics, error)
	Ping(ctx context.Context) error
}

// Service puts the memoization cache in front of a Repository. Reads are
// memoized; writes invalidate through the strategy graph once they succeed.
type Service struct {
	repo       Repository
	strategies *cache.InvalidationStrategies
	logger     types.Logger

	listPeople      *cache.Memoized[[]Person]
	searchPeople    *cache.Memoized[[]Person]
	getPerson       *cache.Memoized[Person]
	listDepartments *cache.Memoized[[]Department]
	getDepartment   *cache.Memoized[Department]
	listPositions   *cache.Memoized[[]Position]
	getPosition     *cache.Memoized[Position]
	listEmployment  *cache.Memoized[[]Employment]
	getEmployment   *cache.Memoized[Employment]
	statistics      *cache.Memoized[Statistics]
}

// NewService wires memoized reads over repo. strategies may be nil, in which
// case cached reads only age out by TTL.
func NewService(repo Repository, memo *cache.Memoizer, strategies *cache.InvalidationStrategies, logger types.Logger) *Service {
	s := &Service{repo: repo, strategies: strategies, logger: logger}

	s.listPeople = cache.ListMemo(memo, "list_people", func(ctx context.Context, args cache.Args) ([]Person, error) {
		return repo.ListPeople(ctx, pageOf(args))
	}, cache.TagPeople)

	s.searchPeople = cache.SearchMemo(memo, "search_people", func(ctx context.Context, args cache.Args) ([]Person, error) {
		return repo.SearchPeople(ctx, args.Positional[0].(string), args.Positional[1].(int))
	}, cache.TagPeople)

	s.getPerson = cache.Memoize(memo, cache.MemoOptions{
		Name:      "get_person",
		KeyPrefix: "person",
		TTL:       PersonTTL,
		Tags:      []string{cache.TagPeople},
		TagsFunc: func(args cache.Args) []string {
			return []string{cache.PersonTag(args.Positional[0].(int64))}
		},
	}, func(ctx context.Context, args cache.Args) (Person, error) {
		return repo.GetPerson(ctx, args.Positional[0].(int64))
	})

	s.listDepartments = cache.ListMemo(memo, "list_departments", func(ctx context.Context, args cache.Args) ([]Department, error) {
		return repo.ListDepartments(ctx, pageOf(args))
	}, cache.TagDepartments)

	s.getDepartment = cache.Memoize(memo, cache.MemoOptions{
		Name:      "get_department",
		KeyPrefix: "department",
		TTL:       cache.ListTTL,
		Tags:      []string{cache.TagDepartments},
	}, func(ctx context.Context, args cache.Args) (Department, error) {
		return repo.GetDepartment(ctx, args.Positional[0].(int64))
	})

	s.listPositions = cache.ListMemo(memo, "list_positions", func(ctx context.Context, args cache.Args) ([]Position, error) {
		return repo.ListPositions(ctx, pageOf(args))
	}, cache.TagPositions)

	s.getPosition = cache.Memoize(memo, cache.MemoOptions{
		Name:      "get_position",
		KeyPrefix: "position",
		TTL:       cache.ListTTL,
		Tags:      []string{cache.TagPositions},
	}, func(ctx context.Context, args cache.Args) (Position, error) {
		return repo.GetPosition(ctx, args.Positional[0].(int64))
	})

	s.listEmployment = cache.ListMemo(memo, "list_employment", func(ctx context.Context, args cache.Args) ([]Employment, error) {
		return repo.ListEmployment(ctx, pageOf(args))
	}, cache.TagEmployment)

	s.getEmployment = cache.Memoize(memo, cache.MemoOptions{
		Name:      "get_employment",
		KeyPrefix: "employment",
		TTL:       cache.ListTTL,
		Tags:      []string{cache.TagEmployment},
	}, func(ctx context.Context, args cache.Args) (Employment, error) {
		return repo.GetEmployment(ctx, args.Positional[0].(int64))
	})

	s.statistics = cache.StatisticsMemo(memo, "statistics", func(ctx context.Context, _ cache.Args) (Statistics, error) {
		return repo.Statistics(ctx)
	}, cache.TagReports)

	return s
}

func pageArgs(page Page) cache.Args {
	page = page.Normalize()
	return cache.Positional().With("offset", page.Offset).With("limit", page.Limit)
}

func pageOf(args cache.Args) Page {
	offset, _ := args.Keyword["offset"].(int)
	limit, _ := args.Keyword["limit"].(int)
	return Page{Offset: offset, Limit: limit}
}

func (s *Service) invalidated(event string, apply func(*cache.InvalidationStrategies) cache.InvalidationResult) {
	if s.strategies == nil {
		return
	}

	result := apply(s.strategies)
	s.logger.Debug("Cache invalidated",
		zap.String("event", event),
		zap.Strings("tags", result.InvalidatedTags),
		zap.Int("keys", result.InvalidatedKeysCount))
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// People

func (s *Service) ListPeople(ctx context.Context, page Page) ([]Person, error) {
	return s.listPeople.Call(ctx, pageArgs(page))
}

func (s *Service) SearchPeople(ctx context.Context, q string, limit int) ([]Person, error) {
	return s.searchPeople.Call(ctx, cache.Positional(q, Page{Limit: limit}.Normalize().Limit))
}

func (s *Service) GetPerson(ctx context.Context, id int64) (Person, error) {
	return s.getPerson.Call(ctx, cache.Positional(id))
}

func (s *Service) CreatePerson(ctx context.Context, in PersonInput) (Person, error) {
	p, err := s.repo.CreatePerson(ctx, in)
	if err != nil {
		return Person{}, err
	}
	s.invalidated("person_created", (*cache.InvalidationStrategies).PersonCreated)
	return p, nil
}

func (s *Service) UpdatePerson(ctx context.Context, id int64, in PersonInput) (Person, error) {
	p, err := s.repo.UpdatePerson(ctx, id, in)
	if err != nil {
		return Person{}, err
	}
	s.invalidated("person_updated", func(st *cache.InvalidationStrategies) cache.InvalidationResult {
		return st.PersonUpdated(id)
	})
	return p, nil
}

func (s *Service) DeletePerson(ctx context.Context, id int64) error {
	if err := s.repo.DeletePerson(ctx, id); err != nil {
		return err
	}
	s.invalidated("person_deleted", func(st *cache.InvalidationStrategies) cache.InvalidationResult {
		return st.PersonDeleted(id)
	})
	return nil
}

// Departments

func (s *Service) ListDepartments(ctx context.Context, page Page) ([]Department, error) {
	return s.listDepartments.Call(ctx, pageArgs(page))
}

func (s *Service) GetDepartment(ctx context.Context, id int64) (Department, error) {
	return s.getDepartment.Call(ctx, cache.Positional(id))
}

func (s *Service) CreateDepartment(ctx context.Context, in DepartmentInput) (Department, error) {
	d, err := s.repo.CreateDepartment(ctx, in)
	if err != nil {
		return Department{}, err
	}
	s.invalidated("department_created", (*cache.InvalidationStrategies).DepartmentCreated)
	return d, nil
}

func (s *Service) UpdateDepartment(ctx context.Context, id int64, in DepartmentInput) (Department, error) {
	d, err := s.repo.UpdateDepartment(ctx, id, in)
	if err != nil {
		return Department{}, err
	}
	s.invalidated("department_updated", (*cache.InvalidationStrategies).DepartmentUpdated)
	return d, nil
}

// Positions

func (s *Service) ListPositions(ctx context.Context, page Page) ([]Position, error) {
	return s.listPositions.Call(ctx, pageArgs(page))
}

func (s *Service) GetPosition(ctx context.Context, id int64) (Position, error) {
	return s.getPosition.Call(ctx, cache.Positional(id))
}

func (s *Service) CreatePosition(ctx context.Context, in PositionInput) (Position, error) {
	p, err := s.repo.CreatePosition(ctx, in)
	if err != nil {
		return Position{}, err
	}
	s.invalidated("position_created", (*cache.InvalidationStrategies).PositionCreated)
	return p, nil
}

// Employment

func (s *Service) ListEmployment(ctx context.Context, page Page) ([]Employment, error) {
	return s.listEmployment.Call(ctx, pageArgs(page))
}

func (s *Service) GetEmployment(ctx context.Context, id int64) (Employment, error) {
	return s.getEmployment.Call(ctx, cache.Positional(id))
}

func (s *Service) CreateEmployment(ctx context.Context, in EmploymentInput) (Employment, error) {
	e, err := s.repo.CreateEmployment(ctx, in)
	if err != nil {
		return Employment{}, err
	}
	s.invalidated("employment_created", (*cache.InvalidationStrategies).EmploymentCreated)
	return e, nil
}

func (s *Service) UpdateEmployment(ctx context.Context, id int64, in EmploymentInput) (Employment, error) {
	e, err := s.repo.UpdateEmployment(ctx, id, in)
	if err != nil {
		return Employment{}, err
	}
	s.invalidated("employment_updated", (*cache.InvalidationStrategies).EmploymentUpdated)
	return e, nil
}

func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	return s.statistics.Call(ctx, cache.Args{})
}
