package model

type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusPending   StatusFilter = "pending"
	StatusCompleted StatusFilter = "completed"
)

type SortField string

const (
	SortCreated SortField = "created"
	SortUpdated SortField = "updated"
	SortTitle   SortField = "title"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

const (
	MinLimit     = 1
	MaxLimit     = 100
	DefaultLimit = 100
)

// ListQuery describes one page of an owner's task list.
type ListQuery struct {
	Status StatusFilter
	Sort   SortField
	Order  SortOrder
	Limit  int
	Offset int
}

func DefaultListQuery() ListQuery {
	return ListQuery{
		Status: StatusAll,
		Sort:   SortCreated,
		Order:  OrderDesc,
		Limit:  DefaultLimit,
		Offset: 0,
	}
}

func (s StatusFilter) Valid() bool {
	switch s {
	case StatusAll, StatusPending, StatusCompleted:
		return true
	}
	return false
}

// Completed returns the completion flag the filter selects, or nil for StatusAll.
func (s StatusFilter) Completed() *bool {
	var v bool
	switch s {
	case StatusPending:
		v = false
	case StatusCompleted:
		v = true
	default:
		return nil
	}
	return &v
}

func (f SortField) Valid() bool {
	switch f {
	case SortCreated, SortUpdated, SortTitle:
		return true
	}
	return false
}

// Column maps the sort field to its storage column.
func (f SortField) Column() string {
	switch f {
	case SortUpdated:
		return "updated_at"
	case SortTitle:
		return "title"
	default:
		return "created_at"
	}
}

func (o SortOrder) Valid() bool {
	return o == OrderAsc || o == OrderDesc
}

func (o SortOrder) SQL() string {
	if o == OrderAsc {
		return "ASC"
	}
	return "DESC"
}
