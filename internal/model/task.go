package model

import "time"

type Task struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TaskInput is the writable part of a task, used by create and update.
type TaskInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// TaskPage is a page of tasks plus statistics over all of the owner's tasks.
type TaskPage struct {
	Tasks     []Task `json:"tasks"`
	Total     int    `json:"total"`
	Pending   int    `json:"pending"`
	Completed int    `json:"completed"`
}
