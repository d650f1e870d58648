// Package models defines data types for forum activities, backups and posts.
package models

// ContextLevelModule is the context level of an activity instance.
const ContextLevelModule = 70

// Activity identifies one forum instance within its course.
type Activity struct {
	ID        int64  `json:"id"`
	ModuleID  int64  `json:"module_id"`
	CourseID  int64  `json:"course_id"`
	ContextID int64  `json:"context_id"`
	Name      string `json:"name"`
}
