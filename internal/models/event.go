package models

import "time"

// CompletionEvent is emitted once for every confirmed rep
type CompletionEvent struct {
	ID          string    `json:"id"`
	HabitName   string    `json:"habit_name"`
	Date        string    `json:"date"`
	Count       int       `json:"count"`
	Goal        int       `json:"goal"`
	Streak      int       `json:"streak"`
	GoalReached bool      `json:"goal_reached"`
	Manual      bool      `json:"manual"`
	At          time.Time `json:"at"`
}
