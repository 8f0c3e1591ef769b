// Package planner builds plans in two phases: the planner model produces
// descriptive goals with a dependency graph, tool reasoning maps each goal
// onto a concrete tool, and the result is appended to the plan as PENDING
// steps in topological order.
package planner

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCyclicDependency indicates the goal graph contains a cycle.
	ErrCyclicDependency = errors.New("cyclic goal dependency")

	// ErrMissingDependency indicates a goal references an unknown goalId.
	ErrMissingDependency = errors.New("missing goal dependency")
)

// Goal is one node of the planner's goal graph.
type Goal struct {
	GoalID     int    `json:"goalId"`
	GoalIntent string `json:"goalIntent"`
	DependsOn  []int  `json:"dependsOn,omitempty"`
}

// DFS visit states.
const (
	unvisited = iota
	visiting
	visited
)

// TopoSort orders goals so every goal appears after all its dependencies.
// The output is a permutation of the input; input order is preserved among
// goals with no ordering constraint between them. Cycles and references to
// unknown goals are reported with the offending goals named.
func TopoSort(goals []Goal) ([]Goal, error) {
	byID := make(map[int]*Goal, len(goals))
	for i := range goals {
		if _, dup := byID[goals[i].GoalID]; dup {
			return nil, fmt.Errorf("duplicate goalId %d", goals[i].GoalID)
		}
		byID[goals[i].GoalID] = &goals[i]
	}

	state := make(map[int]int, len(goals))
	var (
		order []Goal
		stack []int
	)

	var visit func(id int) error
	visit = func(id int) error {
		goal, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: goal %d referenced by %s", ErrMissingDependency, id, describeTail(stack, byID))
		}
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrCyclicDependency, describeCycle(stack, id, byID))
		}

		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range goal.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = visited
		order = append(order, *goal)
		return nil
	}

	for i := range goals {
		if err := visit(goals[i].GoalID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// describeCycle names every goal on the cycle, starting from its first
// occurrence on the DFS stack.
func describeCycle(stack []int, repeated int, byID map[int]*Goal) string {
	start := 0
	for i, id := range stack {
		if id == repeated {
			start = i
			break
		}
	}
	var names []string
	for _, id := range stack[start:] {
		names = append(names, goalName(id, byID))
	}
	names = append(names, goalName(repeated, byID))
	return strings.Join(names, " -> ")
}

func describeTail(stack []int, byID map[int]*Goal) string {
	if len(stack) == 0 {
		return "the goal list"
	}
	return goalName(stack[len(stack)-1], byID)
}

func goalName(id int, byID map[int]*Goal) string {
	if goal, ok := byID[id]; ok && goal.GoalIntent != "" {
		return fmt.Sprintf("goal %d (%s)", id, goal.GoalIntent)
	}
	return fmt.Sprintf("goal %d", id)
}
