package planner

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoSortOrdersDependenciesFirst(t *testing.T) {
	goals := []Goal{
		{GoalID: 3, GoalIntent: "summarize findings", DependsOn: []int{1, 2}},
		{GoalID: 1, GoalIntent: "fetch issues"},
		{GoalID: 2, GoalIntent: "fetch wiki pages"},
	}
	sorted, err := TopoSort(goals)
	require.NoError(t, err)
	require.Len(t, sorted, 3)
	assert.Equal(t, 3, sorted[2].GoalID)
	positions := positionsByID(sorted)
	assert.Less(t, positions[1], positions[3])
	assert.Less(t, positions[2], positions[3])
}

func TestTopoSortDetectsCycleNamingGoals(t *testing.T) {
	goals := []Goal{
		{GoalID: 1, GoalIntent: "first", DependsOn: []int{2}},
		{GoalID: 2, GoalIntent: "second", DependsOn: []int{1}},
	}
	_, err := TopoSort(goals)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCyclicDependency)
	assert.Contains(t, err.Error(), "goal 1 (first)")
	assert.Contains(t, err.Error(), "goal 2 (second)")
}

func TestTopoSortDetectsMissingDependency(t *testing.T) {
	goals := []Goal{
		{GoalID: 1, GoalIntent: "only goal", DependsOn: []int{99}},
	}
	_, err := TopoSort(goals)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Contains(t, err.Error(), "goal 99")
}

func TestTopoSortRejectsDuplicateIDs(t *testing.T) {
	goals := []Goal{{GoalID: 1}, {GoalID: 1}}
	_, err := TopoSort(goals)
	require.Error(t, err)
}

func TestTopoSortEmptyInput(t *testing.T) {
	sorted, err := TopoSort(nil)
	require.NoError(t, err)
	assert.Empty(t, sorted)
}

func TestTopoSortProducesValidPermutation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	// Random DAGs: goals 1..n where dependencies only reference lower ids,
	// presented in shuffled order.
	dagGen := gen.Int64().Map(func(seed int64) []Goal {
		rng := rand.New(rand.NewSource(seed))
		n := rng.Intn(10) + 1
		goals := make([]Goal, n)
		for i := 0; i < n; i++ {
			id := i + 1
			goals[i] = Goal{GoalID: id}
			for dep := 1; dep < id; dep++ {
				if rng.Intn(3) == 0 {
					goals[i].DependsOn = append(goals[i].DependsOn, dep)
				}
			}
		}
		rng.Shuffle(n, func(a, b int) { goals[a], goals[b] = goals[b], goals[a] })
		return goals
	})

	properties.Property("output is a permutation with deps first", prop.ForAll(
		func(goals []Goal) bool {
			sorted, err := TopoSort(goals)
			if err != nil {
				return false
			}
			if len(sorted) != len(goals) {
				return false
			}
			positions := positionsByID(sorted)
			if len(positions) != len(goals) {
				return false
			}
			for _, goal := range sorted {
				for _, dep := range goal.DependsOn {
					if positions[dep] >= positions[goal.GoalID] {
						return false
					}
				}
			}
			return true
		},
		dagGen,
	))

	properties.TestingRun(t)
}

func positionsByID(goals []Goal) map[int]int {
	positions := make(map[int]int, len(goals))
	for i, goal := range goals {
		positions[goal.GoalID] = i
	}
	return positions
}
