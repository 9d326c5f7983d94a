package manager

import (
	"snake-sim/game/types"
)

type FoodManager struct {
	grid types.Grid
}

func NewFoodManager(grid types.Grid) *FoodManager {
	return &FoodManager{
		grid: grid,
	}
}

// EnsureFoodPlaced draws cells from the state's RNG until one is free of the
// snake. It does nothing when food is already placed. The loop has no cap: a
// completely filled field never terminates.
func (fm *FoodManager) EnsureFoodPlaced(state *State) {
	for !state.FoodPlaced {
		food := fm.GenerateFood(state)
		if !state.Snake.Occupies(food) {
			state.Food = food
			state.FoodPlaced = true
		}
	}
}

// GenerateFood draws one candidate cell, x first then y
func (fm *FoodManager) GenerateFood(state *State) types.Cell {
	return types.Cell{
		X: state.RNG.Intn(fm.grid.Width),
		Y: state.RNG.Intn(fm.grid.Height),
	}
}
