package aggregator

// AccumulatorState holds the running totals of one session
type AccumulatorState struct {
	Count int64
	Sum   float64
}

// Init returns an empty accumulator
func Init() AccumulatorState {
	return AccumulatorState{}
}

// Update folds value into state and returns the new state with its mean.
// The returned average is always computed over Count >= 1.
func Update(state AccumulatorState, value float64) (AccumulatorState, float64) {
	next := AccumulatorState{
		Count: state.Count + 1,
		Sum:   state.Sum + value,
	}
	return next, next.Sum / float64(next.Count)
}
