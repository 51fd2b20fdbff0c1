package workload

import (
	"fmt"
	mrand "math/rand"
)

// DeltaMode selects how a delta batch relates to its base workload.
type DeltaMode string

const (
	// DeltaUpdate re-inserts keys already present in the base.
	DeltaUpdate DeltaMode = "update"
	// DeltaGrowth inserts keys strictly greater than every base key.
	DeltaGrowth DeltaMode = "growth"
	// DeltaChurn inserts new keys and retracts existing base records.
	DeltaChurn DeltaMode = "churn"
)

// DeltaConfig describes a delta batch in suite files.
type DeltaConfig struct {
	Mode DeltaMode `yaml:"mode" json:"mode"`
	Size int       `yaml:"size" json:"size"`
	Seed int64     `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// Delta derives the small second-phase batch of an incremental trial from
// base. Update and churn sizes are clamped to the base length.
func Delta(base Workload, size int, mode DeltaMode, seed int64) (Workload, error) {
	if size < 0 {
		return Workload{}, fmt.Errorf("%w: negative delta size %d",
			ErrInvalidArgument, size)
	}

	rng := mrand.New(mrand.NewSource(seed))
	name := fmt.Sprintf("%s/delta/%s/%d", base.name, mode, size)

	switch mode {
	case DeltaGrowth:
		return Workload{name: name, kind: KindDelta, updates: growth(base, size)}, nil

	case DeltaUpdate, DeltaChurn:
		if size > 0 && base.Len() == 0 {
			return Workload{}, fmt.Errorf("%w: %s delta needs a non-empty base",
				ErrInvalidArgument, mode)
		}

		size = min(size, base.Len())
		picked := rng.Perm(base.Len())[:size]

		if mode == DeltaUpdate {
			updates := make([]Update, size)
			for i, idx := range picked {
				updates[i] = Update{
					Record: Record{Key: base.updates[idx].Key, Value: rng.Uint64()},
					Diff:   1,
				}
			}

			return Workload{name: name, kind: KindDelta, updates: updates}, nil
		}

		updates := growth(base, size)
		for _, idx := range picked {
			updates = append(updates, Update{Record: base.updates[idx].Record, Diff: -1})
		}

		return Workload{name: name, kind: KindDelta, updates: updates}, nil

	default:
		return Workload{}, fmt.Errorf("%w: unknown delta mode %q",
			ErrInvalidArgument, mode)
	}
}

// NewDelta builds the delta described by cfg on top of base.
func NewDelta(base Workload, cfg DeltaConfig) (Workload, error) {
	return Delta(base, cfg.Size, cfg.Mode, cfg.Seed)
}

func growth(base Workload, size int) []Update {
	var next uint64
	for _, u := range base.updates {
		if u.Key >= next {
			next = u.Key + 1
		}
	}

	updates := make([]Update, size, size*2)
	for i := range updates {
		k := next + uint64(i)
		updates[i] = Update{Record: Record{Key: k, Value: k}, Diff: 1}
	}

	return updates
}
