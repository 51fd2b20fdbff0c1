package workload

import (
	"fmt"
	mrand "math/rand"
)

// Sequence returns the records (i, i) for i in [0, count).
func Sequence(count int) (Workload, error) {
	if count < 0 {
		return Workload{}, fmt.Errorf("%w: negative count %d",
			ErrInvalidArgument, count)
	}

	records := make([]Record, count)
	for i := range records {
		records[i] = Record{Key: uint64(i), Value: uint64(i)}
	}

	return newWorkload(fmt.Sprintf("sequence/%d", count), KindSequence, records), nil
}

// KeyedPairs returns (i mod numKeys, i) for i in [0, count). Every key in
// [0, numKeys) appears at least count/numKeys times.
func KeyedPairs(count, numKeys int) (Workload, error) {
	if err := checkKeyed(count, numKeys); err != nil {
		return Workload{}, err
	}

	records := make([]Record, count)
	for i := range records {
		records[i] = Record{Key: uint64(i % numKeys), Value: uint64(i)}
	}

	return newWorkload(
		fmt.Sprintf("keyed_pairs/%dx%d", count, numKeys),
		KindKeyedPairs, records,
	), nil
}

// Duplicates returns each value in [0, unique) repeated factor times,
// consecutively.
func Duplicates(unique, factor int) (Workload, error) {
	if unique < 0 || factor < 0 {
		return Workload{}, fmt.Errorf(
			"%w: duplicates needs non-negative unique and factor, got %d, %d",
			ErrInvalidArgument, unique, factor,
		)
	}

	records := make([]Record, 0, unique*factor)
	for i := 0; i < unique; i++ {
		for j := 0; j < factor; j++ {
			records = append(records, Record{Key: uint64(i), Value: uint64(i)})
		}
	}

	return newWorkload(
		fmt.Sprintf("duplicates/%dx%d", unique, factor),
		KindDuplicates, records,
	), nil
}

// RandomData returns count records (i, r) where r is drawn from a source
// seeded with seed.
func RandomData(count int, seed int64) (Workload, error) {
	if count < 0 {
		return Workload{}, fmt.Errorf("%w: negative count %d",
			ErrInvalidArgument, count)
	}

	rng := mrand.New(mrand.NewSource(seed))

	records := make([]Record, count)
	for i := range records {
		records[i] = Record{Key: uint64(i), Value: rng.Uint64()}
	}

	return newWorkload(
		fmt.Sprintf("random/%d/seed=%d", count, seed),
		KindRandom, records,
	), nil
}

// KeyedRandom returns (i mod numKeys, r) with r drawn from a seeded source.
// It is the join-side input of the keyed benchmarks.
func KeyedRandom(count, numKeys int, seed int64) (Workload, error) {
	if err := checkKeyed(count, numKeys); err != nil {
		return Workload{}, err
	}

	rng := mrand.New(mrand.NewSource(seed))

	records := make([]Record, count)
	for i := range records {
		records[i] = Record{Key: uint64(i % numKeys), Value: rng.Uint64()}
	}

	return newWorkload(
		fmt.Sprintf("keyed_random/%dx%d/seed=%d", count, numKeys, seed),
		KindKeyedRandom, records,
	), nil
}

func checkKeyed(count, numKeys int) error {
	if count < 0 {
		return fmt.Errorf("%w: negative count %d", ErrInvalidArgument, count)
	}

	if numKeys <= 0 {
		return fmt.Errorf("%w: num_keys must be positive, got %d",
			ErrInvalidArgument, numKeys)
	}

	return nil
}
