package tournament

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HoudaChairi/Ft-transcendence/internal/store"
	"github.com/HoudaChairi/Ft-transcendence/internal/store/memory"
)

func TestArrivalSeederKeepsOrder(t *testing.T) {
	in := []string{"a", "b", "c", "d"}
	out := ArrivalSeeder{}.Seed(in)
	assert.Equal(t, in, out)
	out[0] = "z"
	assert.Equal(t, "a", in[0], "input untouched")
}

func TestRandomSeederPermutes(t *testing.T) {
	in := []string{"a", "b", "c", "d"}
	s := RandomSeeder{Rand: rand.New(rand.NewPCG(1, 2))}
	seen := map[string]bool{}
	for range 50 {
		out := s.Seed(in)
		assert.ElementsMatch(t, in, out)
		seen[out[0]+out[1]+out[2]+out[3]] = true
	}
	assert.Greater(t, len(seen), 1)
	assert.Equal(t, []string{"a", "b", "c", "d"}, in)
}

func TestRankedSeederPairsTopWithBottom(t *testing.T) {
	st := memory.New()
	ctx := context.Background()
	// b: 3 wins, c: 2 wins, a: 1 win. d has never played.
	results := []store.MatchResult{
		{Player1: "b", Player2: "x", Winner: "b"},
		{Player1: "b", Player2: "x", Winner: "b"},
		{Player1: "b", Player2: "x", Winner: "b"},
		{Player1: "c", Player2: "x", Winner: "c"},
		{Player1: "c", Player2: "x", Winner: "c"},
		{Player1: "a", Player2: "x", Winner: "a"},
	}
	for _, r := range results {
		assert.NoError(t, st.PersistMatchResult(ctx, r))
	}

	out := RankedSeeder{Tallies: st}.Seed([]string{"a", "b", "c", "d"})
	// Ranking b, c, a, d: semifinals b v d and c v a.
	assert.Equal(t, []string{"b", "d", "c", "a"}, out)
}

func TestRankedSeederWithoutRecordsKeepsArrival(t *testing.T) {
	out := RankedSeeder{Tallies: memory.New()}.Seed([]string{"a", "b", "c", "d"})
	assert.Equal(t, []string{"a", "d", "b", "c"}, out)

	out = RankedSeeder{}.Seed([]string{"a", "b", "c", "d"})
	assert.Equal(t, []string{"a", "d", "b", "c"}, out)
}
