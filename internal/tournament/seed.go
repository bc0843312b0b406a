package tournament

import (
	"context"
	"math/rand/v2"
	"slices"
	"sort"
	"time"

	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

// Seeder orders a full group. The coordinator pairs positions 0-1 and
// 2-3 in the semifinals.
type Seeder interface {
	Seed(players []string) []string
}

// ArrivalSeeder keeps queue order
type ArrivalSeeder struct{}

func (ArrivalSeeder) Seed(players []string) []string {
	return slices.Clone(players)
}

// RandomSeeder shuffles the group
type RandomSeeder struct {
	Rand *rand.Rand // nil uses the global source
}

func (s RandomSeeder) Seed(players []string) []string {
	out := slices.Clone(players)
	shuffle := rand.Shuffle
	if s.Rand != nil {
		shuffle = s.Rand.Shuffle
	}
	shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// TallySource reads cumulative player records
type TallySource interface {
	Tally(ctx context.Context, playerID string) (store.Tally, error)
}

// RankedSeeder orders by tally points so the top seed meets the bottom
// seed and the middle two meet each other. Players without a record rank
// last in arrival order.
type RankedSeeder struct {
	Tallies TallySource
}

const rankLookupTimeout = 500 * time.Millisecond

func (s RankedSeeder) Seed(players []string) []string {
	type ranked struct {
		id     string
		points int
		known  bool
	}
	ctx, cancel := context.WithTimeout(context.Background(), rankLookupTimeout)
	defer cancel()

	rs := make([]ranked, len(players))
	for i, p := range players {
		rs[i] = ranked{id: p}
		if s.Tallies == nil {
			continue
		}
		if t, err := s.Tallies.Tally(ctx, p); err == nil {
			rs[i].points = t.Points
			rs[i].known = true
		}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].known != rs[j].known {
			return rs[i].known
		}
		return rs[i].points > rs[j].points
	})

	order := make([]string, len(rs))
	for i, r := range rs {
		order[i] = r.id
	}
	if len(order) != Size {
		return order
	}
	// 1 v 4, 2 v 3
	return []string{order[0], order[3], order[1], order[2]}
}
