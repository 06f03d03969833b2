package spatial

import (
	"sync"
	"time"

	"github.com/aukilabs/octant/cache"
	"github.com/aukilabs/octant/octree"
)

// The smoothing factor of the average query time.
const queryTimeAlpha = 0.1

// QueryStats describes the queries served by an index.
type QueryStats struct {
	TotalQueries          uint64        `json:"total_queries"`
	TotalEntitiesReturned uint64        `json:"total_entities_returned"`
	DegenerateQueries     uint64        `json:"degenerate_queries"`
	LastQueryTime         time.Duration `json:"last_query_time"`
	AverageQueryTime      time.Duration `json:"average_query_time"`
}

// Stats is a snapshot of an index.
type Stats struct {
	ID       string       `json:"id"`
	World    string       `json:"world"`
	Entities int          `json:"entities"`
	Tree     octree.Stats `json:"tree"`
	Queries  QueryStats   `json:"queries"`
	Cache    cache.Stats  `json:"cache"`
}

type queryStats struct {
	mutex sync.Mutex
	stats QueryStats
}

func (s *queryStats) record(d time.Duration, returned int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats.TotalQueries++
	s.stats.TotalEntitiesReturned += uint64(returned)
	s.stats.LastQueryTime = d

	if s.stats.TotalQueries == 1 {
		s.stats.AverageQueryTime = d
		return
	}
	avg := float64(s.stats.AverageQueryTime)*(1-queryTimeAlpha) + float64(d)*queryTimeAlpha
	s.stats.AverageQueryTime = time.Duration(avg)
}

func (s *queryStats) recordDegenerate() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats.TotalQueries++
	s.stats.DegenerateQueries++
}

func (s *queryStats) snapshot() QueryStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.stats
}

func (s *queryStats) reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats = QueryStats{}
}
