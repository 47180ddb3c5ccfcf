package testutil

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Bytes returns n pseudo-random bytes.
func (r *RNG) Bytes(n int) []byte {
	b := make([]byte, n)
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.rand.Read(b)
	return b
}

// Values returns num pseudo-random values of size bytes each.
// Locks only once per call (preferred over calling Bytes in a loop).
func (r *RNG) Values(num, size int) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]byte, num)
	for i := range out {
		out[i] = make([]byte, size)
		_, _ = r.rand.Read(out[i])
	}
	return out
}

// Keys returns n distinct keys "<prefix>-000000", "<prefix>-000001", ...
func Keys(prefix string, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = fmt.Appendf(nil, "%s-%06d", prefix, i)
	}
	return out
}

// Todo is the document shape produced by TodoDocuments.
type Todo struct {
	ID    int      `json:"id"`
	Title string   `json:"title"`
	Done  bool     `json:"done"`
	Score float64  `json:"score"`
	Tags  []string `json:"tags"`
}

var tags = []string{"home", "work", "errand", "urgent", "later"}

// TodoDocuments returns num JSON documents. Document i has "id": i and
// "done": true exactly when i is even; the remaining fields are random.
func (r *RNG) TodoDocuments(num int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, num)
	for i := range out {
		todo := Todo{
			ID:    i,
			Title: fmt.Sprintf("task %d", r.rand.Intn(1_000_000)),
			Done:  i%2 == 0,
			Score: r.rand.Float64(),
			Tags:  []string{tags[r.rand.Intn(len(tags))]},
		}
		b, err := json.Marshal(todo)
		if err != nil {
			panic(err)
		}
		out[i] = string(b)
	}
	return out
}

// Zipf returns a Zipf-distributed index in [0, n) with exponent s > 1.
// Useful for skewed key access in benchmarks.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	z := rand.NewZipf(r.rand, s, 1, uint64(n-1))
	return int(z.Uint64())
}
