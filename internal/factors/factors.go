package factors

// Row is one period of three-factor returns plus the risk-free rate,
// expressed in percentage points exactly as published (consumers divide
// by 100 before estimation).
type Row struct {
	Date  string // YYYY-MM-DD
	MktRF float64
	SMB   float64
	HML   float64
	RF    float64
}

// Cadence identifies the sampling frequency of a factor dataset.
type Cadence string

const (
	Daily  Cadence = "daily"
	Weekly Cadence = "weekly"
)

// Set is an immutable, date-indexed factor dataset of one cadence.
type Set struct {
	Cadence Cadence
	Rows    []Row // ascending by date

	index map[string]int
}

// NewSet builds a Set with its date index. Rows must be unique by date;
// later duplicates win, matching a re-read of the same file.
func NewSet(cadence Cadence, rows []Row) *Set {
	s := &Set{Cadence: cadence, Rows: rows, index: make(map[string]int, len(rows))}
	for i, r := range rows {
		s.index[r.Date] = i
	}
	return s
}

// Lookup returns the row for an exact date.
func (s *Set) Lookup(date string) (Row, bool) {
	i, ok := s.index[date]
	if !ok {
		return Row{}, false
	}
	return s.Rows[i], true
}

// Len returns the number of periods in the set.
func (s *Set) Len() int { return len(s.Rows) }

// Store holds both cadences of the reference dataset. It is loaded once at
// startup, never mutated afterwards, and shared read-only across requests.
type Store struct {
	daily  *Set
	weekly *Set
}

// NewStore wraps pre-built sets; used by Load and by tests.
func NewStore(daily, weekly *Set) *Store {
	return &Store{daily: daily, weekly: weekly}
}

// ForCadence returns the dataset matching the requested cadence.
func (st *Store) ForCadence(c Cadence) *Set {
	if c == Weekly {
		return st.weekly
	}
	return st.daily
}
