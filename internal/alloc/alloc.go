// Package alloc enforces the elimination-credit pool of a match: a match with
// N participants can award at most N-1 credits in total.
package alloc

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrPoolExhausted = errors.New("não há mais almas disponíveis")
	ErrNonNegative   = errors.New("as almas não podem ficar negativas")
	ErrInvalidRows   = errors.New("linhas da partida inválidas")
)

// Allocation maps a participant ID to its credit count.
type Allocation map[string]int

// Sum returns the total credits awarded.
func Sum(a Allocation) int {
	total := 0
	for _, v := range a {
		total += v
	}
	return total
}

// RemainingPool returns max(0, n-1-sum(a)).
func RemainingPool(a Allocation, n int) int {
	rem := n - 1 - Sum(a)
	if rem < 0 {
		return 0
	}
	return rem
}

// Increment adds one credit to participant. The allocation is left untouched
// when the pool is exhausted.
func Increment(a Allocation, participant string, n int) error {
	if RemainingPool(a, n) <= 0 {
		return ErrPoolExhausted
	}
	a[participant]++
	return nil
}

// Decrement removes one credit from participant. The allocation is left
// untouched when the count is already zero.
func Decrement(a Allocation, participant string) error {
	if a[participant] <= 0 {
		return ErrNonNegative
	}
	a[participant]--
	return nil
}

// Clone returns an independent copy of a.
func Clone(a Allocation) Allocation {
	out := make(Allocation, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Row is one participant line of a finished match.
type Row struct {
	Position      int
	ParticipantID string
	Credits       int
}

// SortRows orders rows ascending by position.
func SortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
}

// ValidateRows checks a complete match: positions form exactly 1..N, each
// participant appears once, credits are non-negative and their sum stays
// within the pool.
func ValidateRows(rows []Row) error {
	n := len(rows)
	if n < 2 {
		return fmt.Errorf("%w: são necessários ao menos 2 participantes", ErrInvalidRows)
	}
	positions := make(map[int]bool, n)
	participants := make(map[string]bool, n)
	total := 0
	for _, r := range rows {
		if r.ParticipantID == "" {
			return fmt.Errorf("%w: participante vazio", ErrInvalidRows)
		}
		if r.Position < 1 || r.Position > n {
			return fmt.Errorf("%w: posição %d fora de 1..%d", ErrInvalidRows, r.Position, n)
		}
		if positions[r.Position] {
			return fmt.Errorf("%w: posição %d repetida", ErrInvalidRows, r.Position)
		}
		if participants[r.ParticipantID] {
			return fmt.Errorf("%w: participante %s repetido", ErrInvalidRows, r.ParticipantID)
		}
		if r.Credits < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidRows, ErrNonNegative)
		}
		positions[r.Position] = true
		participants[r.ParticipantID] = true
		total += r.Credits
	}
	if total > n-1 {
		return fmt.Errorf("%w: %d almas para %d participantes", ErrInvalidRows, total, n)
	}
	return nil
}
