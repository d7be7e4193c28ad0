// Package congress maps calendar dates to congress numbers.
//
// Each congress spans two years and is seated on January 3rd of odd years;
// the 1st Congress convened in 1789.
package congress

import "time"

// firstCongressYear is the year the 1st Congress convened.
const firstCongressYear = 1789

// Current returns the congress number seated at the given time.
func Current(t time.Time) int {
	year := t.Year()
	// Before January 3rd of an odd year the previous congress is still seated.
	if year%2 == 1 && t.Month() == time.January && t.Day() < 3 {
		year--
	}
	if year%2 == 0 {
		year--
	}
	return (year-firstCongressYear)/2 + 1
}

// Range returns every congress number from first through the congress seated
// at the given time, inclusive. Returns nil when first is in the future.
func Range(first int, t time.Time) []int {
	current := Current(t)
	if first > current {
		return nil
	}
	numbers := make([]int, 0, current-first+1)
	for n := first; n <= current; n++ {
		numbers = append(numbers, n)
	}
	return numbers
}
