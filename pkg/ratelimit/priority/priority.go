// Package priority translates token availability into a blocking wait
// contract differentiated by admission urgency.
package priority

// Priority is the admission-urgency class of a request. Lower numeric
// value means higher precedence.
type Priority int

const (
	Critical Priority = iota + 1
	High
	Medium
	Low
)

// String returns the lowercase name of the priority class.
func (p Priority) String() string {
	switch p {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	}
	return "unknown"
}

// Valid reports whether p is one of the four defined classes.
func (p Priority) Valid() bool {
	return p >= Critical && p <= Low
}
