package codec

import "fmt"

// MaxPos is the largest valid board position (row*10+col on a 10x10 grid).
const MaxPos = 99

// CoordString renders pos as column letter A-J followed by row digit.
func CoordString(pos uint8) string {
	x := pos % 10
	y := pos / 10
	return fmt.Sprintf("%c%d", rune('A'+x), y)
}

// ParseCoord converts a column letter A-J and row digit 0-9 into a position.
func ParseCoord(col, row string) (uint8, error) {
	if col == "" {
		return 0, fmt.Errorf("invalid X coordinate")
	}
	if row == "" {
		return 0, fmt.Errorf("invalid Y coordinate")
	}
	c := col[0]
	if c >= 'a' && c <= 'j' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'J' {
		return 0, fmt.Errorf("X coordinate must be between A and J")
	}
	r := row[0]
	if r < '0' || r > '9' {
		return 0, fmt.Errorf("Y coordinate must be between 0 and 9")
	}
	return (r-'0')*10 + (c - 'A'), nil
}
