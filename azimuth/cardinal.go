package azimuth

import "fmt"

type CardinalDirection int

const (
	North CardinalDirection = iota
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var cardinalNames = [...]string{"NORTH", "NORTHEAST", "EAST", "SOUTHEAST", "SOUTH", "SOUTHWEST", "WEST", "NORTHWEST"}
var cardinalShort = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Half-open 45° buckets, NorthEast through NorthWest.
// Anything not in one of them is North, including [337.5, 360) ∪ [0, 22.5).
var cardinalBounds = [...]struct {
	from, to float64
	dir      CardinalDirection
}{
	{22.5, 67.5, NorthEast},
	{67.5, 112.5, East},
	{112.5, 157.5, SouthEast},
	{157.5, 202.5, South},
	{202.5, 247.5, SouthWest},
	{247.5, 292.5, West},
	{292.5, 337.5, NorthWest},
}

func cardinalOf(deg float64) CardinalDirection {
	for _, b := range cardinalBounds {
		if b.from <= deg && deg < b.to {
			return b.dir
		}
	}
	return North
}

func (c CardinalDirection) String() string {
	if c < North || c > NorthWest {
		return fmt.Sprintf("CardinalDirection(%d)", int(c))
	}
	return cardinalNames[c]
}

func (c CardinalDirection) ShortString() string {
	if c < North || c > NorthWest {
		return "?"
	}
	return cardinalShort[c]
}

// Heading is the center of the direction's bucket.
func (c CardinalDirection) Heading() float64 {
	return float64(c) * 45
}

func ParseCardinalDirection(s string) (CardinalDirection, error) {
	for i := range cardinalNames {
		if s == cardinalNames[i] || s == cardinalShort[i] {
			return CardinalDirection(i), nil
		}
	}
	return North, fmt.Errorf("invalid cardinal direction %q", s)
}

func (c CardinalDirection) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CardinalDirection) UnmarshalText(text []byte) error {
	v, err := ParseCardinalDirection(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
