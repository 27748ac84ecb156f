package engine

type StreetStep struct {
	Street Street
	Deal   int // board cards dealt on entering the street
}

var StreetOrder = []StreetStep{
	{Street: StreetPreflop, Deal: 0},
	{Street: StreetFlop, Deal: 3},
	{Street: StreetTurn, Deal: 1},
	{Street: StreetRiver, Deal: 1},
	{Street: StreetShowdown, Deal: 0},
}
