package weather

import (
	"sort"
	"strings"
)

// Gazetteer maps lower-case place names to coordinates.
type Gazetteer map[string]Coordinates

// UKCities is the set of named locations served to every tier.
var UKCities = Gazetteer{
	"london":      {Lat: 51.5074, Lon: -0.1278},
	"manchester":  {Lat: 53.4808, Lon: -2.2426},
	"birmingham":  {Lat: 52.4862, Lon: -1.8904},
	"edinburgh":   {Lat: 55.9533, Lon: -3.1883},
	"bristol":     {Lat: 51.4545, Lon: -2.5879},
	"leeds":       {Lat: 53.8008, Lon: -1.5491},
	"glasgow":     {Lat: 55.8642, Lon: -4.2518},
	"liverpool":   {Lat: 53.4084, Lon: -2.9916},
	"newcastle":   {Lat: 54.9783, Lon: -1.6178},
	"sheffield":   {Lat: 53.3811, Lon: -1.4701},
	"cardiff":     {Lat: 51.4816, Lon: -3.1791},
	"belfast":     {Lat: 54.5973, Lon: -5.9301},
	"nottingham":  {Lat: 52.9548, Lon: -1.1581},
	"southampton": {Lat: 50.9097, Lon: -1.4044},
	"brighton":    {Lat: 50.8225, Lon: -0.1372},
}

// Lookup finds a place by name, ignoring case and surrounding space.
func (g Gazetteer) Lookup(name string) (Coordinates, bool) {
	c, ok := g[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Names returns the known place names in alphabetical order.
func (g Gazetteer) Names() []string {
	names := make([]string, 0, len(g))
	for n := range g {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
