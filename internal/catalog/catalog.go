// Package catalog holds the closed set of known city names and their static
// grouping into regions. The grouping exists only for nearby-city fallback;
// it is not a distance model.
package catalog

import (
	"sort"
	"strings"
)

// Regions of the reference deployment. Every city belongs to exactly one
// region; regions are fixed at build time.
const (
	RegionMinsk   = "Минская"
	RegionGomel   = "Гомельская"
	RegionMogilev = "Могилёвская"
	RegionVitebsk = "Витебская"
	RegionGrodno  = "Гродненская"
	RegionBrest   = "Брестская"
)

// DefaultRegion is assigned to a city that is missing from the region table.
const DefaultRegion = RegionMinsk

var defaultRegions = map[string][]string{
	RegionMinsk: {
		"Минск", "Борисов", "Солигорск", "Молодечно", "Жодино", "Слуцк",
		"Вилейка", "Березино", "Дзержинск", "Столбцы", "Несвиж", "Клецк",
		"Старые Дороги", "Червень", "Крупки", "Узда", "Негорелое", "Воложин",
	},
	RegionGomel: {
		"Гомель", "Мозырь", "Жлобин", "Светлогорск", "Речица", "Калинковичи",
		"Рогачёв",
	},
	RegionMogilev: {
		"Могилёв", "Горки", "Шклов", "Кировск", "Чериков",
	},
	RegionVitebsk: {
		"Витебск", "Орша", "Новополоцк", "Полоцк", "Поставы", "Браслав",
	},
	RegionGrodno: {
		"Гродно", "Лида", "Волковыск", "Сморгонь", "Ошмяны", "Новогрудок",
		"Щучин", "Островец", "Ивье", "Мир",
	},
	RegionBrest: {
		"Брест", "Барановичи", "Пинск", "Кобрин", "Ивацевичи", "Лунинец",
		"Белоозёрск", "Берёза", "Микашевичи", "Ляховичи",
		"Коссово", "Дрогичин", "Ганцевичи", "Пружаны",
	},
}

// Catalog is the authoritative city list plus the region table. It is
// immutable after construction and safe for concurrent use.
type Catalog struct {
	cities   []string // canonical (sorted) order
	known    map[string]struct{}
	regionOf map[string]string
	regions  map[string][]string
}

// New builds a catalog from an explicit city list and region table. Cities
// appearing in the region table but not in the city list are still known to
// the region lookup; cities absent from the table fall into DefaultRegion.
func New(cities []string, regions map[string][]string) *Catalog {
	c := &Catalog{
		known:    make(map[string]struct{}, len(cities)),
		regionOf: make(map[string]string),
		regions:  make(map[string][]string, len(regions)),
	}
	c.cities = append(c.cities, cities...)
	sort.Strings(c.cities)
	for _, name := range cities {
		c.known[name] = struct{}{}
	}
	for region, members := range regions {
		for _, name := range members {
			if _, taken := c.regionOf[name]; taken {
				continue // first listing wins, regions stay disjoint
			}
			c.regionOf[name] = region
			c.regions[region] = append(c.regions[region], name)
		}
	}
	return c
}

// NewDefault returns the reference deployment's catalog.
func NewDefault() *Catalog {
	var cities []string
	seen := make(map[string]struct{})
	for _, members := range defaultRegions {
		for _, name := range members {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			cities = append(cities, name)
		}
	}
	return New(cities, defaultRegions)
}

// Cities returns the city names in canonical sorted order.
func (c *Catalog) Cities() []string {
	out := make([]string, len(c.cities))
	copy(out, c.cities)
	return out
}

// Known reports whether name is a catalog city (exact match).
func (c *Catalog) Known(name string) bool {
	_, ok := c.known[name]
	return ok
}

// First returns the first city in canonical order, the terminal fallback of
// city resolution. Empty string for an empty catalog.
func (c *Catalog) First() string {
	if len(c.cities) == 0 {
		return ""
	}
	return c.cities[0]
}

// Match resolves a reverse-geocoded place name to a catalog city using
// case-insensitive substring containment in either direction, which tolerates
// suburb and district names ("Минский район" matches "Минск").
func (c *Catalog) Match(place string) (string, bool) {
	place = strings.ToLower(strings.TrimSpace(place))
	if place == "" {
		return "", false
	}
	for _, city := range c.cities {
		lc := strings.ToLower(city)
		if strings.Contains(place, lc) || strings.Contains(lc, place) {
			return city, true
		}
	}
	return "", false
}

// Region returns the region a city belongs to. A city missing from the
// region table is treated as belonging to DefaultRegion.
func (c *Catalog) Region(city string) string {
	if region, ok := c.regionOf[city]; ok {
		return region
	}
	return DefaultRegion
}

// RegionMates returns the other cities in city's region, excluding the city
// itself, in the table's order.
func (c *Catalog) RegionMates(city string) []string {
	region := c.Region(city)
	var mates []string
	for _, name := range c.regions[region] {
		if name != city {
			mates = append(mates, name)
		}
	}
	return mates
}
