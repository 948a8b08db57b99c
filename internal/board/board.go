// internal/board/board.go
package board

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed data/*.json
var mapFiles embed.FS

// SpaceType classifies a board space.
type SpaceType string

const (
	SpaceStreet  SpaceType = "street"
	SpaceAirport SpaceType = "airport"
	SpaceUtility SpaceType = "utility"
	SpaceTax     SpaceType = "tax"
	SpaceCorner  SpaceType = "corner"
	SpaceCard    SpaceType = "card"
)

// Well-known corner positions on the classic map.
const (
	StartPosition    = 0
	JailPosition     = 10
	VacationPosition = 20
	GoToJailPosition = 30
)

// Definition is the static, immutable description of a single board space.
// Rent is tiered: for streets, Rent[0..4] is 0-4 houses and Rent[5] is the
// hotel tier; for airports, Rent[i] is the rent when the owner holds i+1
// airports; for utilities, Rent[i] is the dice multiplier when the owner
// holds i+1 utilities.
type Definition struct {
	Name      string    `json:"name"`
	Type      SpaceType `json:"type"`
	Set       string    `json:"set,omitempty"`
	Position  int       `json:"position"`
	Price     int       `json:"price,omitempty"`
	BuildCost int       `json:"buildCost,omitempty"`
	Rent      []int     `json:"rent,omitempty"`
	Tax       int       `json:"tax,omitempty"`
}

// Purchasable reports whether the space can be owned by a player.
func (d *Definition) Purchasable() bool {
	switch d.Type {
	case SpaceStreet, SpaceAirport, SpaceUtility:
		return true
	}
	return false
}

// Map is a fully loaded board: an ordered list of spaces plus lookup indexes.
type Map struct {
	Name   string
	Spaces []Definition

	byName map[string]*Definition
	byPos  map[int]*Definition
	sets   map[string][]*Definition
}

// NewMap parses a board definition file and builds the lookup indexes.
func NewMap(name string, data []byte) (*Map, error) {
	var spaces []Definition
	if err := json.Unmarshal(data, &spaces); err != nil {
		return nil, fmt.Errorf("failed to parse board map %s: %w", name, err)
	}
	if len(spaces) == 0 {
		return nil, fmt.Errorf("board map %s has no spaces", name)
	}

	m := &Map{
		Name:   name,
		Spaces: spaces,
		byName: make(map[string]*Definition, len(spaces)),
		byPos:  make(map[int]*Definition, len(spaces)),
		sets:   make(map[string][]*Definition),
	}
	for i := range m.Spaces {
		d := &m.Spaces[i]
		if _, dup := m.byName[d.Name]; dup {
			return nil, fmt.Errorf("board map %s: duplicate space name %q", name, d.Name)
		}
		if _, dup := m.byPos[d.Position]; dup {
			return nil, fmt.Errorf("board map %s: duplicate position %d", name, d.Position)
		}
		m.byName[d.Name] = d
		m.byPos[d.Position] = d
		if d.Set != "" {
			m.sets[d.Set] = append(m.sets[d.Set], d)
		}
	}
	return m, nil
}

// LoadMap loads one of the embedded board maps by name (e.g. "classic").
func LoadMap(name string) (*Map, error) {
	data, err := mapFiles.ReadFile("data/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("unknown board map %q: %w", name, err)
	}
	return NewMap(name, data)
}

// Classic returns the default 40-space map. Panics if the embedded data is
// malformed, which is a build defect rather than a runtime condition.
func Classic() *Map {
	m, err := LoadMap("classic")
	if err != nil {
		panic(err)
	}
	return m
}

// Size returns the number of spaces on the board.
func (m *Map) Size() int {
	return len(m.Spaces)
}

// ByName looks up a space by its unique name.
func (m *Map) ByName(name string) (*Definition, bool) {
	d, ok := m.byName[name]
	return d, ok
}

// ByPosition looks up a space by its board position.
func (m *Map) ByPosition(pos int) (*Definition, bool) {
	d, ok := m.byPos[pos]
	return d, ok
}

// SetMembers returns all spaces belonging to a named set, in board order.
func (m *Map) SetMembers(set string) []*Definition {
	return m.sets[set]
}

// CountType returns how many spaces of the given type exist on the map.
func (m *Map) CountType(t SpaceType) int {
	n := 0
	for i := range m.Spaces {
		if m.Spaces[i].Type == t {
			n++
		}
	}
	return n
}
