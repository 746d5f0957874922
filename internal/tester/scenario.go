package tester

import "github.com/onekgame/onek/internal/schema"

// Scenario is one scripted run: an initial level and an ordered intent
// sequence to replay from it.
type Scenario struct {
	Name    string
	Map     string
	Intents []schema.Intent
}

// Scenarios is the built-in suite. Each entry has a snapshot baseline
// under testdata/.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name: "walk_east",
			Map:  "#####\n#@  #\n#####",
			Intents: []schema.Intent{
				{Kind: schema.IntentBump, Target: schema.Point{X: 2, Y: 1}},
				{Kind: schema.IntentBump, Target: schema.Point{X: 3, Y: 1}},
			},
		},
		{
			Name: "wall_bounce",
			Map:  "###\n#@#\n###",
			Intents: []schema.Intent{
				{Kind: schema.IntentBump, Target: schema.Point{X: 1, Y: 0}},
			},
		},
		{
			Name: "splash_through_water",
			Map:  "#####\n#@~ #\n#####",
			Intents: []schema.Intent{
				{Kind: schema.IntentBump, Target: schema.Point{X: 2, Y: 1}},
				{Kind: schema.IntentBump, Target: schema.Point{X: 3, Y: 1}},
			},
		},
		{
			Name: "deep_water_refusal",
			Map:  "####\n#@W#\n####",
			Intents: []schema.Intent{
				{Kind: schema.IntentBump, Target: schema.Point{X: 2, Y: 1}},
			},
		},
		{
			Name: "examine_surroundings",
			Map:  "####\n#@~#\n####",
			Intents: []schema.Intent{
				{Kind: schema.IntentExamine, Target: schema.Point{X: 2, Y: 1}},
				{Kind: schema.IntentExamine, Target: schema.Point{X: 1, Y: 1}},
			},
		},
	}
}
