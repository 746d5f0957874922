// Package tester drives scripted scenarios against a live state
// authority and logic engine pair: reset to a known map, replay an
// intent sequence, capture the final world and the full delta
// sequence, and compare the rendered outcome against stored snapshot
// baselines. It also verifies determinism by replaying a scenario
// twice and demanding identical normalized outcomes.
package tester
