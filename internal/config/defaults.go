package config

import "gopkg.in/yaml.v3"

// defaults mirrors the embedded thresholds.yaml.
type defaults struct {
	Recognition struct {
		MatchThreshold       float64 `yaml:"match_threshold"`
		SaveThreshold        float64 `yaml:"save_threshold"`
		DetScoreMin          float64 `yaml:"det_score_min"`
		ReviewMargin         float64 `yaml:"review_margin"`
		AdaptiveAlpha        float64 `yaml:"adaptive_alpha"`
		UpdateEvery          int     `yaml:"update_every"`
		Window               int     `yaml:"window"`
		StaleAfter           int     `yaml:"stale_after"`
		ExactSearchThreshold int     `yaml:"exact_search_threshold"`
	} `yaml:"recognition"`
	HNSW struct {
		MaxNeighbors int `yaml:"max_neighbors"`
		EfSearch     int `yaml:"ef_search"`
	} `yaml:"hnsw"`
}

func loadDefaults() defaults {
	var def defaults
	if err := yaml.Unmarshal(thresholdsYAML, &def); err != nil {
		// The file is embedded, so this cannot happen outside a bad edit.
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}
	return def
}
