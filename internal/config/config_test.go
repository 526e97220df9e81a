package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	def := loadDefaults()

	if def.Recognition.MatchThreshold != 0.40 {
		t.Errorf("match_threshold = %v, want 0.40", def.Recognition.MatchThreshold)
	}
	if def.Recognition.SaveThreshold != 0.20 {
		t.Errorf("save_threshold = %v, want 0.20", def.Recognition.SaveThreshold)
	}
	if def.Recognition.DetScoreMin != 0.90 {
		t.Errorf("det_score_min = %v, want 0.90", def.Recognition.DetScoreMin)
	}
	if def.Recognition.Window != 3 {
		t.Errorf("window = %v, want 3", def.Recognition.Window)
	}
	if def.Recognition.UpdateEvery != 10 {
		t.Errorf("update_every = %v, want 10", def.Recognition.UpdateEvery)
	}
	if def.HNSW.MaxNeighbors != 16 {
		t.Errorf("hnsw max_neighbors = %v, want 16", def.HNSW.MaxNeighbors)
	}
}

func TestLoadThresholdOrdering(t *testing.T) {
	// save <= review <= match must hold for the defaults.
	cfg := Load()
	r := cfg.Recognition
	if r.ReviewThreshold > r.MatchThreshold {
		t.Errorf("review threshold %v exceeds match threshold %v", r.ReviewThreshold, r.MatchThreshold)
	}
	if r.SaveThreshold > r.ReviewThreshold {
		t.Errorf("save threshold %v exceeds review threshold %v", r.SaveThreshold, r.ReviewThreshold)
	}
	if r.ReviewThreshold < 0 {
		t.Errorf("review threshold %v is negative", r.ReviewThreshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "0.65")
	t.Setenv("MULTIFRAME_COUNT", "5")
	t.Setenv("CAMERA_ID", "garage")

	cfg := Load()
	if cfg.Recognition.MatchThreshold != 0.65 {
		t.Errorf("MatchThreshold = %v, want 0.65", cfg.Recognition.MatchThreshold)
	}
	if cfg.Recognition.Window != 5 {
		t.Errorf("Window = %v, want 5", cfg.Recognition.Window)
	}
	if cfg.Camera.ID != "garage" {
		t.Errorf("Camera.ID = %q, want garage", cfg.Camera.ID)
	}
}

func TestEnvOverridesInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MATCH_THRESHOLD", "1.7") // out of range
	t.Setenv("MULTIFRAME_COUNT", "zero")

	cfg := Load()
	if cfg.Recognition.MatchThreshold != 0.40 {
		t.Errorf("MatchThreshold = %v, want default 0.40", cfg.Recognition.MatchThreshold)
	}
	if cfg.Recognition.Window != 3 {
		t.Errorf("Window = %v, want default 3", cfg.Recognition.Window)
	}
}
