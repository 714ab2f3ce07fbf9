package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages runtime toggles for the engine's optional surfaces.
// Supports gradual rollout by user ID and per-user overrides for debugging.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	userOverrides map[int64]map[string]bool // userID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100). Users are assigned to buckets by a
	// consistent hash of their ID, so a user stays in or out across
	// restarts.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// === Shop ===
	FeatureShopPurchases = "shop.purchases" // freeze/shield purchase ingestion
	FeatureShopRepair    = "shop.repair"    // paid streak repair

	// === Monitor ===
	FeatureMonitorSweep = "monitor.sweep" // background risk-state sweep

	// === Notifications ===
	FeatureNotifyMilestones = "notify.milestones"  // milestone reward notices
	FeatureNotifyRiskStates = "notify.risk_states" // at-risk/critical warnings

	// === Read side ===
	FeatureSnapshotCache = "cache.snapshots" // redis snapshot cache
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[int64]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureShopPurchases] = &Feature{
		Name:           FeatureShopPurchases,
		Description:    "Accept confirmed freeze/shield purchases",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureShopRepair] = &Feature{
		Name:           FeatureShopRepair,
		Description:    "Accept paid streak repairs",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureMonitorSweep] = &Feature{
		Name:           FeatureMonitorSweep,
		Description:    "Run the periodic risk-state sweep",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyMilestones] = &Feature{
		Name:           FeatureNotifyMilestones,
		Description:    "Notify users about milestone rewards",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureNotifyRiskStates] = &Feature{
		Name:           FeatureNotifyRiskStates,
		Description:    "Warn users when a streak is at risk",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureSnapshotCache] = &Feature{
		Name:           FeatureSnapshotCache,
		Description:    "Serve snapshots through the redis cache",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_SHOP_REPAIR=false
// Example: FEATURE_NOTIFY_RISK_STATES=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		val := os.Getenv(envKey)
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts a feature name to its env var key.
// "shop.repair" -> "FEATURE_SHOP_REPAIR"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks whether a feature is enabled for the given user.
// userID 0 means "no user in scope" and only the global toggle applies.
func (ff *FeatureFlags) IsEnabled(featureName string, userID int64) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if userID != 0 {
		if overrides, ok := ff.userOverrides[userID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}
	if !feature.Enabled {
		return false
	}

	if feature.RolloutPercent < 100 && userID != 0 {
		return isInRollout(userID, featureName, feature.RolloutPercent)
	}
	return feature.RolloutPercent > 0
}

// isInRollout determines if a user falls inside the rollout percentage.
func isInRollout(userID int64, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(strconv.FormatInt(userID, 10)))
	bucket := int(h.Sum32() % 100)
	return bucket < percent
}

// SetUserOverride sets a feature override for a specific user.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetUserOverride(userID int64, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// ClearUserOverrides removes all overrides for a user.
func (ff *FeatureFlags) ClearUserOverrides(userID int64) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.userOverrides, userID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
