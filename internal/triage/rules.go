package triage

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/loomworks/loom/internal/model"
)

// SettingRules is the config setting holding an entity's filter rules
// as a JSON array.
const SettingRules = "triage_rules"

// RulesFromConfig decodes the entity's filter rules, capped at the
// tier limit. A malformed rule set is logged and treated as empty
// rather than blocking the episode.
func RulesFromConfig(cfg *model.Config, maxRules int) []model.FilterRule {
	if cfg == nil {
		return nil
	}
	raw := cfg.Settings[SettingRules]
	if raw == "" {
		return nil
	}

	var rules []model.FilterRule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		slog.Warn("malformed triage rules, ignoring", "error", err)
		return nil
	}
	if maxRules > 0 && len(rules) > maxRules {
		rules = rules[:maxRules]
	}
	return rules
}

// ruleMatches reports whether a rule applies to an item. A rule with
// no conditions matches nothing.
func ruleMatches(rule model.FilterRule, item model.TriageItem) bool {
	if rule.SenderContains == "" && rule.SubjectContains == "" {
		return false
	}
	if rule.SenderContains != "" &&
		!strings.Contains(strings.ToLower(item.Sender), strings.ToLower(rule.SenderContains)) {
		return false
	}
	if rule.SubjectContains != "" &&
		!strings.Contains(strings.ToLower(item.Subject), strings.ToLower(rule.SubjectContains)) {
		return false
	}
	return true
}
