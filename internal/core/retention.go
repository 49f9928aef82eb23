package core

import (
	"sort"
	"time"

	"repoforge/internal/types"
)

// ResolveSelections expands the per-project rotation rules into concrete
// retention groups. With both ref and flavor rules every (flavor, ref)
// pair becomes a group; otherwise each configured value is its own group.
func ResolveSelections(rotation map[string]types.ProjectRotation, now time.Time) []types.PurgeSelection {
	var selections []types.PurgeSelection
	for _, project := range sortedKeys(rotation) {
		if project == types.PurgeRotationAllKey {
			continue
		}
		rules := rotation[project]
		switch {
		case len(rules.Ref) > 0 && len(rules.Flavor) > 0:
			for _, flavor := range sortedKeys(rules.Flavor) {
				for _, ref := range sortedKeys(rules.Ref) {
					days, keep := mergeRules(rules.Flavor[flavor], rules.Ref[ref])
					selections = append(selections, newSelection(project, stringPtr(ref), stringPtr(flavor), days, keep, now))
				}
			}
		case len(rules.Ref) > 0:
			for _, ref := range sortedKeys(rules.Ref) {
				rule := rules.Ref[ref]
				selections = append(selections, newSelection(project, stringPtr(ref), nil, rule.DaysOr(types.DefaultPurgeDays), rule.KeepMinimum, now))
			}
		case len(rules.Flavor) > 0:
			for _, flavor := range sortedKeys(rules.Flavor) {
				rule := rules.Flavor[flavor]
				selections = append(selections, newSelection(project, nil, stringPtr(flavor), rule.DaysOr(types.DefaultPurgeDays), rule.KeepMinimum, now))
			}
		}
	}
	return selections
}

// mergeRules takes the larger value of each side; a missing days falls back
// to the other side and then to the default lifespan.
func mergeRules(a types.RotationRule, b types.RotationRule) (int, int) {
	var days int
	switch {
	case a.Days != nil && b.Days != nil:
		days = max(*a.Days, *b.Days)
	case a.Days != nil:
		days = *a.Days
	case b.Days != nil:
		days = *b.Days
	default:
		days = types.DefaultPurgeDays
	}
	return days, max(a.KeepMinimum, b.KeepMinimum)
}

func newSelection(project string, ref *string, flavor *string, days int, keep int, now time.Time) types.PurgeSelection {
	return types.PurgeSelection{
		Project:     project,
		Ref:         ref,
		Flavor:      flavor,
		Days:        days,
		KeepMinimum: keep,
		Cutoff:      now.AddDate(0, 0, -days),
	}
}

// PlanPurge decides which of repos the sweep deletes. Configured groups are
// evaluated first; everything else falls through to the default lifespan
// unless its ref or flavor is explicitly configured for its project.
func PlanPurge(repos []types.Repo, rotation map[string]types.ProjectRotation, now time.Time) types.PurgePlan {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	selections := ResolveSelections(rotation, now)
	deleteIDs := map[int64]struct{}{}

	for _, selection := range selections {
		var group []types.Repo
		for _, repo := range repos {
			if selectionMatches(selection, repo) {
				group = append(group, repo)
			}
		}
		sortNewestFirst(group)
		for i, repo := range group {
			if i < selection.KeepMinimum {
				continue
			}
			if repo.Modified.Before(selection.Cutoff) {
				deleteIDs[repo.ID] = struct{}{}
			}
		}
	}

	defaultCutoff := now.AddDate(0, 0, -types.DefaultPurgeDays)
	for _, repo := range repos {
		if configuredElsewhere(rotation, repo) {
			continue
		}
		if repo.Modified.Before(defaultCutoff) {
			deleteIDs[repo.ID] = struct{}{}
		}
	}

	plan := types.PurgePlan{Selections: selections}
	for _, repo := range repos {
		if _, ok := deleteIDs[repo.ID]; ok {
			plan.Delete = append(plan.Delete, repo)
		} else {
			plan.Keep = append(plan.Keep, repo)
		}
	}
	sortOldestFirst(plan.Delete)
	return plan
}

func selectionMatches(selection types.PurgeSelection, repo types.Repo) bool {
	if repo.Key.Project != selection.Project {
		return false
	}
	if selection.Ref != nil && repo.Key.Ref != *selection.Ref {
		return false
	}
	if selection.Flavor != nil && repo.Key.Flavor != *selection.Flavor {
		return false
	}
	return true
}

// configuredElsewhere reports whether a configured rule already owns the
// repo's exact ref or flavor value.
func configuredElsewhere(rotation map[string]types.ProjectRotation, repo types.Repo) bool {
	rules, ok := rotation[repo.Key.Project]
	if !ok || repo.Key.Project == types.PurgeRotationAllKey {
		return false
	}
	return rules.HasRef(repo.Key.Ref) || rules.HasFlavor(repo.Key.Flavor)
}

func sortNewestFirst(repos []types.Repo) {
	sort.SliceStable(repos, func(i, j int) bool {
		if !repos[i].Modified.Equal(repos[j].Modified) {
			return repos[i].Modified.After(repos[j].Modified)
		}
		return repos[i].ID > repos[j].ID
	})
}

func sortOldestFirst(repos []types.Repo) {
	sort.SliceStable(repos, func(i, j int) bool {
		if !repos[i].Modified.Equal(repos[j].Modified) {
			return repos[i].Modified.Before(repos[j].Modified)
		}
		return repos[i].ID < repos[j].ID
	})
}
