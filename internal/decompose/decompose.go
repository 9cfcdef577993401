// Package decompose turns project parameters into a token breakdown, a budget
// allocation, atomic task templates, a phase timeline and a risk assessment.
// Everything here is pure: no store access, no side effects. Callers validate
// inputs (positive budget, known category) before invoking.
package decompose

import (
	"fmt"
	"math"

	"github.com/reelforge/api/internal/model"
)

const baseTokenPrice = 2.50

// categoryMultiplier shifts the per-token price; effects-heavy categories
// price units higher.
var categoryMultiplier = map[model.Category]float64{
	model.CategoryAction:      1.35,
	model.CategoryScifi:       1.30,
	model.CategoryAnimation:   1.25,
	model.CategoryThriller:    1.15,
	model.CategoryHorror:      1.10,
	model.CategoryDrama:       1.00,
	model.CategoryComedy:      0.95,
	model.CategoryDocumentary: 0.85,
}

func multiplier(category model.Category) float64 {
	if m, ok := categoryMultiplier[category]; ok {
		return m
	}
	return 1.00
}

func effectsHeavy(category model.Category) bool {
	switch category {
	case model.CategoryAction, model.CategoryScifi, model.CategoryAnimation:
		return true
	}
	return false
}

type allocation struct {
	name    string
	percent float64
}

var standardAllocations = []allocation{
	{"pre_production", 15},
	{"production", 40},
	{"post_production", 20},
	{"vfx", 12},
	{"marketing", 8},
	{"contingency", 5},
}

var effectsAllocations = []allocation{
	{"pre_production", 14},
	{"production", 34},
	{"post_production", 18},
	{"vfx", 22},
	{"marketing", 7},
	{"contingency", 5},
}

// FilmToTokens computes the cost-unit pricing for a budget and the budget
// split across cost centers. Allocation amounts sum to the input budget up to
// cent rounding.
func FilmToTokens(budget float64, category model.Category) (model.TokenBreakdown, []model.BudgetAllocation) {
	price := baseTokenPrice * multiplier(category)
	// Any positive budget buys at least one token.
	total := int(math.Ceil(budget / price))

	table := standardAllocations
	if effectsHeavy(category) {
		table = effectsAllocations
	}

	allocations := make([]model.BudgetAllocation, 0, len(table))
	for _, a := range table {
		allocations = append(allocations, model.BudgetAllocation{
			Name:    a.name,
			Percent: a.percent,
			Amount:  math.Round(budget*a.percent) / 100,
		})
	}

	return model.TokenBreakdown{TokenPrice: price, TotalTokens: total}, allocations
}

// baselineTasks returns the task set every category gets. Dependency links
// refer to template keys; the slice is built fresh on each call so callers
// may append to DependsOn.
func baselineTasks() []model.TaskTemplate {
	return []model.TaskTemplate{
		{
			Key: "script", Title: "Write script and scene prompts", Type: model.TaskTypeScript,
			Phase: 1, Difficulty: model.DifficultyHard, Price: 180,
			Spec: "Deliver the full script with per-scene generation prompts, beat sheet and dialogue.",
		},
		{
			Key: "storyboard", Title: "Storyboard all scenes", Type: model.TaskTypeStoryboard,
			Phase: 2, Difficulty: model.DifficultyMedium, Price: 120,
			Spec:      "One board per scene with framing, camera movement and continuity notes.",
			DependsOn: []string{"script"},
		},
		{
			Key: "shot_prompts", Title: "Author per-shot generation prompts", Type: model.TaskTypeShotPrompt,
			Phase: 3, Difficulty: model.DifficultyMedium, Price: 90,
			Spec:      "Convert each storyboard panel into a production-ready generation prompt.",
			DependsOn: []string{"storyboard"},
		},
		{
			Key: "voiceover", Title: "Write voiceover and ADR script", Type: model.TaskTypeVoiceover,
			Phase: 3, Difficulty: model.DifficultyEasy, Price: 60,
			Spec:      "Voiceover copy timed against the script, with pronunciation notes.",
			DependsOn: []string{"script"},
		},
		{
			Key: "music_brief", Title: "Write music and score brief", Type: model.TaskTypeMusicBrief,
			Phase: 3, Difficulty: model.DifficultyEasy, Price: 60,
			Spec:      "Per-act mood, tempo and instrumentation direction for the composer.",
			DependsOn: []string{"script"},
		},
		{
			Key: "edit_review", Title: "Review assembly edit", Type: model.TaskTypeEditReview,
			Phase: 4, Difficulty: model.DifficultyMedium, Price: 100,
			Spec:      "Scene-by-scene notes on pacing, continuity and coverage gaps.",
			DependsOn: []string{"shot_prompts"},
		},
		{
			Key: "color_grade", Title: "Review color grade", Type: model.TaskTypeColorGrade,
			Phase: 4, Difficulty: model.DifficultyMedium, Price: 80,
			Spec:      "Check grade consistency across scenes against the reference look.",
			DependsOn: []string{"edit_review"},
		},
		{
			Key: "final_qc", Title: "Final quality pass", Type: model.TaskTypeFinalQC,
			Phase: 5, Difficulty: model.DifficultyHard, Price: 150,
			Spec:      "Full watch-through QC: sync, artifacts, captions, delivery spec compliance.",
			DependsOn: []string{"edit_review", "color_grade"},
		},
	}
}

// FilmToTasks returns the atomic task templates for a category: the common
// baseline plus category-specific additions.
func FilmToTasks(category model.Category) []model.TaskTemplate {
	tasks := baselineTasks()

	if effectsHeavy(category) {
		tasks = append(tasks,
			model.TaskTemplate{
				Key: "vfx_breakdown", Title: "Break down VFX shots", Type: model.TaskTypeVFX,
				Phase: 2, Difficulty: model.DifficultyHard, Price: 140,
				Spec:      "List every effects shot with complexity tier and reference material.",
				DependsOn: []string{"storyboard"},
			},
			model.TaskTemplate{
				Key: "vfx_shots", Title: "Author VFX shot prompts", Type: model.TaskTypeVFX,
				Phase: 3, Difficulty: model.DifficultyExpert, Price: 200,
				Spec:      "Generation prompts and compositing notes for each effects shot.",
				DependsOn: []string{"vfx_breakdown"},
			},
		)
	}

	switch category {
	case model.CategoryAction:
		tasks = append(tasks, model.TaskTemplate{
			Key: "stunt_previz", Title: "Previsualize stunt sequences", Type: model.TaskTypeStuntPrevz,
			Phase: 2, Difficulty: model.DifficultyExpert, Price: 160,
			Spec:      "Blocking and camera previz for every stunt beat.",
			DependsOn: []string{"storyboard"},
		})
	case model.CategoryHorror, model.CategoryThriller:
		tasks = append(tasks, model.TaskTemplate{
			Key: "sound_design", Title: "Design tension sound palette", Type: model.TaskTypeSoundFX,
			Phase: 4, Difficulty: model.DifficultyMedium, Price: 110,
			Spec:      "Stingers, ambience and silence mapping for the tension beats.",
			DependsOn: []string{"edit_review"},
		})
	case model.CategoryDocumentary:
		tasks = append(tasks, model.TaskTemplate{
			Key: "research", Title: "Research and fact-check sources", Type: model.TaskTypeResearch,
			Phase: 1, Difficulty: model.DifficultyMedium, Price: 130,
			Spec:      "Source list with citations; flag every claim in the script draft.",
		})
	}

	return tasks
}

type phaseSpec struct {
	name    string
	weeks   int
	fxWeeks int // duration when the category is effects-heavy
}

var phaseTable = []phaseSpec{
	{"Development", 2, 2},
	{"Pre-Production", 2, 3},
	{"Production", 4, 5},
	{"Post-Production", 3, 5},
	{"Delivery", 1, 1},
}

// Timeline returns the ordered production phases. StartWeek is non-decreasing
// and every duration is positive.
func Timeline(category model.Category) []model.PhaseTemplate {
	heavy := effectsHeavy(category)
	phases := make([]model.PhaseTemplate, 0, len(phaseTable))
	week := 0
	for i, p := range phaseTable {
		weeks := p.weeks
		if heavy {
			weeks = p.fxWeeks
		}
		phases = append(phases, model.PhaseTemplate{
			Name:          p.name,
			Order:         i + 1,
			StartWeek:     week,
			DurationWeeks: weeks,
		})
		week += weeks
	}
	return phases
}

// RiskAssessment classifies project risks. Every entry carries one of the
// four levels; no input falls through unclassified.
func RiskAssessment(budget float64, category model.Category) []model.Risk {
	var risks []model.Risk

	budgetLevel := model.RiskLow
	switch {
	case budget < 50000:
		budgetLevel = model.RiskHigh
	case budget < 250000:
		budgetLevel = model.RiskMedium
	}
	risks = append(risks, model.Risk{
		Category:    "budget",
		Level:       budgetLevel,
		Description: "Contingency headroom relative to total budget.",
		Mitigation:  "Hold the contingency allocation until post-production sign-off.",
	})

	scheduleLevel := model.RiskMedium
	if effectsHeavy(category) {
		scheduleLevel = model.RiskHigh
		if budget < 100000 {
			scheduleLevel = model.RiskVeryHigh
		}
	}
	risks = append(risks, model.Risk{
		Category:    "schedule",
		Level:       scheduleLevel,
		Description: "Effects-heavy work extends post-production and compounds delays.",
		Mitigation:  "Front-load the VFX breakdown and lock shot count before production.",
	})

	risks = append(risks, model.Risk{
		Category:    "quality",
		Level:       model.RiskMedium,
		Description: "Distributed micro-task output varies across workers.",
		Mitigation:  "Dual-stage review on every task; tighten prompts on flagged rework.",
	})

	if category == model.CategoryDocumentary {
		risks = append(risks, model.Risk{
			Category:    "accuracy",
			Level:       model.RiskHigh,
			Description: "Factual claims require verifiable sourcing before release.",
			Mitigation:  "Block final QC on the research task's citation list.",
		})
	}

	return risks
}

// ValidateDependencies rejects task template sets whose dependency links are
// unknown or cyclic.
func ValidateDependencies(templates []model.TaskTemplate) error {
	byKey := make(map[string]model.TaskTemplate, len(templates))
	for _, t := range templates {
		if _, dup := byKey[t.Key]; dup {
			return fmt.Errorf("duplicate task key %q", t.Key)
		}
		byKey[t.Key] = t
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(templates))

	var visit func(key string) error
	visit = func(key string) error {
		switch state[key] {
		case visiting:
			return fmt.Errorf("dependency cycle through task %q", key)
		case done:
			return nil
		}
		state[key] = visiting
		t, ok := byKey[key]
		if !ok {
			return fmt.Errorf("unknown dependency %q", key)
		}
		for _, dep := range t.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[key] = done
		return nil
	}

	for _, t := range templates {
		if err := visit(t.Key); err != nil {
			return err
		}
	}
	return nil
}
