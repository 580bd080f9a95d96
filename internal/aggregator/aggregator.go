// Package aggregator reduces a voter committee's verdicts into a single
// decision for a work item. Aggregate is a pure function of its inputs:
// no other state affects the decision.
package aggregator

import "github.com/specq-run/specq/internal/models"

// Aggregate folds a committee's vote results into a decision, given the
// configured strategy and the work item's risk tier.
//
// Rules, applied in order:
//  1. strategy=skip always approves, ignoring results.
//  2. Zero results rejects (an error verdict does not count as zero).
//  3. passed iff: majority → pass_count > total/2; unanimous → pass_count == total.
//     An error verdict counts as not-pass either way.
//  4. A pass is escalated to needs_review if any finding is critical, or
//     risk is high.
func Aggregate(results []models.VoteResult, strategy models.VerificationStrategy, risk models.Risk) (models.Decision, []models.Finding) {
	if strategy == models.StrategySkip {
		return models.DecisionApproved, nil
	}

	var findings []models.Finding
	for _, r := range results {
		findings = append(findings, r.Findings...)
	}

	total := len(results)
	if total == 0 {
		return models.DecisionRejected, findings
	}

	passCount := 0
	for _, r := range results {
		if r.Verdict == models.VerdictPass {
			passCount++
		}
	}

	var passed bool
	if strategy == models.StrategyUnanimous {
		passed = passCount == total
	} else {
		// majority, and any unrecognized strategy defaults to majority
		passed = passCount*2 > total
	}

	if !passed {
		return models.DecisionRejected, findings
	}

	if hasCriticalFinding(findings) || risk == models.RiskHigh {
		return models.DecisionNeedsReview, findings
	}

	return models.DecisionApproved, findings
}

func hasCriticalFinding(findings []models.Finding) bool {
	for _, f := range findings {
		if f.Severity == models.SeverityCritical {
			return true
		}
	}
	return false
}
