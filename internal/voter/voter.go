// Package voter implements the review committee: each voter independently
// judges a change's diff against its proposal and required checks, and
// RunVoters fans them out concurrently with per-voter failure isolation.
package voter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/specq-run/specq/internal/models"
	"github.com/specq-run/specq/internal/textgen"
)

const systemPrompt = `You are a code reviewer. Compare the git diff against the original proposal and judge whether the implementation complies.

Respond in JSON only (do not wrap it in a markdown code fence):
{
  "verdict": "pass" or "fail",
  "confidence": 0.0-1.0,
  "findings": [
    {"severity": "info|warning|critical", "category": "spec_compliance|regression_risk|architecture", "description": "..."}
  ],
  "summary": "one-line summary"
}`

const maxDiffBytes = 50000

// Voter is one committee member.
type Voter struct {
	Name      string
	Generator textgen.TextGenerator
}

func buildUserPrompt(diff, proposal, projectRules string, checks []string) string {
	var b strings.Builder
	b.WriteString("## Git Diff\n```\n")
	if len(diff) > maxDiffBytes {
		diff = diff[:maxDiffBytes]
	}
	b.WriteString(diff)
	b.WriteString("\n```\n\n## Original Proposal\n")
	b.WriteString(proposal)
	b.WriteString("\n\n")
	if projectRules != "" {
		fmt.Fprintf(&b, "## Project Rules\n%s\n\n", projectRules)
	}
	if len(checks) > 0 {
		b.WriteString("## Required Checks\n")
		for _, c := range checks {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	return b.String()
}

// Review produces one VoteResult for diff/proposal under checks.
func (v Voter) Review(ctx context.Context, diff, proposal, projectRules string, checks []string) models.VoteResult {
	raw, err := v.Generator.Generate(ctx, systemPrompt, buildUserPrompt(diff, proposal, projectRules, checks))
	if err != nil {
		return models.VoteResult{VoterName: v.Name, Verdict: models.VerdictError, Summary: fmt.Sprintf("Voter error: %v", err)}
	}
	return parseVoteResponse(raw, v.Name)
}

type rawVoteResponse struct {
	Verdict    string           `json:"verdict"`
	Confidence float64          `json:"confidence"`
	Findings   []models.Finding `json:"findings"`
	Summary    string           `json:"summary"`
}

// parseVoteResponse parses an LLM's JSON reply into a VoteResult, stripping
// an optional surrounding markdown code fence first. Any parse failure, or
// a verdict outside {pass, fail}, produces a safe, non-passing result.
func parseVoteResponse(raw, voterName string) models.VoteResult {
	text := stripCodeFence(strings.TrimSpace(raw))

	var parsed rawVoteResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return models.VoteResult{
			VoterName: voterName,
			Verdict:   models.VerdictError,
			Summary:   "Failed to parse voter response as JSON",
		}
	}

	verdict := models.Verdict(parsed.Verdict)
	if verdict != models.VerdictPass && verdict != models.VerdictFail {
		verdict = models.VerdictFail
	}

	findings := parsed.Findings
	if findings == nil {
		findings = []models.Finding{}
	}

	return models.VoteResult{
		VoterName:  voterName,
		Verdict:    verdict,
		Confidence: parsed.Confidence,
		Findings:   findings,
		Summary:    parsed.Summary,
	}
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	var out []string
	inside := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") && !inside {
			inside = true
			continue
		}
		if trimmed == "```" && inside {
			break
		}
		if inside {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// RunVoters runs every voter concurrently and isolates failures: a voter
// whose Review call panics is recovered into an error VoteResult so the
// others are unaffected. Results are returned in the order of voters.
func RunVoters(ctx context.Context, voters []Voter, diff, proposal, projectRules string, checks []string) []models.VoteResult {
	results := make([]models.VoteResult, len(voters))
	var g errgroup.Group
	for i, v := range voters {
		i, v := i, v
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					results[i] = models.VoteResult{VoterName: v.Name, Verdict: models.VerdictError, Summary: fmt.Sprintf("Voter error: %v", r)}
				}
			}()
			results[i] = v.Review(ctx, diff, proposal, projectRules, checks)
			return nil
		})
	}
	g.Wait() // every Go func always returns nil; verdicts carry failure, not the error path
	return results
}
