package insights

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrAdvisoryUnavailable is returned by advisors that could not produce
// text. ResilientAdvisor never returns it.
var ErrAdvisoryUnavailable = errors.New("insights: advisory unavailable")

// Advisor phrases a finding.
type Advisor interface {
	Advise(ctx context.Context, f Finding) (Advice, error)
}

// TemplateAdvisor phrases findings from fixed text. It never fails.
type TemplateAdvisor struct{}

// Advise returns the template for f.Type.
func (TemplateAdvisor) Advise(_ context.Context, f Finding) (Advice, error) {
	switch f.Type {
	case TypeHighRiskBeginner:
		return Advice{
			Title:          "Your risk appetite is ahead of your experience",
			Description:    fmt.Sprintf("You scored %v on risk tolerance while still new to crypto.", f.Data["risk_score"]),
			Recommendation: "Start with well-established airdrops and small amounts until you are comfortable with how they work.",
		}, nil
	case TypeLowSecurity:
		return Advice{
			Title:          "Tighten your wallet security",
			Description:    "Your answers suggest security is not a priority yet. Airdrop hunters are frequent phishing targets.",
			Recommendation: "Use a dedicated wallet for airdrops, enable hardware signing and never share your seed phrase.",
		}, nil
	case TypeLowChainDiversity:
		return Advice{
			Title:          "Explore more chains",
			Description:    fmt.Sprintf("You have only interacted with %s.", joinChains(f.Data["chains"])),
			Recommendation: "Try a low-fee network such as Polygon or Base to widen your airdrop eligibility.",
		}, nil
	case TypeLowCompletion:
		return Advice{
			Title:          "Finish what you start",
			Description:    fmt.Sprintf("You complete about %v%% of the tasks you begin.", f.Data["completion_rate"]),
			Recommendation: "Pick fewer airdrops at a time and use reminders to finish their tasks.",
		}, nil
	case TypeBurstActivity:
		return Advice{
			Title:          "Spread out your activity",
			Description:    "Your activity comes in short bursts followed by quiet periods.",
			Recommendation: "A few minutes every day keeps you eligible for streak-based rewards.",
		}, nil
	case TypeDecliningChain:
		return Advice{
			Title:          fmt.Sprintf("Less activity on %v", f.Data["chain"]),
			Description:    fmt.Sprintf("Your use of %v, your top chain, is trending down.", f.Data["chain"]),
			Recommendation: "Check whether there are open campaigns on it before moving on.",
		}, nil
	default:
		return Advice{
			Title:          "New insight",
			Description:    string(f.Type),
			Recommendation: "Review your profile for details.",
		}, nil
	}
}

func joinChains(v any) string {
	names, _ := v.([]string)
	if len(names) == 0 {
		return "one chain"
	}
	return strings.Join(names, " and ")
}
