package negotiation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// Default subjects used when generated text has no Subject line.
const (
	DefaultInitialSubject    = "Request for pricing review"
	DefaultCounterSubject    = "Re: Pricing proposal"
	DefaultAcceptanceSubject = "Re: Pricing agreement"
)

// Email is a parsed outbound message.
type Email struct {
	Subject string
	Body    string
}

// ParseEmail splits generated text into subject and body at the first line
// starting with "Subject:". Without one, the whole text is the body and
// defaultSubject is used.
func ParseEmail(raw, defaultSubject string) Email {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.TrimLeft(line, "*# "))
		if len(trimmed) < len("subject:") || !strings.EqualFold(trimmed[:len("subject:")], "subject:") {
			continue
		}
		subject := strings.TrimSpace(strings.Trim(trimmed[len("subject:"):], "* "))
		if subject == "" {
			subject = defaultSubject
		}
		return Email{Subject: subject, Body: strings.TrimSpace(strings.Join(lines[i+1:], "\n"))}
	}
	return Email{Subject: defaultSubject, Body: strings.TrimSpace(raw)}
}

// PromptContext is what every email prompt is built from.
type PromptContext struct {
	BuyerName    string
	SupplierName string
	Profile      Profile
	Lines        []models.OfferLine
	Ask          map[string]decimal.Decimal
	Counter      map[string]decimal.Decimal // their last prices, for counter and acceptance emails
	Round        int
	MaxRounds    int
}

// InitialPrompt asks for the round-one email.
func InitialPrompt(pc PromptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a professional procurement email from %s to %s requesting better pricing.\n", pc.BuyerName, pc.SupplierName)
	fmt.Fprintf(&b, "Negotiation strategy: %s.\n", pc.Profile.Strategy)
	writeTalkingPoints(&b, pc.Profile)
	b.WriteString("Products and the exact prices we are asking for:\n")
	writeLines(&b, pc.Lines, pc.Ask, nil)
	b.WriteString("Keep it under 200 words. Start with a line \"Subject: ...\" followed by the body.\n")
	return b.String()
}

// CounterPrompt asks for a counter-proposal email.
func CounterPrompt(pc PromptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a polite counter-proposal email from %s to %s (round %d of %d).\n", pc.BuyerName, pc.SupplierName, pc.Round, pc.MaxRounds)
	fmt.Fprintf(&b, "Negotiation strategy: %s.\n", pc.Profile.Strategy)
	writeTalkingPoints(&b, pc.Profile)
	b.WriteString("Their latest prices and our counter:\n")
	writeLines(&b, pc.Lines, pc.Ask, pc.Counter)
	b.WriteString("Thank them for the offer, state our counter prices exactly. Start with a line \"Subject: ...\" followed by the body.\n")
	return b.String()
}

// AcceptancePrompt asks for an email accepting their prices.
func AcceptancePrompt(pc PromptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short email from %s to %s accepting the following prices and asking for a written confirmation.\n", pc.BuyerName, pc.SupplierName)
	writeLines(&b, pc.Lines, pc.Counter, nil)
	b.WriteString("Start with a line \"Subject: ...\" followed by the body.\n")
	return b.String()
}

// FallbackInitialEmail is sent when the language model is unavailable.
func FallbackInitialEmail(pc PromptContext) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s team,\n\n", pc.SupplierName)
	b.WriteString("We are reviewing our supply costs and would like to discuss pricing for the following products:\n\n")
	writeLines(&b, pc.Lines, pc.Ask, nil)
	if len(pc.Profile.TalkingPoints) > 0 {
		fmt.Fprintf(&b, "\n%s.\n", pc.Profile.TalkingPoints[0])
	}
	fmt.Fprintf(&b, "\nWe look forward to your reply.\n\nBest regards,\n%s\n", pc.BuyerName)
	return Email{Subject: DefaultInitialSubject, Body: b.String()}
}

// FallbackCounterEmail is sent when the language model is unavailable.
func FallbackCounterEmail(pc PromptContext) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s team,\n\nThank you for your proposal. We would be able to proceed at the following prices:\n\n", pc.SupplierName)
	writeLines(&b, pc.Lines, pc.Ask, pc.Counter)
	fmt.Fprintf(&b, "\nPlease let us know if this works for you.\n\nBest regards,\n%s\n", pc.BuyerName)
	return Email{Subject: DefaultCounterSubject, Body: b.String()}
}

// FallbackAcceptanceEmail is sent when the language model is unavailable.
func FallbackAcceptanceEmail(pc PromptContext) Email {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s team,\n\nWe are pleased to accept your offer at the following prices:\n\n", pc.SupplierName)
	writeLines(&b, pc.Lines, pc.Counter, nil)
	fmt.Fprintf(&b, "\nPlease send a written confirmation of these terms.\n\nBest regards,\n%s\n", pc.BuyerName)
	return Email{Subject: DefaultAcceptanceSubject, Body: b.String()}
}

func writeTalkingPoints(b *strings.Builder, p Profile) {
	if len(p.TalkingPoints) == 0 {
		return
	}
	b.WriteString("Talking points:\n")
	for _, tp := range p.TalkingPoints {
		fmt.Fprintf(b, "- %s\n", tp)
	}
}

func writeLines(b *strings.Builder, lines []models.OfferLine, ask, theirs map[string]decimal.Decimal) {
	sorted := make([]models.OfferLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SKU < sorted[j].SKU })
	for _, l := range sorted {
		price, ok := ask[l.SKU]
		if !ok {
			price = l.CurrentPrice
		}
		if t, ok := theirs[l.SKU]; ok {
			fmt.Fprintf(b, "- %s (%s), qty %d: your price %s, our price %s\n", l.Name, l.SKU, l.Quantity, t.StringFixed(2), price.StringFixed(2))
			continue
		}
		fmt.Fprintf(b, "- %s (%s), qty %d: current %s, requested %s\n", l.Name, l.SKU, l.Quantity, l.CurrentPrice.StringFixed(2), price.StringFixed(2))
	}
}
