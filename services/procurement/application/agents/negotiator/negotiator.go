// Package negotiator is the discount negotiation agent. It opens negotiations
// by email, reads supplier replies and drives each negotiation through the
// state machine in domain/negotiation until it is accepted, rejected or expired.
package negotiator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/pkg/llm"
	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/pkg/mailer"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
	"github.com/ghuser/procureflow/services/procurement/domain/negotiation"
	"github.com/ghuser/procureflow/services/procurement/domain/repositories"
	domainsvcs "github.com/ghuser/procureflow/services/procurement/domain/services"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
)

// HeaderNegotiationID threads supplier replies back to their negotiation.
const HeaderNegotiationID = "X-Negotiation-ID"

const systemPrompt = "You are a procurement specialist at a small manufacturer. You write concise, courteous business email and never invent prices."

// Mailer is the outbound mail channel. *mailer.SendGridMailer implements it.
type Mailer interface {
	Send(ctx context.Context, e mailer.Email) (mailer.Receipt, error)
	Ping(ctx context.Context) error
}

// LLM completes prompts. *llm.Client implements it.
type LLM interface {
	Complete(ctx context.Context, prompt string, opts llm.Options) (string, error)
}

// ExpiryScheduler arranges for one negotiation to be expired at a given time.
type ExpiryScheduler interface {
	ScheduleExpiry(ctx context.Context, negotiationID uuid.UUID, at time.Time) error
}

// Deps are the collaborators of the agent. LLM and Expiry are optional:
// without a model the fallback templates are sent and replies stall for
// review, without a scheduler only the periodic sweep expires negotiations.
type Deps struct {
	Organizations repositories.OrganizationRepository
	Suppliers     repositories.SupplierRepository
	Catalog       repositories.CatalogRepository
	Negotiations  repositories.NegotiationRepository
	Mailer        Mailer
	LLM           LLM
	Expiry        ExpiryScheduler
}

// Config holds the negotiation defaults applied when a payload leaves a field zero.
type Config struct {
	MaxRounds         int
	TargetImprovement float64
	TTL               time.Duration
}

// Agent implements task.Agent for the negotiator tasks.
type Agent struct {
	Deps
	cfg Config
	log logger.Logger
	now func() time.Time
}

var (
	_ task.Agent             = (*Agent)(nil)
	_ task.NegotiatorHandler = (*Agent)(nil)
)

func New(deps Deps, cfg Config, log logger.Logger) *Agent {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = negotiation.DefaultMaxRounds
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &Agent{
		Deps: deps,
		cfg:  cfg,
		log:  logger.ForAgent(log, string(task.AgentNegotiator)),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (a *Agent) Type() task.AgentType { return task.AgentNegotiator }

func (a *Agent) Initialize(_ context.Context) error { return nil }

func (a *Agent) Shutdown(_ context.Context) error { return nil }

// HealthCheck fails when the mail channel cannot send.
func (a *Agent) HealthCheck(ctx context.Context) error {
	return a.Mailer.Ping(ctx)
}

func (a *Agent) ExecuteTask(ctx context.Context, t task.Task) task.Result {
	return task.DispatchNegotiator(ctx, t, a)
}

// InitiateReport describes a freshly opened negotiation.
type InitiateReport struct {
	NegotiationID uuid.UUID                  `json:"negotiation_id"`
	SupplierID    uuid.UUID                  `json:"supplier_id"`
	SupplierName  string                     `json:"supplier_name"`
	Strategy      models.Strategy            `json:"strategy"`
	Ask           map[string]decimal.Decimal `json:"ask"`
	OriginalTotal decimal.Decimal            `json:"original_total"`
	Subject       string                     `json:"subject"`
	EmailSource   string                     `json:"email_source"`
	ExpiresAt     time.Time                  `json:"expires_at"`
}

func (a *Agent) InitiateNegotiation(ctx context.Context, p task.InitiateNegotiationPayload) task.Result {
	report, err := a.initiate(ctx, p)
	if err != nil {
		return task.Fail(err)
	}
	return task.OK(report)
}

func (a *Agent) initiate(ctx context.Context, p task.InitiateNegotiationPayload) (InitiateReport, error) {
	org, err := a.Organizations.GetByID(ctx, p.OrganizationID)
	if err != nil {
		return InitiateReport{}, err
	}
	sup, err := a.Suppliers.GetByID(ctx, p.SupplierID)
	if err != nil {
		return InitiateReport{}, err
	}
	if sup.OrganizationID != org.ID {
		return InitiateReport{}, domain.ErrSupplierNotFound
	}
	if strings.TrimSpace(sup.Email) == "" {
		return InitiateReport{}, fmt.Errorf("%w: %s", domain.ErrNoSupplierContact, sup.Name)
	}

	lines, err := a.offerLines(ctx, sup, p.Products)
	if err != nil {
		return InitiateReport{}, err
	}

	profile := negotiation.SelectStrategy(p.HistoricalVolume, lines)
	ask := negotiation.InitialAsk(profile, lines)
	target := p.TargetImprovement
	if target == 0 {
		target = a.cfg.TargetImprovement
	}
	maxRounds := p.MaxRounds
	if maxRounds == 0 {
		maxRounds = a.cfg.MaxRounds
	}

	now := a.now()
	n := &models.Negotiation{
		ID:             uuid.New(),
		OrganizationID: org.ID,
		SupplierID:     sup.ID,
		Status:         models.NegotiationInProgress,
		InitialOffer: models.InitialOffer{
			Lines:             lines,
			HistoricalVolume:  p.HistoricalVolume,
			DiscountAsk:       profile.InitialDiscount,
			TargetImprovement: target + profile.TargetBonus,
			MaxRounds:         maxRounds,
		},
		Savings: decimal.Zero,
		Metadata: models.NegotiationMetadata{
			Strategy:      profile.Strategy,
			Fallback:      profile.Fallback,
			TalkingPoints: profile.TalkingPoints,
			CurrentAsk:    ask,
		},
		ExpiresAt: now.Add(a.cfg.TTL),
		CreatedAt: now,
		UpdatedAt: now,
	}

	pc := negotiation.PromptContext{
		BuyerName:    org.Name,
		SupplierName: sup.Name,
		Profile:      profile,
		Lines:        lines,
		Ask:          ask,
		Round:        1,
		MaxRounds:    maxRounds,
	}
	email, source := a.draft(ctx, negotiation.InitialPrompt(pc), negotiation.FallbackInitialEmail(pc), negotiation.DefaultInitialSubject)
	first, err := a.send(ctx, sup, n.ID, email)
	if err != nil {
		return InitiateReport{}, err
	}
	if err := a.Negotiations.Create(ctx, n, first); err != nil {
		return InitiateReport{}, err
	}
	if a.Expiry != nil {
		if err := a.Expiry.ScheduleExpiry(ctx, n.ID, n.ExpiresAt); err != nil {
			a.log.WarnContext(ctx, "failed to schedule negotiation expiry", "negotiation_id", n.ID, "error", err)
		}
	}

	a.log.InfoContext(ctx, "negotiation initiated",
		"negotiation_id", n.ID, "supplier_id", sup.ID, "strategy", profile.Strategy, "lines", len(lines))
	return InitiateReport{
		NegotiationID: n.ID,
		SupplierID:    sup.ID,
		SupplierName:  sup.Name,
		Strategy:      profile.Strategy,
		Ask:           ask,
		OriginalTotal: n.InitialOffer.OriginalTotal(),
		Subject:       email.Subject,
		EmailSource:   source,
		ExpiresAt:     n.ExpiresAt,
	}, nil
}

// offerLines snapshots the supplier's current offer for each requested product.
func (a *Agent) offerLines(ctx context.Context, sup *models.Supplier, products []task.NegotiationProduct) ([]models.OfferLine, error) {
	offered, err := a.Catalog.ListSupplierProducts(ctx, sup.ID)
	if err != nil {
		return nil, err
	}
	byProduct := make(map[uuid.UUID]*models.SupplierProduct, len(offered))
	for _, sp := range offered {
		byProduct[sp.ProductID] = sp
	}

	lines := make([]models.OfferLine, 0, len(products))
	for _, p := range products {
		sp, ok := byProduct[p.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not offered by %s", domain.ErrProductNotFound, p.ProductID, sup.Name)
		}
		product, err := a.Catalog.GetProduct(ctx, p.ProductID)
		if err != nil {
			return nil, err
		}
		line := models.OfferLine{
			ProductID:       p.ProductID,
			SKU:             sp.SKU,
			Name:            product.Name,
			Quantity:        p.Quantity,
			CurrentPrice:    sp.UnitPrice,
			CompetitorPrice: p.CompetitorPrice,
		}
		if p.TargetPrice != nil {
			line.TargetPrice = *p.TargetPrice
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ResponseReport describes what a processed reply did to its negotiation.
type ResponseReport struct {
	NegotiationID uuid.UUID                `json:"negotiation_id"`
	Action        negotiation.Action       `json:"action"`
	Status        models.NegotiationStatus `json:"status"`
	Round         int                      `json:"round"`
	Evaluation    *negotiation.Evaluation  `json:"evaluation,omitempty"`
	Savings       decimal.Decimal          `json:"savings"`
	EmailSent     negotiation.Outbound     `json:"email_sent,omitempty"`
	ReviewNeeded  bool                     `json:"review_needed,omitempty"`
	Reason        string                   `json:"reason,omitempty"`
	Duplicate     bool                     `json:"duplicate,omitempty"`
	// Alternative is set on a rejection when another supplier has the
	// negotiated products in stock.
	Alternative *AlternativeSupplier `json:"alternative,omitempty"`
}

// AlternativeSupplier is the supplier to approach after a rejection: the one
// with the most negotiated lines in stock, cheapest first on ties.
type AlternativeSupplier struct {
	SupplierID   uuid.UUID       `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	ProductIDs   []uuid.UUID     `json:"product_ids"`
	Total        decimal.Decimal `json:"total"` // covered lines at current prices
}

// ProcessResponse logs the reply, classifies it and applies the resulting
// transition. Replies are deduplicated by delivery, never by text: the same
// wording in a later round is a new reply. A delivery already logged is only
// re-processed when nothing was sent after it, which is the case after a
// failed send.
func (a *Agent) ProcessResponse(ctx context.Context, p task.ProcessResponsePayload) task.Result {
	n, err := a.Negotiations.GetByID(ctx, p.NegotiationID)
	if err != nil {
		return task.Fail(err)
	}
	if n.Status.Terminal() {
		return task.Fail(domain.ErrNegotiationClosed).With("status", string(n.Status))
	}
	now := a.now()
	if n.Expired(now) {
		negotiation.Expire(n, now, "reply received after expiry")
		if err := a.Negotiations.Update(ctx, n); err != nil {
			return task.Fail(retryOnConflict(err))
		}
		return task.Fail(domain.ErrNegotiationExpired)
	}

	sup, err := a.Suppliers.GetByID(ctx, n.SupplierID)
	if err != nil {
		return task.Fail(err)
	}

	inbound := &models.NegotiationMessage{
		ID:            uuid.New(),
		NegotiationID: n.ID,
		Direction:     models.DirectionInbound,
		Body:          p.ReplyText,
		DeliveryID:    p.DeliveryID,
		CreatedAt:     now,
	}
	inserted, err := a.Negotiations.AppendMessage(ctx, inbound)
	if err != nil {
		return task.Fail(err)
	}
	messages, err := a.Negotiations.ListMessages(ctx, n.ID)
	if err != nil {
		return task.Fail(err)
	}
	if !inserted && answered(messages, inbound.DeliveryID) {
		a.log.InfoContext(ctx, "duplicate reply ignored", "negotiation_id", n.ID, "delivery_id", p.DeliveryID)
		return task.OK(ResponseReport{
			NegotiationID: n.ID,
			Status:        n.Status,
			Round:         negotiation.Round(messages),
			Savings:       n.Savings,
			Duplicate:     true,
		})
	}

	round := negotiation.Round(messages)
	c := a.classify(ctx, n, p.ReplyText)
	d := negotiation.Decide(n, round, c)

	var outbound []*models.NegotiationMessage
	if d.Send != negotiation.OutboundNone {
		msg, err := a.followUp(ctx, n, sup, d)
		if err != nil {
			return task.Fail(err).With("round", round)
		}
		outbound = append(outbound, msg)
	}

	negotiation.Apply(n, d, now)
	if err := a.Negotiations.Update(ctx, n, outbound...); err != nil {
		return task.Fail(retryOnConflict(err)).With("round", round)
	}

	a.log.InfoContext(ctx, "negotiation reply processed",
		"negotiation_id", n.ID, "round", round, "action", d.Action, "status", n.Status)
	report := ResponseReport{
		NegotiationID: n.ID,
		Action:        d.Action,
		Status:        n.Status,
		Round:         round,
		Evaluation:    d.Evaluation,
		Savings:       n.Savings,
		EmailSent:     d.Send,
		ReviewNeeded:  n.Metadata.ReviewNeeded,
		Reason:        n.Metadata.Reason,
	}
	if d.Action == negotiation.ActionReject {
		report.Alternative = a.alternative(ctx, n)
	}
	return task.OK(report)
}

// alternative looks up the next supplier for a rejected negotiation. The
// rejection is already stored, so a lookup failure only drops the suggestion.
func (a *Agent) alternative(ctx context.Context, n *models.Negotiation) *AlternativeSupplier {
	ids := make([]uuid.UUID, len(n.InitialOffer.Lines))
	for i, l := range n.InitialOffer.Lines {
		ids[i] = l.ProductID
	}
	offers, err := a.Catalog.ListOffersForProducts(ctx, n.OrganizationID, ids)
	if err != nil {
		a.log.WarnContext(ctx, "alternative supplier lookup failed", "negotiation_id", n.ID, "error", err)
		return nil
	}
	alt := NextSupplier(n.InitialOffer.Lines, offers, n.SupplierID)
	if alt != nil {
		a.log.InfoContext(ctx, "alternative supplier found",
			"negotiation_id", n.ID, "supplier_id", alt.SupplierID, "lines", len(alt.ProductIDs))
	}
	return alt
}

// NextSupplier picks, among suppliers other than exclude, the one with the
// most lines in stock and then the lowest total for those lines. It returns
// nil when nobody else has any line in stock.
func NextSupplier(lines []models.OfferLine, offers map[uuid.UUID][]models.Offer, exclude uuid.UUID) *AlternativeSupplier {
	var (
		order []uuid.UUID
		cand  = map[uuid.UUID]*AlternativeSupplier{}
	)
	for _, l := range lines {
		// cheapest in-stock offer per other supplier for this line
		bySupplier := map[uuid.UUID]models.Offer{}
		for _, o := range offers[l.ProductID] {
			if o.SupplierID == exclude || !o.InStock {
				continue
			}
			if cur, ok := bySupplier[o.SupplierID]; !ok || o.UnitPrice.LessThan(cur.UnitPrice) {
				bySupplier[o.SupplierID] = o
			}
		}
		for _, o := range offers[l.ProductID] {
			best, ok := bySupplier[o.SupplierID]
			if !ok || best.ID != o.ID {
				continue
			}
			c, ok := cand[o.SupplierID]
			if !ok {
				c = &AlternativeSupplier{SupplierID: o.SupplierID, SupplierName: o.SupplierName, Total: decimal.Zero}
				cand[o.SupplierID] = c
				order = append(order, o.SupplierID)
			}
			c.ProductIDs = append(c.ProductIDs, l.ProductID)
			c.Total = c.Total.Add(o.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}

	var best *AlternativeSupplier
	for _, id := range order {
		c := cand[id]
		if best == nil || len(c.ProductIDs) > len(best.ProductIDs) ||
			(len(c.ProductIDs) == len(best.ProductIDs) && c.Total.LessThan(best.Total)) {
			best = c
		}
	}
	return best
}

// classify reads the reply through the model. Any failure yields an empty
// classification, which the state machine treats as ambiguous.
func (a *Agent) classify(ctx context.Context, n *models.Negotiation, reply string) negotiation.Classification {
	if a.LLM == nil {
		return negotiation.Classification{Reason: "no language model configured"}
	}
	prompt := negotiation.ClassificationPrompt(reply, n.InitialOffer.Lines, n.Metadata.CurrentAsk)
	raw, err := a.LLM.Complete(ctx, prompt, llm.Options{System: systemPrompt, MaxTokens: 400, Temperature: 0})
	if err != nil {
		a.log.WarnContext(ctx, "reply classification failed", "negotiation_id", n.ID, "error", err)
		return negotiation.Classification{Reason: "classification unavailable"}
	}
	c, ok := negotiation.ParseClassification(raw)
	if !ok {
		a.log.WarnContext(ctx, "unparseable reply classification", "negotiation_id", n.ID)
		return negotiation.Classification{Reason: "classification unreadable"}
	}
	return c
}

// followUp drafts and sends the counter or acceptance email d requires.
func (a *Agent) followUp(ctx context.Context, n *models.Negotiation, sup *models.Supplier, d negotiation.Decision) (*models.NegotiationMessage, error) {
	org, err := a.Organizations.GetByID(ctx, n.OrganizationID)
	if err != nil {
		return nil, err
	}
	pc := negotiation.PromptContext{
		BuyerName:    org.Name,
		SupplierName: sup.Name,
		Profile:      negotiation.ProfileFor(n.Metadata.Strategy),
		Lines:        n.InitialOffer.Lines,
		Ask:          d.NextAsk,
		Round:        d.Round + 1,
		MaxRounds:    n.InitialOffer.MaxRounds,
	}
	if d.Evaluation != nil {
		pc.Counter = d.Evaluation.Prices
	}

	var email negotiation.Email
	switch d.Send {
	case negotiation.OutboundCounter:
		email, _ = a.draft(ctx, negotiation.CounterPrompt(pc), negotiation.FallbackCounterEmail(pc), negotiation.DefaultCounterSubject)
	case negotiation.OutboundAcceptance:
		email, _ = a.draft(ctx, negotiation.AcceptancePrompt(pc), negotiation.FallbackAcceptanceEmail(pc), negotiation.DefaultAcceptanceSubject)
	default:
		return nil, fmt.Errorf("unexpected outbound %q", d.Send)
	}
	return a.send(ctx, sup, n.ID, email)
}

// draft asks the model for an email and falls back to the template when the
// model is missing, fails or returns an empty body.
func (a *Agent) draft(ctx context.Context, prompt string, fallback negotiation.Email, defaultSubject string) (negotiation.Email, string) {
	if a.LLM == nil {
		return fallback, "template"
	}
	raw, err := a.LLM.Complete(ctx, prompt, llm.Options{System: systemPrompt, MaxTokens: 600, Temperature: 0.4})
	if err != nil {
		a.log.WarnContext(ctx, "email generation failed, using template", "error", err)
		return fallback, "template"
	}
	email := negotiation.ParseEmail(raw, defaultSubject)
	if email.Body == "" {
		return fallback, "template"
	}
	return email, "llm"
}

// send delivers email and returns the outbound message to log. Transport
// failures are retryable; a mailer without credentials is not.
func (a *Agent) send(ctx context.Context, sup *models.Supplier, negotiationID uuid.UUID, email negotiation.Email) (*models.NegotiationMessage, error) {
	receipt, err := a.Mailer.Send(ctx, mailer.Email{
		To:      sup.Email,
		ToName:  sup.Name,
		Subject: email.Subject,
		Body:    email.Body,
		Headers: map[string]string{HeaderNegotiationID: negotiationID.String()},
	})
	if err != nil {
		if errors.Is(err, mailer.ErrNotConfigured) {
			return nil, err
		}
		return nil, task.Transient(err)
	}
	return &models.NegotiationMessage{
		ID:            uuid.New(),
		NegotiationID: negotiationID,
		Direction:     models.DirectionOutbound,
		Subject:       email.Subject,
		Body:          email.Body,
		ExternalID:    receipt.MessageID,
		CreatedAt:     a.now(),
	}, nil
}

// BulkReport summarises a bulk negotiation.
type BulkReport struct {
	Initiated []InitiateReport `json:"initiated"`
	Failed    []BulkFailure    `json:"failed,omitempty"`
	Unsourced []uuid.UUID      `json:"unsourced,omitempty"` // products no active supplier offers
}

// BulkFailure is a supplier group that could not be opened.
type BulkFailure struct {
	SupplierID uuid.UUID `json:"supplier_id"`
	Error      string    `json:"error"`
}

// SourcingGroup is the products one supplier is asked to quote.
type SourcingGroup struct {
	SupplierID uuid.UUID
	Products   []task.NegotiationProduct
}

// GroupByCheapestOffer assigns every item to the supplier with its cheapest
// in-stock offer, falling back to the cheapest offer overall. The target
// price of each line is the cheapest price reduced by target. Groups are
// returned in first-seen order.
func GroupByCheapestOffer(items []task.BulkItem, offers map[uuid.UUID][]models.Offer, target float64) ([]SourcingGroup, []uuid.UUID) {
	var (
		groups    []SourcingGroup
		index     = map[uuid.UUID]int{}
		unsourced []uuid.UUID
	)
	factor := decimal.NewFromFloat(1 - target)
	for _, it := range items {
		best := domainsvcs.CheapestInStock(offers[it.ProductID])
		if best == nil {
			best = domainsvcs.ComparePrices(offers[it.ProductID]).Cheapest
		}
		if best == nil {
			unsourced = append(unsourced, it.ProductID)
			continue
		}
		targetPrice := best.UnitPrice.Mul(factor).Round(2)
		np := task.NegotiationProduct{ProductID: it.ProductID, Quantity: it.Quantity, TargetPrice: &targetPrice}

		i, ok := index[best.SupplierID]
		if !ok {
			i = len(groups)
			index[best.SupplierID] = i
			groups = append(groups, SourcingGroup{SupplierID: best.SupplierID})
		}
		groups[i].Products = append(groups[i].Products, np)
	}
	return groups, unsourced
}

// BulkNegotiation fans out one initiation per supplier group. It fails only
// when no group could be opened.
func (a *Agent) BulkNegotiation(ctx context.Context, p task.BulkNegotiationPayload) task.Result {
	if _, err := a.Organizations.GetByID(ctx, p.OrganizationID); err != nil {
		return task.Fail(err)
	}
	ids := make([]uuid.UUID, len(p.Items))
	for i, it := range p.Items {
		ids[i] = it.ProductID
	}
	offers, err := a.Catalog.ListOffersForProducts(ctx, p.OrganizationID, ids)
	if err != nil {
		return task.Fail(err)
	}
	target := p.TargetImprovement
	if target == 0 {
		target = a.cfg.TargetImprovement
	}
	groups, unsourced := GroupByCheapestOffer(p.Items, offers, target)

	report := BulkReport{Initiated: []InitiateReport{}, Unsourced: unsourced}
	var firstErr error
	for _, g := range groups {
		r, err := a.initiate(ctx, task.InitiateNegotiationPayload{
			OrganizationID:    p.OrganizationID,
			SupplierID:        g.SupplierID,
			Products:          g.Products,
			HistoricalVolume:  decimal.Zero,
			TargetImprovement: p.TargetImprovement,
			MaxRounds:         p.MaxRounds,
		})
		if err != nil {
			a.log.WarnContext(ctx, "bulk negotiation group failed", "supplier_id", g.SupplierID, "error", err)
			report.Failed = append(report.Failed, BulkFailure{SupplierID: g.SupplierID, Error: err.Error()})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		report.Initiated = append(report.Initiated, r)
	}
	if len(report.Initiated) == 0 && firstErr != nil {
		return task.Fail(firstErr).With("failed", len(report.Failed))
	}
	return task.OK(report)
}

// ExpiryReport lists the negotiations an expiry run closed.
type ExpiryReport struct {
	Checked int         `json:"checked"`
	Expired []uuid.UUID `json:"expired"`
}

// ExpireNegotiations closes overdue negotiations. With a NegotiationID only
// that negotiation is considered; one that is closed or not yet due is left
// untouched.
func (a *Agent) ExpireNegotiations(ctx context.Context, p task.ExpireNegotiationsPayload) task.Result {
	now := a.now()
	var due []*models.Negotiation
	if p.NegotiationID != nil {
		n, err := a.Negotiations.GetByID(ctx, *p.NegotiationID)
		if err != nil {
			return task.Fail(err)
		}
		due = append(due, n)
	} else {
		list, err := a.Negotiations.ListExpired(ctx, now)
		if err != nil {
			return task.Fail(err)
		}
		due = list
	}

	report := ExpiryReport{Checked: len(due), Expired: []uuid.UUID{}}
	for _, n := range due {
		if n.Status.Terminal() || !n.Expired(now) {
			continue
		}
		negotiation.Expire(n, now, "no agreement before expiry")
		if err := a.Negotiations.Update(ctx, n); err != nil {
			return task.Fail(retryOnConflict(err)).With("expired", len(report.Expired))
		}
		report.Expired = append(report.Expired, n.ID)
	}
	if len(report.Expired) > 0 {
		a.log.InfoContext(ctx, "negotiations expired", "count", len(report.Expired))
	}
	return task.OK(report)
}

// retryOnConflict makes a lost concurrent update retryable. The retry reads
// the negotiation again and decides on the fresh state.
func retryOnConflict(err error) error {
	if errors.Is(err, domain.ErrNegotiationConflict) {
		return task.Transient(err)
	}
	return err
}

// answered reports whether an outbound message follows the inbound message
// logged for the given delivery.
func answered(messages []models.NegotiationMessage, deliveryID string) bool {
	seen := false
	for _, m := range messages {
		if m.Direction == models.DirectionInbound && m.DeliveryID == deliveryID {
			seen = true
			continue
		}
		if seen && m.Direction == models.DirectionOutbound {
			return true
		}
	}
	return false
}
