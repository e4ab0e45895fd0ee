// Package support implements the scripted customer-support conversation.
package support

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/orderdesk/internal/catalog"
	"github.com/ashureev/orderdesk/internal/domain"
)

// Delays between consecutive deferred messages.
const (
	followupDelay   = 1 * time.Second
	escalationDelay = 2 * time.Second
)

// Responder turns a prompt into text. It never fails; on error it returns
// a fallback sentence.
type Responder interface {
	Respond(ctx context.Context, prompt string) string
}

// Machine applies conversation transitions. It holds no per-session state,
// so one Machine serves every conversation.
type Machine struct {
	cat      *catalog.Catalog
	gen      Responder
	classify Classifier
	details  *Details
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithClassifier replaces the keyword classifier.
func WithClassifier(c Classifier) MachineOption {
	return func(m *Machine) { m.classify = c }
}

// WithDetails replaces the random detail source.
func WithDetails(d *Details) MachineOption {
	return func(m *Machine) { m.details = d }
}

// NewMachine creates a Machine over the catalog and generator.
func NewMachine(cat *catalog.Catalog, gen Responder, opts ...MachineOption) *Machine {
	m := &Machine{
		cat:      cat,
		gen:      gen,
		classify: NewKeywordClassifier(),
		details:  NewDetails(nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start emits the category template and its UI directive.
func (m *Machine) Start(conv *domain.Conversation) (Result, error) {
	entry, err := m.cat.Entry(conv.Category)
	if err != nil {
		return Result{}, err
	}

	conv.Record(domain.RoleUser, conv.Category.String())
	conv.Record(domain.RoleAssistant, entry.Template)

	res := Result{Message: entry.Template}
	res.applyDirective(entry.Directive)
	if conv.Category == domain.CategoryPayment {
		res.Buttons = m.cat.PaymentLabels()
	}
	return m.finish(conv, res), nil
}

// Process advances the conversation with a free-text input or button label.
func (m *Machine) Process(ctx context.Context, conv *domain.Conversation, input string) Result {
	if conv.Category == domain.CategoryPayment && conv.Stage == domain.StageInitial {
		return m.selectPayment(ctx, conv, input)
	}

	conv.Record(domain.RoleUser, input)

	if conv.Escalated {
		return m.handlePaymentFollowup(ctx, conv)
	}
	if conv.Resolved {
		return m.reply(conv, Result{Message: m.cat.Message(catalog.MessageConversationClosed, nil)})
	}

	switch conv.Stage {
	case domain.StageInitial:
		return m.handleItems(ctx, conv, input)
	case domain.StagePhotoRequested:
		return m.handlePhoto(conv)
	case domain.StageAdditionalInfo:
		return m.handleAdditionalInfo(ctx, conv)
	case domain.StageResolutionChoice:
		return m.handleResolutionChoice(ctx, conv, input)
	case domain.StageFinalResolution:
		return m.handleFinalResolution(ctx, conv, input)
	case domain.StageGeneralChat:
		return m.handleGeneralChat(ctx, conv, input)
	case domain.StagePaymentResponse:
		return m.handlePaymentFollowup(ctx, conv)
	default:
		return m.reply(conv, Result{
			Message:  m.cat.Message(catalog.MessageHelpDefault, nil),
			ShowChat: true,
		})
	}
}

// SelectPayment handles a payment option button.
func (m *Machine) SelectPayment(ctx context.Context, conv *domain.Conversation, label string) (Result, error) {
	if conv.Category != domain.CategoryPayment {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrNotPaymentConversation, conv.SessionID)
	}
	return m.selectPayment(ctx, conv, label), nil
}

// Followup delivers the oldest pending message, generating it when needed,
// and records it in the history.
func (m *Machine) Followup(ctx context.Context, conv *domain.Conversation) (string, error) {
	next, err := conv.NextPending()
	if err != nil {
		return "", err
	}

	text := next.Text
	if next.NeedsGeneration() {
		text = m.gen.Respond(ctx, m.cat.Prompt(catalog.PromptKey(next.PromptKey), catalog.Vars{"items": next.Items}))
	}
	conv.Record(domain.RoleAssistant, text)
	return text, nil
}

func (m *Machine) selectPayment(ctx context.Context, conv *domain.Conversation, label string) Result {
	conv.Record(domain.RoleUser, label)
	if conv.Closed() || conv.Stage == domain.StagePaymentResponse {
		return m.handlePaymentFollowup(ctx, conv)
	}

	opt := m.cat.PaymentOption(label)
	conv.Stage = domain.StagePaymentResponse
	conv.ChoosePaymentOption(label)

	return m.reply(conv, Result{
		Message:  m.gen.Respond(ctx, m.cat.Prompt(opt.Prompt, nil)),
		ShowChat: true,
	})
}

func (m *Machine) handleItems(ctx context.Context, conv *domain.Conversation, input string) Result {
	conv.CaptureItems(input)
	conv.Stage = domain.StagePhotoRequested

	prompt := m.cat.Prompt(catalog.PromptPhotoRequest, catalog.Vars{"items": conv.CollectedItems})
	return m.reply(conv, Result{
		Message:  m.gen.Respond(ctx, prompt),
		ShowChat: true,
	})
}

func (m *Machine) handlePhoto(conv *domain.Conversation) Result {
	conv.Stage = domain.StageAdditionalInfo
	return m.reply(conv, Result{
		Message:  m.cat.Message(catalog.MessageThankYou, nil),
		ShowChat: true,
		Deferred: []DeferredMessage{{
			Text:  m.cat.Message(catalog.MessageAdditionalInfo, nil),
			Delay: followupDelay,
		}},
	})
}

func (m *Machine) handleAdditionalInfo(ctx context.Context, conv *domain.Conversation) Result {
	items := conv.CollectedItems
	vars := catalog.Vars{"items": items}

	switch conv.Category {
	case domain.CategoryMissingItems:
		conv.Stage = domain.StageFinalResolution
		return m.reply(conv, Result{
			Message:  m.gen.Respond(ctx, m.cat.Prompt(catalog.PromptApologyMissingFirst, vars)),
			ShowChat: true,
			Deferred: []DeferredMessage{{
				Delay:     followupDelay,
				PromptKey: catalog.PromptReorderOfferMissing,
				Items:     items,
			}},
		})

	case domain.CategoryWrongItems:
		conv.Stage = domain.StageFinalResolution
		apology := m.gen.Respond(ctx, m.cat.Prompt(catalog.PromptApologyWrong, nil))
		offer := m.cat.Message(catalog.MessageWrongItemsOffer, nil)
		conv.Record(domain.RoleAssistant, apology)
		conv.Record(domain.RoleAssistant, offer)
		return m.finish(conv, Result{
			Message:  apology + "\n\n" + offer,
			ShowChat: true,
		})
	}

	conv.Stage = domain.StageResolutionChoice
	apologyKey := catalog.PromptApologyQuality
	if entry, err := m.cat.Entry(conv.Category); err == nil && entry.ApologyPrompt != "" {
		apologyKey = entry.ApologyPrompt
	}
	return m.reply(conv, Result{
		Message:     m.gen.Respond(ctx, m.cat.Prompt(apologyKey, nil)),
		ShowButtons: true,
		Buttons:     m.cat.ResolutionButtons(),
		Deferred: []DeferredMessage{
			{Text: m.cat.Message(catalog.MessageRestaurantChecked, nil), Delay: followupDelay},
			{Text: m.cat.Message(catalog.MessageEscalationOffer, nil), Delay: escalationDelay},
		},
	})
}

func (m *Machine) handleResolutionChoice(ctx context.Context, conv *domain.Conversation, input string) Result {
	intent := m.classify.Classify(input)

	switch {
	case intent.Has(IntentReport):
		conv.Resolved = true
		return m.reply(conv, Result{
			Message: m.gen.Respond(ctx, m.cat.Prompt(catalog.PromptReportThanks, nil)),
		})
	case intent.Has(IntentResolution):
		conv.Stage = domain.StageFinalResolution
		prompt := m.cat.Prompt(catalog.PromptResolutionAcknowledge, catalog.Vars{"items": conv.CollectedItems})
		return m.reply(conv, Result{
			Message:  m.gen.Respond(ctx, prompt),
			ShowChat: true,
		})
	default:
		return m.reply(conv, Result{
			Message:  m.cat.Message(catalog.MessageResolutionClarify, nil),
			ShowChat: true,
		})
	}
}

func (m *Machine) handleFinalResolution(ctx context.Context, conv *domain.Conversation, input string) Result {
	intent := m.classify.Classify(input)
	items := conv.CollectedItems
	vars := catalog.Vars{"items": items}

	if conv.Category == domain.CategoryMissingItems {
		if intent.Has(IntentReorder) || intent.Has(IntentAffirm) {
			return m.confirm(ctx, conv, m.reorderText(items), catalog.PromptReorderFeedbackFinal)
		}
		return m.reply(conv, Result{
			Message:  m.gen.Respond(ctx, m.cat.Prompt(catalog.PromptReorderOfferMissing, vars)),
			ShowChat: true,
		})
	}

	switch {
	case intent.Has(IntentRefund):
		return m.confirm(ctx, conv, m.refundText(items), catalog.PromptRefundFeedbackFinal)
	case intent.Has(IntentReorder):
		return m.confirm(ctx, conv, m.reorderText(items), catalog.PromptReorderFeedbackFinal)
	default:
		return m.reply(conv, Result{
			Message:  m.cat.Message(catalog.MessageRefundOrReorder, vars),
			ShowChat: true,
		})
	}
}

// confirm sends the synthesized confirmation followed by a closing line and
// resolves the conversation.
func (m *Machine) confirm(ctx context.Context, conv *domain.Conversation, confirmation string, closingKey catalog.PromptKey) Result {
	conv.Record(domain.RoleAssistant, confirmation)
	closing := m.gen.Respond(ctx, m.cat.Prompt(closingKey, catalog.Vars{"items": conv.CollectedItems}))
	conv.Record(domain.RoleAssistant, closing)
	conv.Resolved = true

	return m.finish(conv, Result{Message: confirmation + "\n\n" + closing})
}

func (m *Machine) refundText(items string) string {
	r := m.details.Refund()
	return m.cat.Message(catalog.MessageRefundDetails, catalog.Vars{
		"items":     items,
		"amount":    strconv.Itoa(r.Amount),
		"refund_id": r.ID,
		"days":      strconv.Itoa(r.Days),
	})
}

func (m *Machine) reorderText(items string) string {
	r := m.details.Reorder()
	return m.cat.Message(catalog.MessageReorderDetails, catalog.Vars{
		"items":    items,
		"order_id": r.OrderID,
		"eta":      strconv.Itoa(r.ETAMinutes),
	})
}

func (m *Machine) handleGeneralChat(ctx context.Context, conv *domain.Conversation, input string) Result {
	vars := catalog.Vars{"query": input}
	verdict := m.gen.Respond(ctx, m.cat.Prompt(catalog.PromptRelevanceCheck, vars))

	key := catalog.PromptOrderQueryResponse
	if strings.Contains(strings.ToUpper(verdict), "NO") {
		key = catalog.PromptRedirectNonOrder
	}
	return m.reply(conv, Result{
		Message:  m.gen.Respond(ctx, m.cat.Prompt(key, vars)),
		ShowChat: true,
	})
}

func (m *Machine) handlePaymentFollowup(ctx context.Context, conv *domain.Conversation) Result {
	opt := m.cat.PaymentOption(conv.PaymentOption)
	conv.Escalated = true
	return m.reply(conv, Result{
		Message: m.gen.Respond(ctx, m.cat.Prompt(opt.Escalation, nil)),
	})
}

// reply records res.Message as the assistant turn and fills state fields.
func (m *Machine) reply(conv *domain.Conversation, res Result) Result {
	conv.Record(domain.RoleAssistant, res.Message)
	return m.finish(conv, res)
}

func (m *Machine) finish(conv *domain.Conversation, res Result) Result {
	res.Success = true
	res.SessionID = conv.SessionID
	res.Stage = conv.Stage
	res.Resolved = conv.Resolved
	res.Escalated = conv.Escalated
	for _, d := range res.Deferred {
		conv.Enqueue(d.pending())
	}
	return res
}
