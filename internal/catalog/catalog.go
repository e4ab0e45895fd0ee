// Package catalog holds the static category, message and prompt tables.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ashureev/orderdesk/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

// PromptKey names a text-generation prompt template.
type PromptKey string

const (
	PromptPhotoRequest          PromptKey = "photo_request"
	PromptApologyPortion        PromptKey = "apology_portion"
	PromptApologyQuality        PromptKey = "apology_quality"
	PromptApologySpillage       PromptKey = "apology_spillage"
	PromptApologyMissingFirst   PromptKey = "apology_missing_first"
	PromptReorderOfferMissing   PromptKey = "reorder_offer_missing_second"
	PromptApologyWrong          PromptKey = "apology_wrong"
	PromptResolutionAcknowledge PromptKey = "resolution_acknowledge"
	PromptReportThanks          PromptKey = "report_thanks"
	PromptRefundFeedbackFinal   PromptKey = "refund_feedback_final"
	PromptReorderFeedbackFinal  PromptKey = "reorder_feedback_final"
	PromptRelevanceCheck        PromptKey = "relevance_check"
	PromptOrderQueryResponse    PromptKey = "order_query_response"
	PromptRedirectNonOrder      PromptKey = "redirect_non_order"
)

// MessageKey names a fixed, non-generated message.
type MessageKey string

const (
	MessageThankYou           MessageKey = "thank_you"
	MessageAdditionalInfo     MessageKey = "additional_info_request"
	MessageWrongItemsOffer    MessageKey = "wrong_items_offer"
	MessageRestaurantChecked  MessageKey = "restaurant_checked"
	MessageEscalationOffer    MessageKey = "escalation_offer"
	MessageResolutionClarify  MessageKey = "resolution_clarify"
	MessageRefundOrReorder    MessageKey = "refund_or_reorder"
	MessageRefundDetails      MessageKey = "refund_details"
	MessageReorderDetails     MessageKey = "reorder_details"
	MessageHelpDefault        MessageKey = "help_default"
	MessageConversationClosed MessageKey = "conversation_closed"
)

var requiredPrompts = []PromptKey{
	PromptPhotoRequest, PromptApologyPortion, PromptApologyQuality, PromptApologySpillage,
	PromptApologyMissingFirst, PromptReorderOfferMissing, PromptApologyWrong,
	PromptResolutionAcknowledge, PromptReportThanks, PromptRefundFeedbackFinal,
	PromptReorderFeedbackFinal, PromptRelevanceCheck, PromptOrderQueryResponse,
	PromptRedirectNonOrder,
}

var requiredMessages = []MessageKey{
	MessageThankYou, MessageAdditionalInfo, MessageWrongItemsOffer, MessageRestaurantChecked,
	MessageEscalationOffer, MessageResolutionClarify, MessageRefundOrReorder,
	MessageRefundDetails, MessageReorderDetails, MessageHelpDefault, MessageConversationClosed,
}

// Vars fills {name} placeholders in templates.
type Vars map[string]string

// Directive tells the UI which controls to show after a category is chosen.
type Directive struct {
	ShowInput          bool `yaml:"show_input" json:"show_input"`
	ShowChat           bool `yaml:"show_chat" json:"show_chat"`
	NeedsEscalation    bool `yaml:"needs_escalation" json:"needs_escalation"`
	NeedsPhoto         bool `yaml:"needs_photo" json:"needs_photo"`
	ShowPaymentButtons bool `yaml:"show_payment_buttons" json:"show_payment_buttons"`
}

// Entry is the static definition of a category.
type Entry struct {
	Label         domain.Category `yaml:"label"`
	Template      string          `yaml:"template"`
	Directive     Directive       `yaml:"directive"`
	ApologyPrompt PromptKey       `yaml:"apology_prompt"`
}

// PaymentOption is one of the payment and billing sub-issues.
type PaymentOption struct {
	Label      string    `yaml:"label"`
	Match      string    `yaml:"match"`
	Prompt     PromptKey `yaml:"prompt"`
	Escalation PromptKey `yaml:"escalation"`
}

type document struct {
	Fallback          string                `yaml:"fallback"`
	SystemPrompt      string                `yaml:"system_prompt"`
	Categories        []Entry               `yaml:"categories"`
	PaymentOptions    []PaymentOption       `yaml:"payment_options"`
	ResolutionButtons []string              `yaml:"resolution_buttons"`
	Messages          map[MessageKey]string `yaml:"messages"`
	Prompts           map[PromptKey]string  `yaml:"prompts"`
}

// Catalog is the validated, read-only set of tables.
type Catalog struct {
	fallback          string
	systemPrompt      string
	entries           map[domain.Category]Entry
	paymentOptions    []PaymentOption
	resolutionButtons []string
	messages          map[MessageKey]string
	prompts           map[PromptKey]string
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(embedded)
		if err != nil {
			panic("catalog: embedded catalog is invalid: " + err.Error())
		}
		defaultCat = c
	})
	return defaultCat
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Load(data)
}

// Load parses and validates a YAML catalog.
func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		fallback:          strings.TrimSpace(doc.Fallback),
		systemPrompt:      strings.TrimSpace(doc.SystemPrompt),
		entries:           make(map[domain.Category]Entry, len(doc.Categories)),
		paymentOptions:    doc.PaymentOptions,
		resolutionButtons: doc.ResolutionButtons,
		messages:          doc.Messages,
		prompts:           doc.Prompts,
	}
	for _, e := range doc.Categories {
		c.entries[e.Label] = e
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return c, nil
}

func (c *Catalog) validate() error {
	if c.fallback == "" {
		return fmt.Errorf("fallback cannot be empty")
	}
	for _, cat := range domain.Categories() {
		e, ok := c.entries[cat]
		if !ok {
			return fmt.Errorf("category %q missing", cat)
		}
		if e.Template == "" {
			return fmt.Errorf("category %q has no template", cat)
		}
		if e.ApologyPrompt != "" {
			if !c.HasPrompt(e.ApologyPrompt) {
				return fmt.Errorf("category %q references unknown prompt %q", cat, e.ApologyPrompt)
			}
		}
	}
	if len(c.entries) != len(domain.Categories()) {
		return fmt.Errorf("expected %d categories, got %d", len(domain.Categories()), len(c.entries))
	}
	for _, key := range requiredPrompts {
		if !c.HasPrompt(key) {
			return fmt.Errorf("prompt %q missing", key)
		}
	}
	for _, key := range requiredMessages {
		if _, ok := c.messages[key]; !ok {
			return fmt.Errorf("message %q missing", key)
		}
	}
	if len(c.paymentOptions) == 0 {
		return fmt.Errorf("at least one payment option is required")
	}
	for _, opt := range c.paymentOptions {
		if opt.Label == "" || opt.Match == "" {
			return fmt.Errorf("payment option needs label and match")
		}
		for _, key := range []PromptKey{opt.Prompt, opt.Escalation} {
			if !c.HasPrompt(key) {
				return fmt.Errorf("payment option %q references unknown prompt %q", opt.Label, key)
			}
		}
	}
	if len(c.resolutionButtons) != 2 {
		return fmt.Errorf("expected 2 resolution buttons, got %d", len(c.resolutionButtons))
	}
	return nil
}

// Entry returns the definition of a category.
func (c *Catalog) Entry(cat domain.Category) (Entry, error) {
	e, ok := c.entries[cat]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, cat)
	}
	return e, nil
}

// Prompt renders a prompt template. Unknown keys are a programming error.
func (c *Catalog) Prompt(key PromptKey, vars Vars) string {
	tmpl, ok := c.prompts[key]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown prompt key %q", key))
	}
	return render(tmpl, vars)
}

// HasPrompt reports whether key names a prompt template.
func (c *Catalog) HasPrompt(key PromptKey) bool {
	_, ok := c.prompts[key]
	return ok
}

// Message renders a fixed message. Unknown keys are a programming error.
func (c *Catalog) Message(key MessageKey, vars Vars) string {
	tmpl, ok := c.messages[key]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown message key %q", key))
	}
	return render(tmpl, vars)
}

// Fallback is the sentence used when text generation fails.
func (c *Catalog) Fallback() string { return c.fallback }

// SystemPrompt frames every generation request.
func (c *Catalog) SystemPrompt() string { return c.systemPrompt }

// ResolutionButtons returns the "report only" and "want resolution" labels.
func (c *Catalog) ResolutionButtons() []string {
	return append([]string(nil), c.resolutionButtons...)
}

// PaymentLabels returns the payment option labels in display order.
func (c *Catalog) PaymentLabels() []string {
	labels := make([]string, 0, len(c.paymentOptions))
	for _, opt := range c.paymentOptions {
		labels = append(labels, opt.Label)
	}
	return labels
}

// PaymentOption picks the option whose match phrase occurs in label,
// falling back to the first option.
func (c *Catalog) PaymentOption(label string) PaymentOption {
	lower := strings.ToLower(label)
	for _, opt := range c.paymentOptions {
		if strings.Contains(lower, strings.ToLower(opt.Match)) {
			return opt
		}
	}
	return c.paymentOptions[0]
}

func render(tmpl string, vars Vars) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
