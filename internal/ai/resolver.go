package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"finance-assistant/internal/logger"
)

// MinConfidence is the confidence below which a resolution is treated as HELP.
const MinConfidence = 0.5

const (
	fallbackResponse  = "Sorry, I couldn't process that right now. Please try again in a moment."
	unclearResponse   = "I'm not sure what you'd like me to do. Try something like \"invoice ABC Company R500 for website design\" or \"log expense R450 fuel\"."
	defaultTimeout    = 15 * time.Second
	defaultMaxMessage = 2000
)

// Resolution is the structured reading of one message.
type Resolution struct {
	Intent     Intent         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Parameters map[string]any `json:"parameters"`
	Response   string         `json:"response"`
}

// wireParameters is the union of every intent's parameters as the model returns
// them. Strict schema mode requires every field, so "" stands for "not given".
type wireParameters struct {
	ClientName    string `json:"clientName"`
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	DueInDays     string `json:"dueInDays"`
	VATIncluded   string `json:"vatIncluded"`
	Category      string `json:"category"`
	Date          string `json:"date"`
	ReportType    string `json:"reportType"`
	Period        string `json:"period"`
	InvoiceNumber string `json:"invoiceNumber"`
	Status        string `json:"status"`
	Method        string `json:"method"`
	Limit         string `json:"limit"`
}

type wireResolution struct {
	Intent     string         `json:"intent" jsonschema:"description=One of the listed intents"`
	Confidence float64        `json:"confidence" jsonschema:"description=Between 0 and 1"`
	Parameters wireParameters `json:"parameters"`
	Response   string         `json:"response" jsonschema:"description=A short reply to show the user"`
}

// ResolverConfig bounds a Resolver.
type ResolverConfig struct {
	Timeout          time.Duration
	MaxMessageLength int
	// Now supplies the date given to the model. Defaults to time.Now.
	Now              func() time.Time
}

// Resolver maps free text to a Resolution with one Completer call. It keeps no
// state between calls and never returns an error: any failure becomes HELP.
type Resolver struct {
	completer Completer
	catalog   *Catalog
	schema    map[string]any
	timeout   time.Duration
	maxLen    int
	now       func() time.Time
	log       *zap.Logger
}

func NewResolver(c Completer, cfg ResolverConfig, log *zap.Logger) (*Resolver, error) {
	catalog := DefaultCatalog()
	schema, err := resolutionSchema(catalog)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = defaultMaxMessage
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{
		completer: c,
		catalog:   catalog,
		schema:    schema,
		timeout:   cfg.Timeout,
		maxLen:    cfg.MaxMessageLength,
		now:       cfg.Now,
		log:       logger.OrNop(log).Named("resolver"),
	}, nil
}

// resolutionSchema reflects wireResolution and restricts intent to the catalog.
func resolutionSchema(catalog *Catalog) (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaJSON, err := json.Marshal(reflector.Reflect(wireResolution{}))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	delete(schema, "$schema")
	delete(schema, "$id")

	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resolution schema has no properties")
	}
	intent, ok := props["intent"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resolution schema has no intent property")
	}
	enum := make([]any, 0, len(catalog.All()))
	for _, name := range catalog.Intents() {
		enum = append(enum, name)
	}
	intent["enum"] = enum
	return schema, nil
}

func (r *Resolver) prompt(text string) string {
	return fmt.Sprintf(`You classify messages sent to a bookkeeping assistant for a small South African business.
Pick exactly one intent from the list below and extract its parameters.
Rules:
1. Use ONLY the listed intents.
2. Fill only the parameters of the chosen intent; leave every other parameter as "".
3. Amounts are plain decimal strings without currency symbols or thousands separators (e.g. "1250.50").
4. Give a confidence score between 0.0 and 1.0. Use a low score if the request is unclear.
5. Put a short, friendly reply to the user in "response".

Intents:
%s
Today is %s.

Message: %s`, r.catalog.Render(), r.now().Format("2006-01-02"), text)
}

// Resolve classifies text. userID is used only for logging.
func (r *Resolver) Resolve(ctx context.Context, userID, text string) Resolution {
	text = truncate(strings.TrimSpace(text), r.maxLen)
	if text == "" {
		return Resolution{Intent: IntentHelp, Parameters: map[string]any{}, Response: unclearResponse}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.completer.Complete(ctx, r.prompt(text), r.schema)
	if err != nil {
		r.log.Warn("intent resolution failed", zap.String("user_id", userID), zap.Error(err))
		return fallback()
	}

	var wire wireResolution
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		r.log.Error("unexpected resolver output", zap.String("user_id", userID), zap.Error(err))
		return fallback()
	}

	res := normalize(wire)
	r.log.Debug("resolved message",
		zap.String("user_id", userID),
		zap.String("intent", string(res.Intent)),
		zap.Float64("confidence", res.Confidence),
	)
	return res
}

func fallback() Resolution {
	return Resolution{Intent: IntentHelp, Confidence: 0, Parameters: map[string]any{}, Response: fallbackResponse}
}

// normalize canonicalises the intent, clamps confidence to [0, 1], drops empty
// parameters, and turns unknown or low-confidence results into HELP.
func normalize(w wireResolution) Resolution {
	conf := w.Confidence
	if conf < 0 || math.IsNaN(conf) {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	intent, ok := ParseIntent(w.Intent)
	if !ok || conf < MinConfidence {
		return Resolution{Intent: IntentHelp, Confidence: 0, Parameters: map[string]any{}, Response: unclearResponse}
	}

	return Resolution{
		Intent:     intent,
		Confidence: conf,
		Parameters: w.Parameters.toMap(),
		Response:   strings.TrimSpace(w.Response),
	}
}

func (p wireParameters) toMap() map[string]any {
	out := map[string]any{}
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	set("clientName", p.ClientName)
	set("amount", p.Amount)
	set("description", p.Description)
	set("dueInDays", p.DueInDays)
	set("vatIncluded", p.VATIncluded)
	set("category", p.Category)
	set("date", p.Date)
	set("reportType", p.ReportType)
	set("period", p.Period)
	set("invoiceNumber", p.InvoiceNumber)
	set("status", p.Status)
	set("method", p.Method)
	set("limit", p.Limit)
	return out
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
