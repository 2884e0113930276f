// =============================================================================
// Invoice Billing Converter - Field Transformer
// =============================================================================
//
// Applies configurable cleanup rules to summary fields before validation.
// Billing exports differ slightly between sources (currency spelled out,
// padded agency names, channel aliases); rules fix those up without code
// changes.
//
// EXAMPLE (config.yaml):
//   transformation_rules:
//     - field: "Currency"
//       actions:
//         - type: lookup
//           lookup_table: { "Pesos": "ARS", "Peso Chileno": "CLP" }
//     - field: "Agency"
//       actions:
//         - type: collapse_whitespace
//         - type: uppercase
//
// Rules run in configuration order; actions within a rule run in order.
//
// =============================================================================

package converter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/ginjaninja78/invoice-billing-converter/internal/config"
	"github.com/ginjaninja78/invoice-billing-converter/internal/types"
)

// =============================================================================
// TRANSFORMER
// =============================================================================

// Transformer handles field value transformations.
type Transformer struct {
	rules   []config.TransformationRule
	regexps map[string]*regexp.Regexp
}

// NewTransformer compiles the regular expressions used by the rules.
func NewTransformer(rules []config.TransformationRule) (*Transformer, error) {
	t := &Transformer{
		rules:   rules,
		regexps: make(map[string]*regexp.Regexp),
	}
	for _, rule := range rules {
		for _, action := range rule.Actions {
			if action.Type != "regex_replace" || action.Find == "" {
				continue
			}
			if _, ok := t.regexps[action.Find]; ok {
				continue
			}
			re, err := regexp.Compile(action.Find)
			if err != nil {
				return nil, fmt.Errorf("field %q: invalid regex pattern %q: %w", rule.Field, action.Find, err)
			}
			t.regexps[action.Find] = re
		}
	}
	return t, nil
}

// Empty reports whether there is nothing to apply.
func (t *Transformer) Empty() bool {
	return t == nil || len(t.rules) == 0
}

// =============================================================================
// TRANSFORMATION FUNCTIONS
// =============================================================================

// TransformRecord applies every rule to the record in place. Fields missing
// from the record are treated as blank, so "default_if_empty" can add them.
func (t *Transformer) TransformRecord(rec *types.SummaryRecord) error {
	if t.Empty() {
		return nil
	}
	if rec.Fields == nil {
		rec.Fields = make(map[string]string)
	}

	for _, rule := range t.rules {
		value := rec.Fields[rule.Field]
		for _, action := range rule.Actions {
			var err error
			value, err = t.apply(value, action, rec.Fields)
			if err != nil {
				return fmt.Errorf("row %d, field %q: transformation %q failed: %w",
					rec.RowNumber, rule.Field, action.Type, err)
			}
		}
		rec.Fields[rule.Field] = value
	}
	return nil
}

// TransformAll applies the rules to every record.
func (t *Transformer) TransformAll(records []types.SummaryRecord) error {
	for i := range records {
		if err := t.TransformRecord(&records[i]); err != nil {
			return err
		}
	}
	return nil
}

// apply runs a single transformation action.
func (t *Transformer) apply(value string, action config.TransformationAction, allFields map[string]string) (string, error) {
	switch action.Type {

	// =========================================================================
	// STRING MANIPULATIONS
	// =========================================================================

	case "trim":
		return strings.TrimSpace(value), nil

	case "uppercase":
		return strings.ToUpper(value), nil

	case "lowercase":
		return strings.ToLower(value), nil

	case "collapse_whitespace":
		// "  Agency   A " -> "Agency A"
		return strings.Join(strings.Fields(value), " "), nil

	case "prepend_string":
		return action.Value + value, nil

	case "append_string":
		return value + action.Value, nil

	case "replace":
		if action.Find == "" {
			return value, nil
		}
		return strings.ReplaceAll(value, action.Find, action.Value), nil

	case "regex_replace":
		if action.Find == "" {
			return value, nil
		}
		return t.regexps[action.Find].ReplaceAllString(value, action.Value), nil

	case "extract_digits":
		// "FC 0012-34" -> "001234"
		var sb strings.Builder
		for _, r := range value {
			if unicode.IsDigit(r) {
				sb.WriteRune(r)
			}
		}
		return sb.String(), nil

	// =========================================================================
	// LOOKUPS AND DEFAULTS
	// =========================================================================

	case "lookup":
		// Unmatched values pass through unchanged.
		if mapped, ok := action.LookupTable[strings.TrimSpace(value)]; ok {
			return mapped, nil
		}
		return value, nil

	case "default_if_empty":
		if strings.TrimSpace(value) == "" {
			return action.Value, nil
		}
		return value, nil

	case "default_from_field":
		// Value names another column to copy from when this one is blank.
		if strings.TrimSpace(value) == "" {
			return allFields[action.Value], nil
		}
		return value, nil

	default:
		return "", fmt.Errorf("unknown transformation type %q", action.Type)
	}
}
