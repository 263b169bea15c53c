package domain

import (
	"errors"
	"fmt"
	"net/url"
)

// FieldKind is the expected type of a frontmatter field.
type FieldKind int

const (
	FieldString FieldKind = iota
	FieldBool
	FieldDate
	FieldStringList
	FieldURL
)

func (k FieldKind) String() string {
	switch k {
	case FieldString:
		return "string"
	case FieldBool:
		return "boolean"
	case FieldDate:
		return "date"
	case FieldStringList:
		return "list of strings"
	case FieldURL:
		return "url"
	default:
		return "unknown"
	}
}

// FieldRule constrains one frontmatter field.
type FieldRule struct {
	Name     string
	Kind     FieldKind
	Required bool
	// OneOf restricts string values when non-empty.
	OneOf []string
}

// baseRules apply to every content type.
var baseRules = []FieldRule{
	{Name: "title", Kind: FieldString, Required: true},
	{Name: "date", Kind: FieldDate, Required: true},
	{Name: "publish", Kind: FieldBool, Required: true},
	{Name: "draft", Kind: FieldBool},
	{Name: "description", Kind: FieldString},
	{Name: "group", Kind: FieldString},
	{Name: "release", Kind: FieldString},
	{Name: "tags", Kind: FieldStringList},
}

// typeRules add per content type constraints on top of baseRules.
var typeRules = map[ContentType][]FieldRule{
	ContentTypeLink: {
		{Name: "url", Kind: FieldURL, Required: true},
	},
	ContentTypeQuestion: {
		{Name: "status", Kind: FieldString, OneOf: []string{"open", "exploring", "resolved"}},
	},
	ContentTypeProject: {
		{Name: "status", Kind: FieldString, OneOf: []string{"active", "completed", "paused", "archived"}},
	},
	ContentTypePerson: {
		{Name: "role", Kind: FieldString},
	},
	ContentTypePlace: {
		{Name: "location", Kind: FieldString},
	},
	ContentTypeGathering: {
		{Name: "location", Kind: FieldString},
	},
}

// FieldRules returns the constraints for ct, base rules first.
func FieldRules(ct ContentType) []FieldRule {
	rules := make([]FieldRule, 0, len(baseRules)+len(typeRules[ct]))
	rules = append(rules, baseRules...)
	return append(rules, typeRules[ct]...)
}

// ValidateMetadata checks md against the field rules for ct.
// All violations are reported together as *ValidationError values.
func ValidateMetadata(ct ContentType, md Metadata) error {
	if !ct.IsValid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown content type %q", ct)}
	}

	var errs []error
	for _, rule := range FieldRules(ct) {
		if err := rule.check(md); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r FieldRule) check(md Metadata) error {
	v, present := md[r.Name]
	if !present || v == nil {
		if r.Required {
			return &ValidationError{Field: r.Name, Reason: "required"}
		}
		return nil
	}

	invalid := &ValidationError{Field: r.Name, Reason: "expected " + r.Kind.String()}
	switch r.Kind {
	case FieldString:
		s, ok := v.(string)
		if !ok || (r.Required && s == "") {
			return invalid
		}
		if len(r.OneOf) > 0 && !contains(r.OneOf, s) {
			return &ValidationError{Field: r.Name, Reason: fmt.Sprintf("%q is not one of %v", s, r.OneOf)}
		}
	case FieldBool:
		if _, ok := v.(bool); !ok {
			return invalid
		}
	case FieldDate:
		if _, ok := md.Time(r.Name); !ok {
			return invalid
		}
	case FieldStringList:
		list, ok := v.([]any)
		if !ok {
			if _, isStrings := v.([]string); isStrings {
				return nil
			}
			return invalid
		}
		for _, item := range list {
			if _, ok := item.(string); !ok {
				return invalid
			}
		}
	case FieldURL:
		s, ok := v.(string)
		if !ok {
			return invalid
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
