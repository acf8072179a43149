package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildSystemPrompt instructs the model to return only schema-conformant JSON.
// A template turns the extraction from open-ended into fill-these-fields.
func BuildSystemPrompt(req ExtractRequest) string {
	parts := []string{
		"You are a financial document parser. Return ONLY JSON that matches the JSON Schema provided.",
		"Every extracted value goes into the 'fields' array as {name, value, confidence, source_location}.",
		"Confidence values are on a 0-100 scale.",
		"Group repeated rows (e.g. invoice line items) as dotted names: 'line_items.description', 'line_items.amount', repeating the group for each row in document order.",
		"Include a short one-line 'summary' of the document.",
		"Never output null. If a field is not present, omit it.",
	}

	if t := req.Template; t != nil {
		parts = append(parts,
			fmt.Sprintf("The document is a %q. Set document_type to exactly that.", t.DocumentType),
			"Extract the following fields, using the given names verbatim and in this order:")
		for _, fs := range t.Fields {
			line := fmt.Sprintf("- %s (%s", fs.Name, fs.Type)
			if fs.Required {
				line += ", required"
			}
			line += ")"
			if fs.ExtractionHint != "" {
				line += ": " + fs.ExtractionHint
			}
			parts = append(parts, line)
		}
	} else {
		parts = append(parts,
			"Infer document_type yourself (e.g. invoice, receipt, bank_statement, tax_form).",
			"Report every field you can read, in the order it appears in the document.")
	}
	return strings.Join(parts, "\n")
}

// BuildUserPrompt packs the document text (bounded) plus hints.
func BuildUserPrompt(req ExtractRequest, maxTextLen int) string {
	var b strings.Builder
	if req.FilenameHint != "" {
		b.WriteString("Filename: ")
		b.WriteString(req.FilenameHint)
		b.WriteString("\n")
	}
	if req.PageCount > 0 {
		fmt.Fprintf(&b, "Pages: %d\n", req.PageCount)
	}
	if req.DocumentText != "" {
		b.WriteString("\nDocument text:\n")
		text := req.DocumentText
		if maxTextLen > 0 && len(text) > maxTextLen {
			text = text[:maxTextLen]
		}
		b.WriteString(text)
	} else {
		b.WriteString("\nThe document is attached as an image.")
	}
	return b.String()
}

// MustJSON renders v indented for embedding in a prompt.
func MustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
