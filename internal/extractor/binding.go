package extractor

// Binding is one token -> implementation association observed in source.
type Binding struct {
	Token          string `json:"token"`
	Implementation string `json:"implementation"`
	SourceFile     string `json:"source_file"`
	SourceLine     int    `json:"source_line"` // 0-based
	Kind           string `json:"kind,omitempty"`
	Strategy       string `json:"strategy,omitempty"`
}

// Severity grades a Diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a non-fatal observation made while extracting a file.
type Diagnostic struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// TokenDefinition is one entry of a token registry object such as
// `export const TYPES = { Logger: Symbol.for("Logger") }`.
type TokenDefinition struct {
	Registry   string `json:"registry"`
	Entry      string `json:"entry"`
	Value      string `json:"value"`
	SourceFile string `json:"source_file"`
	SourceLine int    `json:"source_line"`
}

// Qualified returns the Registry.Entry key bindings refer to.
func (d TokenDefinition) Qualified() string {
	return d.Registry + "." + d.Entry
}

// Result is what one extractor found in one file.
type Result struct {
	Bindings    []Binding
	Diagnostics []Diagnostic
	Tokens      []TokenDefinition
}

func (r *Result) merge(other Result) {
	r.Bindings = append(r.Bindings, other.Bindings...)
	r.Diagnostics = append(r.Diagnostics, other.Diagnostics...)
	r.Tokens = append(r.Tokens, other.Tokens...)
}
