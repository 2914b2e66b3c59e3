package models

type ExportFormat string

const (
	ExportMD   ExportFormat = "md"
	ExportTeX  ExportFormat = "tex"
	ExportDOCX ExportFormat = "docx"
)

func (f ExportFormat) Valid() bool {
	switch f {
	case ExportMD, ExportTeX, ExportDOCX:
		return true
	}
	return false
}

type FormulaMode string

const (
	FormulaNormal FormulaMode = "normal"
	FormulaDollar FormulaMode = "dollar"
)

func (m FormulaMode) Valid() bool {
	return m == FormulaNormal || m == FormulaDollar
}

type FilenameMode string

const (
	FilenameAuto FilenameMode = "auto"
	FilenameRaw  FilenameMode = "raw"
)

// ParseModel selects the remote PDF parse model.
type ParseModel string

const (
	ModelV2     ParseModel = "v2"
	ModelV32026 ParseModel = "v3-2026"
)

func (m ParseModel) Valid() bool {
	return m == "" || m == ModelV2 || m == ModelV32026
}

// Normalize maps the empty model to the service default.
func (m ParseModel) Normalize() ParseModel {
	if m == "" {
		return ModelV2
	}
	return m
}

// ExportRequest is the body of POST /convert/parse.
type ExportRequest struct {
	UID                 string       `json:"uid"`
	To                  ExportFormat `json:"to"`
	FormulaMode         FormulaMode  `json:"formula_mode"`
	FormulaLevel        *int         `json:"formula_level,omitempty"`
	Filename            *string      `json:"filename,omitempty"`
	MergeCrossPageForms *bool        `json:"merge_cross_page_forms,omitempty"`
}
