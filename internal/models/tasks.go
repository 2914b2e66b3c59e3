package models

import "encoding/json"

type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further polling is needed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed
}

type TaskKind string

const (
	KindPDFParse         TaskKind = "pdf_parse"
	KindImageLayoutParse TaskKind = "image_layout_parse"
	KindExport           TaskKind = "export"
)

// Page is one parsed page. PageIdx is a pointer so a missing index can be told
// apart from page zero.
type Page struct {
	PageIdx *int   `json:"page_idx,omitempty"`
	MD      string `json:"md"`
}

// Index returns the page index, defaulting to 0 when absent.
func (p Page) Index() int {
	if p.PageIdx == nil {
		return 0
	}
	return *p.PageIdx
}

// ParseResult is the result payload of parse tasks.
type ParseResult struct {
	Pages []Page `json:"pages"`
}

// FirstPageMD returns the first page's markdown as delivered, or "".
func (r *ParseResult) FirstPageMD() string {
	if r == nil || len(r.Pages) == 0 {
		return ""
	}
	return r.Pages[0].MD
}

// PreuploadResponse is the data of POST /parse/preupload.
type PreuploadResponse struct {
	UID string `json:"uid"`
	URL string `json:"url"`
}

// SubmitResult is returned by every submit operation.
type SubmitResult struct {
	UID string `json:"uid"`
}

// PDFStatus is a snapshot of a PDF parse task.
type PDFStatus struct {
	UID      string       `json:"uid"`
	Status   TaskStatus   `json:"status"`
	Progress int          `json:"progress"`
	Detail   string       `json:"detail"`
	Result   *ParseResult `json:"result,omitempty"`
}

// ImageStatus is a snapshot of an image layout parse task.
type ImageStatus struct {
	UID        string          `json:"uid"`
	Status     TaskStatus      `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	ConvertZip *string         `json:"convert_zip"`
}

// ParsedResult decodes the image result into pages; malformed results yield nil.
func (s ImageStatus) ParsedResult() *ParseResult {
	if len(s.Result) == 0 {
		return nil
	}
	var r ParseResult
	if err := json.Unmarshal(s.Result, &r); err != nil {
		return nil
	}
	return &r
}

// ImageSyncResult is the data of the synchronous layout endpoint.
type ImageSyncResult struct {
	UID        string          `json:"uid"`
	Result     json.RawMessage `json:"result"`
	ConvertZip *string         `json:"convert_zip"`
}

// ExportStatus is a snapshot of an export (convert) task.
type ExportStatus struct {
	UID    string     `json:"uid"`
	Status TaskStatus `json:"status"`
	URL    string     `json:"url"`
}

// TextResult is the terminal result of a wait-for-text operation.
type TextResult struct {
	UID           string     `json:"uid"`
	Status        TaskStatus `json:"status"`
	Text          string     `json:"text"`
	Truncated     bool       `json:"truncated"`
	ReturnedPages int        `json:"returned_pages"`
	TotalPages    int        `json:"total_pages"`
}
