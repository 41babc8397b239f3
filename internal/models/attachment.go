package models

// TableDescriptor describes a structured-data upload (CSV or spreadsheet) so the
// answer generator can reason about its shape.
type TableDescriptor struct {
	Name     string   `json:"name"`
	Filename string   `json:"filename"`
	Columns  []string `json:"columns"`
	Rows     int      `json:"rows"`
}

// ImageAttachment is an uploaded image kept for vision-capable answer generation.
type ImageAttachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}
