package domain

import "time"

// MaxLiveDocuments caps the session set.
const MaxLiveDocuments = 3

type PageSource string

const (
	PageSourceText  PageSource = "text"
	PageSourceOCR   PageSource = "ocr"
	PageSourceEmpty PageSource = "empty"
)

// PageText is the extracted text of a single PDF page. Number is 1-based.
type PageText struct {
	Number int        `json:"number"`
	Text   string     `json:"text"`
	Source PageSource `json:"source"`
}

type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	PageCount   int       `json:"page_count"`
	OCRPages    int       `json:"ocr_pages"`
	RawPages    []string  `json:"-"`
	CleanedText string    `json:"-"`
	UploadedAt  time.Time `json:"uploaded_at"`
	// Seq orders documents by registration; higher is more recent.
	Seq uint64 `json:"-"`
}

// Chunk is a contiguous excerpt of a document's cleaned text.
// Start and End are rune offsets, End exclusive.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Index      int    `json:"index"`
}

type DocumentSummary struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	PageCount  int       `json:"page_count"`
	OCRPages   int       `json:"ocr_pages"`
	ChunkCount int       `json:"chunk_count"`
	TextLength int       `json:"text_length"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type UploadResult struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	ChunksCreated int    `json:"chunks_created"`
	TextLength    int    `json:"text_length"`
	PageCount     int    `json:"pages"`
	OCRPages      int    `json:"ocr_pages"`
}

type DocumentEventType string

const (
	EventDocumentAdded    DocumentEventType = "document.added"
	EventDocumentRemoved  DocumentEventType = "document.removed"
	EventDocumentsCleared DocumentEventType = "documents.cleared"
)

type DocumentEvent struct {
	Type       DocumentEventType `json:"type"`
	DocumentID string            `json:"document_id,omitempty"`
	Filename   string            `json:"filename,omitempty"`
	Chunks     int               `json:"chunks,omitempty"`
	At         time.Time         `json:"at"`
}
