package domain

// QueryMode selects between single best match and per-document retrieval.
type QueryMode string

const (
	QueryModeAuto   QueryMode = "auto"
	QueryModeSingle QueryMode = "single"
	QueryModeCross  QueryMode = "cross"
)

func ParseQueryMode(s string) (QueryMode, bool) {
	switch QueryMode(s) {
	case "", QueryModeAuto:
		return QueryModeAuto, true
	case QueryModeSingle:
		return QueryModeSingle, true
	case QueryModeCross:
		return QueryModeCross, true
	default:
		return "", false
	}
}

// QueryContext is resolved once per query and handed to every later stage.
type QueryContext struct {
	Text          string    `json:"text"`
	Mode          QueryMode `json:"mode"`
	LiveDocuments int       `json:"live_documents"`
}

type SearchFilter struct {
	DocumentID string
}

// IndexHit is a raw candidate returned by the external index.
type IndexHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type ScoredChunk struct {
	Chunk        Chunk   `json:"chunk"`
	Filename     string  `json:"filename"`
	DocumentSeq  uint64  `json:"-"`
	Score        float64 `json:"score"`
	MatchedTerms int     `json:"matched_terms"`
	QueryTerms   int     `json:"query_terms"`
}

type RetrievalResult struct {
	Mode   QueryMode     `json:"mode"`
	Chunks []ScoredChunk `json:"chunks"`
}

func (r RetrievalResult) Empty() bool {
	return len(r.Chunks) == 0
}

// Sources lists distinct filenames in first-seen order.
func (r RetrievalResult) Sources() []string {
	seen := make(map[string]struct{}, len(r.Chunks))
	out := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		if _, ok := seen[c.Filename]; ok {
			continue
		}
		seen[c.Filename] = struct{}{}
		out = append(out, c.Filename)
	}
	return out
}

type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

type AnswerResult struct {
	Answer                string     `json:"answer"`
	Explanation           string     `json:"explanation"`
	Sources               []string   `json:"sources"`
	CrossDocumentAnalysis string     `json:"cross_document_analysis,omitempty"`
	Confidence            Confidence `json:"confidence"`
	Mode                  QueryMode  `json:"mode"`
	Degraded              bool       `json:"degraded,omitempty"`
}
