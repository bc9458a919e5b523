package domain

import (
	"context"
	"time"
)

// ContentKind is the declared format of uploaded raw content.
type ContentKind string

const (
	KindPlain ContentKind = "plain"
	KindPDF   ContentKind = "pdf"
	KindDOCX  ContentKind = "docx"
	KindImage ContentKind = "image"
)

// Document is a raw upload waiting to be ingested into a scope.
type Document struct {
	SourceID string
	Path     string
	Kind     ContentKind
	Raw      []byte
}

// Chunk is a bounded contiguous slice of a document's text.
type Chunk struct {
	SourceID string
	Index    int
	Text     string
}

// Metadata is the fixed-shape record stored alongside every indexed vector.
type Metadata struct {
	SourceID  string
	ChunkText string
}

// SearchResult represents a matching index entry with a relevance score.
type SearchResult struct {
	Metadata Metadata
	Score    float64
}

// Prompt is the structured completion request built from retrieved context.
type Prompt struct {
	Instruction string
	Context     string
	Question    string
}

// Role is the role a requester acts under.
type Role string

const (
	RoleTenant   Role = "tenant"
	RoleLandlord Role = "landlord"
)

// Identity is the requester on whose behalf a scope is resolved.
type Identity struct {
	UserID  int64
	Role    Role
	HouseID int64 // tenant binding; zero when unbound
}

// House is a landlord-owned property with its own knowledge base.
type House struct {
	ID         int64
	LandlordID int64
	Name       string
	Address    string
	CreatedAt  time.Time
}

// User is a registered tenant or landlord.
type User struct {
	ID            int64
	Username      string
	Role          Role
	TenantHouseID int64
}

// Registration points a house scope at one of its stored source files.
type Registration struct {
	ID          int64
	HouseID     int64
	StoragePath string
	ContentHash string
	UploadedAt  time.Time
}

// Chunker splits extracted text into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(sourceID, text string) []Chunk
}

// Vectorizer maps texts to fixed-dimensionality vectors without any fit pass.
type Vectorizer interface {
	Dimension() int
	Vectorize(texts []string) [][]float32
}

// Extractor turns raw bytes of a declared kind into plain text.
type Extractor interface {
	Extract(ctx context.Context, raw []byte, kind ContentKind) (string, error)
}

// Completer is the language-model completion collaborator.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt, maxTokens int) (string, error)
}

// Registry persists houses and the documents registered to them.
type Registry interface {
	GetUser(ctx context.Context, id int64) (User, error)
	ListHouses(ctx context.Context, landlordID int64) ([]House, error)
	RegisterDocument(ctx context.Context, reg Registration) (int64, error)
	ListDocuments(ctx context.Context, houseID int64) ([]Registration, error)
	HasDocuments(ctx context.Context, houseID int64) (bool, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
