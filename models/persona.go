package models

import "time"

// Persona is a knowledge base owned by a user. Each persona maps 1:1 to a
// vector store namespace; all of its document segments live in that namespace.
type Persona struct {
	ID          string    `bson:"_id" json:"id"`
	OwnerID     string    `bson:"owner_id" json:"owner_id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Namespace   string    `bson:"namespace" json:"namespace"`
	ChunkCount  int64     `bson:"chunk_count" json:"chunk_count"`
	TokenCount  int64     `bson:"token_count" json:"token_count"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// PersonaStatus reports namespace readiness for retrieval
type PersonaStatus struct {
	Persona     *Persona `json:"persona"`
	Ready       bool     `json:"ready"`
	VectorCount int64    `json:"vector_count"`
}
