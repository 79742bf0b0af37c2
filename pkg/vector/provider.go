// Copyright 2025 The recapd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vector abstracts vector storage behind a Provider interface with
// an embedded (chromem) and a remote (qdrant) backend. Vectors are always
// precomputed by the embedder; providers never embed.
package vector

import (
	"context"
	"fmt"

	"github.com/recapd/recapd/pkg/config"
)

// Document is one vector with its text and metadata.
type Document struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

// Result is one similarity search hit. Score is cosine similarity in [0,1].
type Result struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}

// Provider stores and searches vectors grouped into named collections.
type Provider interface {
	// Upsert adds or replaces documents in a collection, creating the
	// collection on first use.
	Upsert(ctx context.Context, collection string, docs []Document) error

	// Search returns the topK most similar documents, score descending.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// DeleteCollection removes a collection and all its documents.
	// Deleting a collection that does not exist is not an error.
	DeleteCollection(ctx context.Context, collection string) error

	Name() string
	Close() error
}

// NewProvider constructs the backend named by the retrieval configuration.
func NewProvider(cfg *config.RetrievalConfig, dimension int) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("retrieval configuration is required")
	}
	switch cfg.Backend {
	case "chromem":
		return NewChromemProvider()
	case "qdrant":
		return NewQdrantProvider(&cfg.Qdrant, dimension)
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.Backend)
	}
}
