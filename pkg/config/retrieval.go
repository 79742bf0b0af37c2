package config

import "fmt"

// RetrievalConfig controls transcript chunking and the vector index.
type RetrievalConfig struct {
	// Backend is the vector store backend ("chromem" or "qdrant").
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// ChunkSize is the target chunk length in characters.
	ChunkSize int `yaml:"chunk_size,omitempty" json:"chunk_size,omitempty"`

	// ChunkOverlap is how many trailing characters carry into the next chunk.
	ChunkOverlap int `yaml:"chunk_overlap,omitempty" json:"chunk_overlap,omitempty"`

	// MinChunkSize drops trailing fragments below this length.
	MinChunkSize int `yaml:"min_chunk_size,omitempty" json:"min_chunk_size,omitempty"`

	// IndexWorkers bounds concurrent indexing jobs across pipelines.
	IndexWorkers int `yaml:"index_workers,omitempty" json:"index_workers,omitempty"`

	// Qdrant holds connection settings when backend is "qdrant".
	Qdrant QdrantConfig `yaml:"qdrant,omitempty" json:"qdrant,omitempty"`
}

// QdrantConfig holds qdrant connection settings.
type QdrantConfig struct {
	Host   string `yaml:"host,omitempty" json:"host,omitempty"`
	Port   int    `yaml:"port,omitempty" json:"port,omitempty"`
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	UseTLS *bool  `yaml:"use_tls,omitempty" json:"use_tls,omitempty"`
}

func (c *RetrievalConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "chromem"
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
	if c.MinChunkSize == 0 {
		c.MinChunkSize = 100
	}
	if c.IndexWorkers == 0 {
		c.IndexWorkers = 4
	}
	if c.Backend == "qdrant" {
		if c.Qdrant.Host == "" {
			c.Qdrant.Host = "localhost"
		}
		if c.Qdrant.Port == 0 {
			c.Qdrant.Port = 6334
		}
		if c.Qdrant.UseTLS == nil {
			c.Qdrant.UseTLS = BoolPtr(false)
		}
	}
}

func (c *RetrievalConfig) Validate() error {
	if c.Backend != "chromem" && c.Backend != "qdrant" {
		return fmt.Errorf("invalid backend '%s', must be 'chromem' or 'qdrant'", c.Backend)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("chunk_overlap must not be negative")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.IndexWorkers <= 0 {
		return fmt.Errorf("index_workers must be positive, got %d", c.IndexWorkers)
	}
	return nil
}

// QAConfig controls the question answering engine.
type QAConfig struct {
	// TopK is how many chunks a question retrieves.
	TopK int `yaml:"top_k,omitempty" json:"top_k,omitempty"`

	// ScoreThreshold filters out weak matches; below it a question gets the
	// insufficient context response.
	ScoreThreshold float32 `yaml:"score_threshold,omitempty" json:"score_threshold,omitempty"`

	// MaxHistoryTurns is how many recent turns feed retrieval context.
	MaxHistoryTurns int `yaml:"max_history_turns,omitempty" json:"max_history_turns,omitempty"`
}

func (c *QAConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = 0.3
	}
	if c.MaxHistoryTurns == 0 {
		c.MaxHistoryTurns = 3
	}
}

func (c *QAConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold must be in [0,1], got %f", c.ScoreThreshold)
	}
	return nil
}
