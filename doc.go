// Package recapd turns long-form audio and video transcripts into
// structured summaries with citations, fact checks, and follow-up
// question answering.
//
// # Quick Start
//
// Install the server:
//
//	go install github.com/recapd/recapd/cmd/recapd@latest
//
// Create a configuration:
//
//	providers:
//	  llm:
//	    type: "openai"
//	    model: "gpt-4o-mini"
//	    api_key: "${OPENAI_API_KEY}"
//	  transcript:
//	    base_url: "https://transcripts.example.com"
//
// Start the server:
//
//	recapd serve --config config.yaml
//
// Request a summary:
//
//	curl -X POST localhost:8080/v1/summaries \
//	  -d '{"contentId": "dQw4w9WgXcQ", "mode": "standard"}'
//
// # Using as Go Library
//
// Import specific packages:
//
//	import (
//	    "github.com/recapd/recapd/pkg/pipeline"
//	    "github.com/recapd/recapd/pkg/qa"
//	    "github.com/recapd/recapd/pkg/config"
//	)
//
// # Architecture
//
// A summarization request runs a staged pipeline:
//
//	Client → HTTP Server → Service (cache, rate limit) → Engine → Stages
//
// Stages fetch the transcript, summarize it with an LLM, research key
// topics on the web, verify claims, and attach timestamped citations.
// The mode (quick, standard, research, educational) selects which stages
// run and how much time the run may take. Transcripts are also chunked
// and embedded into a vector index so follow-up questions can be answered
// with grounded, cited responses.
package recapd
