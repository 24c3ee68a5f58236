package domain

import "errors"

var (
	// ErrProcessInit indicates required startup assets (corpus, model, tokenizer) are missing.
	// The process must not start serving when it is returned.
	ErrProcessInit = errors.New("process initialization failed")

	// ErrModelLoad indicates the model or tokenizer assets are missing or malformed.
	ErrModelLoad = errors.New("model load failed")

	// ErrCacheCorrupt indicates a persisted index/embedding pair is unreadable or inconsistent.
	ErrCacheCorrupt = errors.New("index cache corrupt")

	// ErrInference indicates the encoder could not embed a request input.
	ErrInference = errors.New("inference failed")

	// ErrInvalidMode indicates a query mode has no corresponding index.
	ErrInvalidMode = errors.New("invalid query mode")
)
