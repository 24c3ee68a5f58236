package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")

	flags.StringP("corpus", "c", "", "Path to the snippet corpus (JSON Lines)")
	flags.StringP("index-dir", "i", "", "Directory holding the facet index files")
	flags.BoolP("rebuild", "r", false, "Purge and rebuild every facet index")
	flags.StringSlice("rebuild-facet", nil, "Purge and rebuild only these facets (question, code, tags)")
	flags.Duration("index-lock-timeout", 0, "How long to wait for another process building the indexes")

	flags.StringP("model-dir", "m", "", "Directory holding the embedding model assets")
	flags.String("model-file", "", "ONNX model file, relative to the model directory")
	flags.String("tokenizer-file", "", "Tokenizer definition, relative to the model directory")
	flags.String("onnxruntime-lib", "", "Path to the ONNX Runtime shared library")
	flags.String("model-output", "", "Name of the model output holding token embeddings")
	flags.Int("max-length", 0, "Maximum tokens per encoded text")
	flags.Int("batch-size", 0, "Texts per encoder batch when building indexes")
	flags.Int("query-cache-size", 0, "Number of query embeddings kept in memory")

	flags.IntP("top-k", "k", 0, "Default number of search results")
	flags.Int("max-top-k", 0, "Cap applied to top_k, raised to the largest index size")

	flags.String("explain-api-key", "", "API key for the code explanation endpoint")
	flags.String("explain-base-url", "", "Base URL of the OpenAI compatible endpoint")
	flags.String("explain-model", "", "Chat model used for explanations")
	flags.Duration("explain-timeout", 0, "Timeout for a single explanation request")
}
