package embeddings

// fastEmbedDimension returns the vector width of a fastembed model name.
func fastEmbedDimension(model string) (int, bool) {
	dim, ok := map[string]int{
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-small-en":                      384,
		"BAAI/bge-base-en-v1.5":                  768,
		"BAAI/bge-base-en":                       768,
		"BAAI/bge-small-zh-v1.5":                 512,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
	}[model]
	return dim, ok
}
