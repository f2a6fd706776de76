package port

type Tokenizer interface {
	// Tokenize returns normalized terms with stopwords removed.
	Tokenize(text string) []string
}
