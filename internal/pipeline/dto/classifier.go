package dto

// Prediction is one classifier output: a sentiment label and the model's
// confidence in [0, 1]. Keywords lists the lexicon terms that drove the
// decision; remote providers leave it empty.
type Prediction struct {
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords,omitempty"`
}
