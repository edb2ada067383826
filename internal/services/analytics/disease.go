package analytics

import "github.com/LeonardoBeccarini/agricult/internal/model/entities"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const unknownDisease = "unknown_disease"

var cropDiseases = map[string][]string{
	"rice":   {"blast", "blight", "sheath_rot"},
	"wheat":  {"rust", "smut", "bunt"},
	"tomato": {"early_blight", "late_blight", "mosaic_virus"},
	"potato": {"late_blight", "early_blight", "scab"},
}

var diseaseRecommendations = map[string][]string{
	"blast":  {"Apply fungicide", "Improve drainage", "Reduce nitrogen fertilizer"},
	"blight": {"Remove infected plants", "Apply copper-based fungicide", "Ensure proper spacing"},
	"rust":   {"Apply fungicide spray", "Plant resistant varieties", "Remove infected leaves"},
}

var fallbackRecommendations = []string{"Consult agricultural expert"}

// DiseaseDetection is the outcome of a (mock) diagnosis.
type DiseaseDetection struct {
	DiseaseType     string   `json:"diseaseType"`
	Severity        Severity `json:"severity"`
	Recommendations []string `json:"recommendations"`
}

// DetectDisease reports the most common disease for crop, with severity
// driven by how many symptoms were described.
func DetectDisease(crop string, symptoms []string) DiseaseDetection {
	disease := unknownDisease
	if ds, ok := cropDiseases[entities.NormalizeCrop(crop)]; ok && len(ds) > 0 {
		disease = ds[0]
	}

	recs, ok := diseaseRecommendations[disease]
	if !ok {
		recs = fallbackRecommendations
	}
	out := make([]string, len(recs))
	copy(out, recs)

	return DiseaseDetection{
		DiseaseType:     disease,
		Severity:        severityFor(len(symptoms)),
		Recommendations: out,
	}
}

func severityFor(n int) Severity {
	switch {
	case n > 3:
		return SeverityHigh
	case n > 1:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
