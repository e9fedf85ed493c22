package classification

import (
	"errors"
	"math"

	"github.com/Tutortoise/defect-classification-service/models"
)

var errEmptyOutput = errors.New("model returned an empty output")

// Decide maps the output vector of one example to a labelled prediction.
//
// A single value is read as the probability of a defect. Two or more values
// are read as per-class scores where index 0 is Defective and any other
// index is Non Defective.
func Decide(output []float32) (models.Prediction, error) {
	switch len(output) {
	case 0:
		return models.Prediction{}, newError(KindInference, "decision.decide", errEmptyOutput)
	case 1:
		return decideScalar(float64(output[0])), nil
	default:
		return decideArgMax(output), nil
	}
}

func decideScalar(score float64) models.Prediction {
	if score > DecisionThreshold {
		return models.Prediction{
			PredictedClass: LabelDefective,
			Confidence:     roundScore(score),
			RawScore:       roundScore(score),
		}
	}
	return models.Prediction{
		PredictedClass: LabelNonDefective,
		Confidence:     roundScore(1 - score),
		RawScore:       roundScore(score),
	}
}

func decideArgMax(output []float32) models.Prediction {
	maxIdx := 0
	maxVal := output[0]
	for i, val := range output {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}

	label := LabelNonDefective
	if maxIdx == 0 {
		label = LabelDefective
	}
	return models.Prediction{
		PredictedClass: label,
		Confidence:     roundScore(float64(maxVal)),
		RawScore:       roundScore(float64(maxVal)),
	}
}

func roundScore(v float64) float64 {
	scale := math.Pow10(ScoreDecimals)
	return math.Round(v*scale) / scale
}
