package classification

const (
	DefaultInputWidth  = 448
	DefaultInputHeight = 448
	Channels           = 3

	// DecisionThreshold splits a single sigmoid output; scores equal to it
	// are Non Defective.
	DecisionThreshold = 0.5
	ScoreDecimals     = 4

	LabelDefective    = "Defective"
	LabelNonDefective = "Non Defective"
)
