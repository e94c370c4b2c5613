package constants

// Centralized threshold and weight values used across the application.
// Keep these stable; change deliberately and document why.
// These are not configuration knobs; use pkg/config for env-driven settings.

const (
	// Ranking weights (balanced profile)
	WeightLexical = 1.0
	WeightGeo     = 0.8
	WeightVibe    = 0.6
	WeightSignal  = 0.5
	WeightNovelty = 0.4

	// Mode overrides
	WeightVibeBoosted   = 1.2 // vibe mode doubles the vibe term
	WeightSignalBoosted = 1.0 // surprise mode raises the signal term

	// Geo score shape: score = 1 / (1 + distance/GeoTauMeters)
	GeoTauMeters = 500.0

	// Signal boost contributions
	BoostHQExperience = 0.3
	BoostEditorPick   = 0.2
	BoostQualityScale = 0.2 // multiplied by quality_score

	// Slot match confidences by kind
	ConfidencePhrase    = 0.95
	ConfidenceMultiword = 0.85
	ConfidenceUnigram   = 0.70
	ConfidenceFuzzyBase = 0.50 // scaled by string similarity

	// Dynamic confidence floors
	ConfidenceFloorVague  = 0.4
	ConfidenceFloorNormal = 0.7
	VagueQueryMaxTokens   = 3
	MaxSlotsDefault       = 3

	// Fuzzy matching
	FuzzySimilarityThreshold = 0.72
	FuzzyMinTokenLen         = 4

	// Rail composition
	MMRLambda         = 0.3
	RailLengthDefault = 6
	RailLengthMax     = 24

	// HTTP paging caps
	SearchLimitDefault   = 20
	SearchLimitMax       = 50
	SuggestLimitDefault  = 8
	SuggestLimitMax      = 20
	PipelineBatchDefault = 50
	PipelineBatchMax     = 500

	// "near you" badge cutoff
	NearYouMaxMeters = 1000.0

	// Session profile shaping
	SessionVibeIncrement  = 0.1
	SessionNoveltyTarget  = 0.8
	SessionNoveltyStep    = 0.25 // fraction of the remaining gap per signal
	SessionNoveltyDefault = 0.5
	SessionUnlikeDecay    = 0.5
	SessionRingCap        = 100

	// Editor quality-flag thresholds
	SummaryWeakBelow     = 60  // chars
	SummaryExcellentFrom = 160 // chars
	TagsSparseBelow      = 3
	TagsRichFrom         = 8
	PhotosExcellentFrom  = 3

	// Per-agent attempt caps before a record fails hard
	SummarizerMaxAttempts = 3
	EnricherMaxAttempts   = 3
	EditorMaxAttempts     = 3

	// Circuit breaker rate thresholds
	CircuitFailureRate        = 0.6 // default for external HTTP
	CircuitSlowCallRate       = 0.7
	OpenAICircuitFailureRate  = 0.5
	OpenAICircuitSlowCallRate = 0.5
)
