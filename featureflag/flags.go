package featureflag

type Flag string

const (
	// Panics when the index detects a broken tree after a write.
	FlagDebugAssertions Flag = "DEBUG_ASSERTIONS"

	FlagDisableQueryCache    Flag = "DISABLE_QUERY_CACHE"
	FlagDisableInPlaceUpdate Flag = "DISABLE_IN_PLACE_UPDATE"
)
