package entities

// PricePerMinute is the transcription price in USD per audio minute
const PricePerMinute = 0.006

// MinutesFor converts a number of chunks into audio minutes
func MinutesFor(chunks, chunkSeconds int) float64 {
	return float64(chunks) * float64(chunkSeconds) / 60
}

// EstimatedCost is what the transcribed chunks have cost so far
func EstimatedCost(chunksProcessed, chunkSeconds int) float64 {
	return MinutesFor(chunksProcessed, chunkSeconds) * PricePerMinute
}

// CostSaved is what skipping silent chunks has avoided paying
func CostSaved(silentChunksSkipped, chunkSeconds int) float64 {
	return MinutesFor(silentChunksSkipped, chunkSeconds) * PricePerMinute
}
