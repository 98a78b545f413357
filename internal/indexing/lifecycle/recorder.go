package lifecycle

// Recorder is the subset of the metrics aggregator the lifecycle engine
// needs. Defined here, by the consumer, so this package doesn't import
// internal/indexing/metrics; metrics.Metrics satisfies it structurally.
type Recorder interface {
	IncPackets(chainID string)
	IncEffected(chainID, srcChannel, srcPort, dstChannel, dstPort, signer, memo string)
	IncUneffected(chainID, srcChannel, srcPort, dstChannel, dstPort, signer, memo string)
	IncFrontrun(chainID, srcChannel, srcPort, dstChannel, dstPort, signer, frontrunnedBy, memo, effectedMemo string)
	ObservePacketAge(chainID, srcChannel, dstChannel string, ageSeconds float64)
	IncUnknownMsg(chainID, typeURL string)
	IncErrors(chainID string)
}

// nopRecorder discards everything; used where a caller has no metrics
// aggregator wired up (e.g. most lifecycle engine tests).
type nopRecorder struct{}

func (nopRecorder) IncPackets(string)                                             {}
func (nopRecorder) IncEffected(string, string, string, string, string, string, string)   {}
func (nopRecorder) IncUneffected(string, string, string, string, string, string, string) {}
func (nopRecorder) IncFrontrun(string, string, string, string, string, string, string, string, string) {
}
func (nopRecorder) ObservePacketAge(string, string, string, float64) {}
func (nopRecorder) IncUnknownMsg(string, string)                     {}
func (nopRecorder) IncErrors(string)                                 {}
