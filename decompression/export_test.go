package decompression

// RepeatOffset exposes the run distance decoder to external tests.
func RepeatOffset(h *HuffLZ) uint { return h.repeatOffset() }
