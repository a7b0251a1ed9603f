//go:build !unix

package stream

func peakRSS() uint64 { return 0 }
