package recycle

import "math"

type Statistics struct {
	SpanCount       int
	UnusedSpanCount int
	SpanBytes       int
	UnusedBytes     int
}

func (s *Statistics) Clear() {
	s.SpanCount = 0
	s.UnusedSpanCount = 0
	s.SpanBytes = 0
	s.UnusedBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.SpanCount += other.SpanCount
	s.UnusedSpanCount += other.UnusedSpanCount
	s.SpanBytes += other.SpanBytes
	s.UnusedBytes += other.UnusedBytes
}

type DetailedStatistics struct {
	Statistics
	SpanSizeMin   int
	SpanSizeMax   int
	UnusedSizeMin int
	UnusedSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.SpanSizeMin = math.MaxInt
	s.SpanSizeMax = 0
	s.UnusedSizeMin = math.MaxInt
	s.UnusedSizeMax = 0
}

func (s *DetailedStatistics) AddSpan(size int) {
	s.SpanCount++
	s.SpanBytes += size

	if size < s.SpanSizeMin {
		s.SpanSizeMin = size
	}

	if size > s.SpanSizeMax {
		s.SpanSizeMax = size
	}
}

func (s *DetailedStatistics) AddUnusedSpan(size int) {
	s.UnusedSpanCount++
	s.UnusedBytes += size

	if size < s.UnusedSizeMin {
		s.UnusedSizeMin = size
	}

	if size > s.UnusedSizeMax {
		s.UnusedSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)

	if other.SpanSizeMin < s.SpanSizeMin {
		s.SpanSizeMin = other.SpanSizeMin
	}

	if other.SpanSizeMax > s.SpanSizeMax {
		s.SpanSizeMax = other.SpanSizeMax
	}

	if other.UnusedSizeMin < s.UnusedSizeMin {
		s.UnusedSizeMin = other.UnusedSizeMin
	}

	if other.UnusedSizeMax > s.UnusedSizeMax {
		s.UnusedSizeMax = other.UnusedSizeMax
	}
}
