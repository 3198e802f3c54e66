package core

import "sync"

const AVG_COUNT uint8 = 30

type MetricsState struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	TotalFrames        uint64
	AccumulatedFrameMS float64
	FPS                float64
}

var metricsMu sync.Mutex
var metricsState = &MetricsState{}

// MetricsReset clears every counter.
func MetricsReset() {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	metricsState = &MetricsState{}
}

// MetricsUpdate records the duration of one frame, in seconds.
func MetricsUpdate(frameElapsedTime float64) {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	metricsState.MStimes[metricsState.FrameAVGCounter] = frameMS
	if metricsState.FrameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += metricsState.MStimes[i]
		}
		metricsState.MSavg = sum / float64(AVG_COUNT)
	}
	metricsState.FrameAVGCounter++
	metricsState.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	metricsState.AccumulatedFrameMS += frameMS
	if metricsState.AccumulatedFrameMS > 1000 {
		metricsState.FPS = float64(metricsState.Frames)
		metricsState.AccumulatedFrameMS -= 1000
		metricsState.Frames = 0
	}

	// Count all Frames.
	metricsState.Frames++
	metricsState.TotalFrames++
}

func MetricsFPS() float64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return metricsState.FPS
}

func MetricsFrameTime() float64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return metricsState.MSavg
}

func MetricsFrame() (float64, float64) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return metricsState.FPS, metricsState.MSavg
}

func MetricsTotalFrames() uint64 {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return metricsState.TotalFrames
}
