package core

import "time"

const AVG_COUNT = 30

// FrameMetrics keeps a rolling frame-time average and a frames-per-second
// counter refreshed once a second.
type FrameMetrics struct {
	frameAVGCounter    int
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	frames             int
	accumulatedFrameMS float64
	fps                float64
	total              uint64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

// Update records one frame. It reports true when the FPS value was refreshed.
func (m *FrameMetrics) Update(frameTime time.Duration) bool {
	frameMS := float64(frameTime) / float64(time.Millisecond)
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for _, ms := range m.msTimes {
			sum += ms
		}
		m.msAvg = sum / AVG_COUNT
	}
	m.frameAVGCounter = (m.frameAVGCounter + 1) % AVG_COUNT

	m.frames++
	m.total++
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS >= 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
		return true
	}
	return false
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

// FrameTime is the average over the last AVG_COUNT frames, in milliseconds.
func (m *FrameMetrics) FrameTime() float64 {
	return m.msAvg
}

func (m *FrameMetrics) Frames() uint64 {
	return m.total
}
